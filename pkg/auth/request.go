// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"net/url"
	"time"
)

// DefaultInteractiveTimeout bounds interactive and device-code sign-in
// when the caller supplies no explicit timeout.
const DefaultInteractiveTimeout = 2 * time.Minute

// DeviceCodeCallback is invoked with the user-facing device-code prompt
// (verification URL, user code, full message).
type DeviceCodeCallback func(verificationURL, userCode, message string) error

// TokenRequest describes a single authentication attempt. It is built
// once per resolution and not mutated afterwards.
type TokenRequest struct {
	// URI is the target feed.
	URI *url.URL

	// IsRetry indicates the host already rejected a previous credential.
	IsRetry bool

	// IsInteractive permits flows that require the user.
	IsInteractive bool

	// CanShowDialog permits flows that require a UI surface. A headless
	// but interactive session leaves this false and relies on device code.
	CanShowDialog bool

	// IsWindowsIntegratedAuthEnabled permits silent use of the OS login
	// identity.
	IsWindowsIntegratedAuthEnabled bool

	// LoginHint preselects an account by username.
	LoginHint string

	// InteractiveTimeout bounds user-facing flows. Zero means
	// DefaultInteractiveTimeout.
	InteractiveTimeout time.Duration

	// DeviceCodeCallback presents the device-code prompt to the user.
	DeviceCodeCallback DeviceCodeCallback

	// ClientID selects managed identity (alone) or, with
	// ClientCertificate, service principal authentication.
	ClientID string

	// TenantID is the tenant for service principal authentication.
	TenantID string

	// ClientCertificate is a path to a PEM file with the service
	// principal's certificate and private key.
	ClientCertificate string
}

// IsNonInteractive is the inverse of IsInteractive, kept for parity with
// the host protocol's wording.
func (r *TokenRequest) IsNonInteractive() bool {
	return !r.IsInteractive
}

// interactiveContext derives the effective deadline for a user-facing
// flow: the caller's cancellation layered with the request timeout,
// whichever fires first.
func (r *TokenRequest) interactiveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := r.InteractiveTimeout
	if timeout <= 0 {
		timeout = DefaultInteractiveTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
