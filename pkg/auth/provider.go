// SPDX-License-Identifier: MIT

// Package auth implements the multi-strategy bearer token acquisition
// engine: a prioritized chain of token providers backed by the MSAL
// identity library, plus the account ranking used for silent sign-in.
package auth

import (
	"context"
	"time"

	"github.com/azdo-tools/artifacts-credprovider/pkg/errors"
	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

// TokenSource tags where a bearer token came from.
type TokenSource string

// Token sources.
const (
	TokenSourceCache            TokenSource = "cache"
	TokenSourceBroker           TokenSource = "broker"
	TokenSourceIdentityProvider TokenSource = "identity_provider"
)

// Result is a successfully acquired bearer token. Ownership passes to
// the session token exchanger.
type Result struct {
	AccessToken string
	ExpiresOn   time.Time
	Source      TokenSource
}

// TokenProvider is one authentication strategy. Implementations are
// stateless aside from a captured identity client and are constructed
// fresh per authority.
type TokenProvider interface {
	// Name is a diagnostic label.
	Name() string

	// IsInteractive reports whether the strategy requires the user.
	IsInteractive() bool

	// CanGetToken is a pure eligibility check over the request.
	CanGetToken(req *TokenRequest) bool

	// GetToken attempts acquisition. A nil result with a nil error means
	// the strategy legitimately has no answer (no cached account, UI
	// cancelled, platform unsupported); errors are reserved for genuinely
	// unexpected failures.
	GetToken(ctx context.Context, req *TokenRequest) (*Result, error)
}

// RunChain tries every eligible provider in order and returns the first
// non-nil result. Provider errors are logged and treated as "no answer"
// so a flaky early strategy cannot block a later one; if nothing
// produces a token the acquisition has failed.
func RunChain(ctx context.Context, providers []TokenProvider, req *TokenRequest) (*Result, TokenProvider, error) {
	for _, provider := range providers {
		if err := ctx.Err(); err != nil {
			return nil, nil, errors.NewCancelledError("token acquisition cancelled", err)
		}

		if !provider.CanGetToken(req) {
			logger.Debugf("not running token provider %s", provider.Name())
			continue
		}

		logger.Debugf("attempting to acquire bearer token using %s", provider.Name())

		result, err := provider.GetToken(ctx, req)
		if err != nil {
			logger.Debugf("token provider %s failed: %v", provider.Name(), err)
			continue
		}
		if result == nil || result.AccessToken == "" {
			logger.Debugf("token provider %s returned no token", provider.Name())
			continue
		}

		logger.Infof("acquired bearer token using %s", provider.Name())
		return result, provider, nil
	}

	return nil, nil, errors.NewAuthenticationFailedError("no token provider produced a bearer token", nil)
}
