// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"errors"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"

	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

// DeviceCodeTokenProvider is the last-resort interactive strategy: it
// works even when the session has no local browser or display.
type DeviceCodeTokenProvider struct {
	app public.Client
}

var _ TokenProvider = (*DeviceCodeTokenProvider)(nil)

// NewDeviceCodeTokenProvider creates the device-code strategy.
func NewDeviceCodeTokenProvider(app public.Client) *DeviceCodeTokenProvider {
	return &DeviceCodeTokenProvider{app: app}
}

// Name implements TokenProvider.
func (*DeviceCodeTokenProvider) Name() string { return "MSAL Device Code" }

// IsInteractive implements TokenProvider.
func (*DeviceCodeTokenProvider) IsInteractive() bool { return true }

// CanGetToken requires only an interactive session; no dialog is needed.
func (*DeviceCodeTokenProvider) CanGetToken(req *TokenRequest) bool {
	return req.IsInteractive
}

// GetToken implements TokenProvider. The device-code prompt is surfaced
// through the request callback, falling back to the log.
func (p *DeviceCodeTokenProvider) GetToken(ctx context.Context, req *TokenRequest) (*Result, error) {
	ctx, cancel := req.interactiveContext(ctx)
	defer cancel()

	code, err := p.app.AcquireTokenByDeviceCode(ctx, Scopes)
	if err != nil {
		return nil, err
	}

	if req.DeviceCodeCallback != nil {
		if err := req.DeviceCodeCallback(code.Result.VerificationURL, code.Result.UserCode, code.Result.Message); err != nil {
			return nil, err
		}
	} else {
		logger.Info(code.Result.Message)
	}

	result, err := code.AuthenticationResult(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Warnf("device-code sign-in was cancelled: %v", err)
			return nil, nil
		}
		return nil, err
	}

	return &Result{
		AccessToken: result.AccessToken,
		ExpiresOn:   result.ExpiresOn,
		Source:      TokenSourceIdentityProvider,
	}, nil
}
