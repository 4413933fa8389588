// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"errors"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"

	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

// InteractiveTokenProvider signs the user in through the system browser.
type InteractiveTokenProvider struct {
	app public.Client
}

var _ TokenProvider = (*InteractiveTokenProvider)(nil)

// NewInteractiveTokenProvider creates the interactive-browser strategy.
func NewInteractiveTokenProvider(app public.Client) *InteractiveTokenProvider {
	return &InteractiveTokenProvider{app: app}
}

// Name implements TokenProvider.
func (*InteractiveTokenProvider) Name() string { return "MSAL Interactive" }

// IsInteractive implements TokenProvider.
func (*InteractiveTokenProvider) IsInteractive() bool { return true }

// CanGetToken requires an interactive session that may show a UI.
func (*InteractiveTokenProvider) CanGetToken(req *TokenRequest) bool {
	return req.IsInteractive && req.CanShowDialog
}

// GetToken implements TokenProvider. Cancellation and timeout expiry are
// reported as a nil result, not an error.
func (p *InteractiveTokenProvider) GetToken(ctx context.Context, req *TokenRequest) (*Result, error) {
	ctx, cancel := req.interactiveContext(ctx)
	defer cancel()

	opts := []public.AcquireInteractiveOption{
		public.WithRedirectURI(redirectURI),
	}
	if req.LoginHint != "" {
		opts = append(opts, public.WithLoginHint(req.LoginHint))
	}

	result, err := p.app.AcquireTokenInteractive(ctx, Scopes, opts...)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Warnf("interactive sign-in was cancelled: %v", err)
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
