// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"net/url"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"

	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

// SilentTokenProvider reuses identities already present in the identity
// library's account store, letting the library refresh tokens as needed.
type SilentTokenProvider struct {
	app       public.Client
	authority *url.URL
	loginHint string
}

var _ TokenProvider = (*SilentTokenProvider)(nil)

// NewSilentTokenProvider creates the cache-silent strategy.
func NewSilentTokenProvider(app public.Client, authority *url.URL, loginHint string) *SilentTokenProvider {
	return &SilentTokenProvider{app: app, authority: authority, loginHint: loginHint}
}

// Name implements TokenProvider.
func (*SilentTokenProvider) Name() string { return "MSAL Silent" }

// IsInteractive implements TokenProvider.
func (*SilentTokenProvider) IsInteractive() bool { return false }

// CanGetToken always accepts: the identity library decides whether any
// cached account can still produce a valid token.
func (*SilentTokenProvider) CanGetToken(*TokenRequest) bool { return true }

// GetToken tries each applicable cached account in priority order and
// returns the first token the library hands back silently.
func (p *SilentTokenProvider) GetToken(ctx context.Context, req *TokenRequest) (*Result, error) {
	accounts, err := p.app.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	for _, account := range accounts {
		logger.Debugf(`found account in cache: %s\%s`, account.Realm, account.PreferredUsername)
	}

	loginHint := req.LoginHint
	if loginHint == "" {
		loginHint = p.loginHint
	}

	applicable := ApplicableAccounts(accounts, TenantFromAuthority(p.authority), loginHint)

	for _, ranked := range applicable {
		logger.Debugf("attempting silent acquisition for %s", ranked.CanonicalName)

		opts := []public.AcquireSilentOption{
			public.WithSilentAccount(ranked.Account),
		}
		if tenant := silentTenantID(ranked.Account); tenant != "" {
			opts = append(opts, public.WithTenantID(tenant))
		}

		result, err := p.app.AcquireTokenSilent(ctx, Scopes, opts...)
		if err != nil {
			// Interaction required, expired grant, and similar conditions all
			// mean "this account has no silent answer"; move on to the next.
			logger.Debugf("silent acquisition failed for %s: %v", ranked.CanonicalName, err)
			continue
		}

		return &Result{
			AccessToken: result.AccessToken,
			ExpiresOn:   result.ExpiresOn,
			Source:      TokenSourceCache,
		}, nil
	}

	return nil, nil
}
