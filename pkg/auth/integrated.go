// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"os"
	"runtime"
	"strings"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"

	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

// IntegratedAuthSupported reports whether the host OS can authenticate
// with the logged-in identity without prompting.
func IntegratedAuthSupported() bool {
	return runtime.GOOS == "windows"
}

// IntegratedTokenProvider authenticates silently as the OS logged-in
// identity. The identity library exposes no dedicated integrated-auth
// exchange, so the strategy resolves the domain user principal name and
// constrains a silent acquisition to it; with a domain-joined machine the
// broker-fed account store satisfies it without any prompt.
type IntegratedTokenProvider struct {
	app public.Client
}

var _ TokenProvider = (*IntegratedTokenProvider)(nil)

// NewIntegratedTokenProvider creates the integrated-auth strategy.
func NewIntegratedTokenProvider(app public.Client) *IntegratedTokenProvider {
	return &IntegratedTokenProvider{app: app}
}

// Name implements TokenProvider.
func (*IntegratedTokenProvider) Name() string { return "MSAL Windows Integrated Authentication" }

// IsInteractive implements TokenProvider.
func (*IntegratedTokenProvider) IsInteractive() bool { return false }

// CanGetToken requires OS support and the request opting in.
func (*IntegratedTokenProvider) CanGetToken(req *TokenRequest) bool {
	return IntegratedAuthSupported() && req.IsWindowsIntegratedAuthEnabled
}

// GetToken implements TokenProvider.
func (p *IntegratedTokenProvider) GetToken(ctx context.Context, _ *TokenRequest) (*Result, error) {
	upn := userPrincipalName()
	if upn == "" {
		logger.Debugf("could not determine the logged-in user principal name")
		return nil, nil
	}

	accounts, err := p.app.Accounts(ctx)
	if err != nil {
		return nil, err
	}

	for _, account := range accounts {
		if !strings.EqualFold(account.PreferredUsername, upn) {
			continue
		}

		result, err := p.app.AcquireTokenSilent(ctx, Scopes, public.WithSilentAccount(account))
		if err != nil {
			logger.Debugf("integrated acquisition failed for %s: %v", upn, err)
			return nil, nil
		}

		return &Result{
			AccessToken: result.AccessToken,
			ExpiresOn:   result.ExpiresOn,
			Source:      TokenSourceIdentityProvider,
		}, nil
	}

	logger.Debugf("no cached account matches the logged-in identity %s", upn)
	return nil, nil
}

// userPrincipalName derives user@domain from the environment on Windows.
func userPrincipalName() string {
	user := os.Getenv("USERNAME")
	domain := os.Getenv("USERDNSDOMAIN")
	if user == "" || domain == "" {
		return ""
	}
	return user + "@" + strings.ToLower(domain)
}
