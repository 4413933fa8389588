// SPDX-License-Identifier: MIT

package auth

import (
	"context"
	"fmt"
	"os"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/confidential"

	"github.com/azdo-tools/artifacts-credprovider/pkg/errors"
)

const defaultAADBase = "https://login.microsoftonline.com"

// ServicePrincipalTokenProvider authenticates as a certificate-bound
// service principal. No user is involved at all.
type ServicePrincipalTokenProvider struct{}

var _ TokenProvider = (*ServicePrincipalTokenProvider)(nil)

// NewServicePrincipalTokenProvider creates the service-principal strategy.
func NewServicePrincipalTokenProvider() *ServicePrincipalTokenProvider {
	return &ServicePrincipalTokenProvider{}
}

// Name implements TokenProvider.
func (*ServicePrincipalTokenProvider) Name() string { return "MSAL Service Principal" }

// IsInteractive implements TokenProvider.
func (*ServicePrincipalTokenProvider) IsInteractive() bool { return false }

// CanGetToken requires both a client identity and a certificate. A
// missing tenant is a configuration problem surfaced from GetToken, not
// an eligibility question.
func (*ServicePrincipalTokenProvider) CanGetToken(req *TokenRequest) bool {
	return req.ClientID != "" && req.ClientCertificate != ""
}

// GetToken implements TokenProvider.
func (*ServicePrincipalTokenProvider) GetToken(ctx context.Context, req *TokenRequest) (*Result, error) {
	if req.TenantID == "" {
		return nil, errors.NewConfigurationError("service principal authentication requires a tenant id", nil)
	}

	pemData, err := os.ReadFile(req.ClientCertificate)
	if err != nil {
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("unable to read client certificate %s", req.ClientCertificate), err)
	}

	certs, key, err := confidential.CertFromPEM(pemData, "")
	if err != nil {
		return nil, errors.NewConfigurationError("unable to parse client certificate", err)
	}

	cred, err := confidential.NewCredFromCert(certs, key)
	if err != nil {
		return nil, errors.NewConfigurationError("unable to build certificate credential", err)
	}

	client, err := confidential.New(
		fmt.Sprintf("%s/%s", defaultAADBase, req.TenantID),
		req.ClientID,
		cred,
		confidential.WithX5C(),
	)
	if err != nil {
		return nil, err
	}

	result, err := client.AcquireTokenByCredential(ctx, Scopes)
	if err != nil {
		return nil, err
	}

	return &Result{
		AccessToken: result.AccessToken,
		ExpiresOn:   result.ExpiresOn,
		Source:      TokenSourceIdentityProvider,
	}, nil
}
