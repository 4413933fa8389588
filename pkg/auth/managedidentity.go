// SPDX-License-Identifier: MIT

package auth

import (
	"context"

	mi "github.com/AzureAD/microsoft-authentication-library-for-go/apps/managedidentity"
	"github.com/google/uuid"

	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

// ManagedIdentityTokenProvider authenticates as an Azure managed
// identity. It never triggers on interactivity flags, only on an
// explicitly supplied client identity.
type ManagedIdentityTokenProvider struct{}

var _ TokenProvider = (*ManagedIdentityTokenProvider)(nil)

// NewManagedIdentityTokenProvider creates the managed-identity strategy.
func NewManagedIdentityTokenProvider() *ManagedIdentityTokenProvider {
	return &ManagedIdentityTokenProvider{}
}

// Name implements TokenProvider.
func (*ManagedIdentityTokenProvider) Name() string { return "MSAL Managed Identity" }

// IsInteractive implements TokenProvider.
func (*ManagedIdentityTokenProvider) IsInteractive() bool { return false }

// CanGetToken requires a client identity without a certificate.
func (*ManagedIdentityTokenProvider) CanGetToken(req *TokenRequest) bool {
	return req.ClientID != "" && req.ClientCertificate == ""
}

// GetToken implements TokenProvider. An unreachable IMDS endpoint or a
// rejected identity means "not applicable", not an error: the host may
// simply not be an Azure resource.
func (*ManagedIdentityTokenProvider) GetToken(ctx context.Context, req *TokenRequest) (*Result, error) {
	client, err := mi.New(managedIdentityID(req.ClientID))
	if err != nil {
		logger.Debugf("managed identity client unavailable: %v", err)
		return nil, nil
	}

	result, err := client.AcquireToken(ctx, Resource)
	if err != nil {
		logger.Debugf("managed identity acquisition failed: %v", err)
		return nil, nil
	}

	return &Result{
		AccessToken: result.AccessToken,
		ExpiresOn:   result.ExpiresOn,
		Source:      TokenSourceIdentityProvider,
	}, nil
}

// managedIdentityID treats a GUID client id as a user-assigned identity
// and anything else as system-assigned.
func managedIdentityID(clientID string) mi.ID {
	if id, err := uuid.Parse(clientID); err == nil {
		return mi.UserAssignedClientID(id.String())
	}
	return mi.SystemAssigned()
}
