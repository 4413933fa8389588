// SPDX-License-Identifier: MIT

package auth

import (
	"net/url"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
)

// ProviderChain assembles the strategies for one authority, in fixed
// precedence: earlier entries are cheaper and less disruptive, later
// ones require progressively more user interaction or configuration.
//
//  1. service principal (certificate-bound client id)
//  2. managed identity (client id without certificate)
//  3. cache-silent reuse of a previous credential
//  4. integrated authentication with the OS login identity
//  5. interactive browser sign-in
//  6. device code, usable without a local browser or display
//
// Eligibility predicates gate each entry per request; the chain itself
// is always complete.
func ProviderChain(app public.Client, authority *url.URL, loginHint string) []TokenProvider {
	return []TokenProvider{
		NewServicePrincipalTokenProvider(),
		NewManagedIdentityTokenProvider(),
		NewSilentTokenProvider(app, authority, loginHint),
		NewIntegratedTokenProvider(app),
		NewInteractiveTokenProvider(app),
		NewDeviceCodeTokenProvider(app),
	}
}
