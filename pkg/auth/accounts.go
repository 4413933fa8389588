// SPDX-License-Identifier: MIT

package auth

import (
	"fmt"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
	"github.com/google/uuid"
)

// Well-known tenants.
var (
	// FirstPartyTenant is the tenant MSA (personal) accounts authenticate
	// through when talking to the service.
	FirstPartyTenant = uuid.MustParse("f8cdef31-a31e-4b4a-93e4-5f571e91255a")

	// MsaAccountTenant is the home tenant of personal/consumer accounts.
	MsaAccountTenant = uuid.MustParse("9188040d-6c67-4c5b-b112-36a304b66dad")
)

// RankedAccount pairs a cached account with its canonical display name.
type RankedAccount struct {
	Account       public.Account
	CanonicalName string
}

// ApplicableAccounts ranks cached accounts against the target tenant and
// an optional login hint, most preferred first:
//
//  1. a username equal to the login hint goes to the front;
//  2. an account homed in the target tenant is a candidate;
//  3. a personal (MSA) account is a candidate when the target tenant is
//     the first-party tenant or unknown;
//  4. everything else is excluded.
func ApplicableAccounts(accounts []public.Account, targetTenant uuid.UUID, loginHint string) []RankedAccount {
	var hintMatches, candidates []RankedAccount

	for _, account := range accounts {
		ranked := RankedAccount{
			Account:       account,
			CanonicalName: fmt.Sprintf(`%s\%s`, account.Realm, account.PreferredUsername),
		}

		// If a login hint is provided and matches, try that first
		if loginHint != "" && account.PreferredUsername == loginHint {
			hintMatches = append(hintMatches, ranked)
			continue
		}

		accountTenant, err := uuid.Parse(account.Realm)
		if err != nil {
			continue
		}

		if accountTenant == targetTenant {
			candidates = append(candidates, ranked)
		} else if accountTenant == MsaAccountTenant && (targetTenant == FirstPartyTenant || targetTenant == uuid.Nil) {
			candidates = append(candidates, ranked)
		}
	}

	return append(hintMatches, candidates...)
}

// silentTenantID works around MSA accounts being routed to the consumers
// tenant, which the service's application does not support. Silent
// requests for MSA accounts are pinned to the first-party tenant.
func silentTenantID(account public.Account) string {
	if tenant, err := uuid.Parse(account.Realm); err == nil && tenant == MsaAccountTenant {
		return FirstPartyTenant.String()
	}
	return ""
}
