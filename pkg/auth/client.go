// SPDX-License-Identifier: MIT

package auth

import (
	"net/url"
	"runtime"
	"strings"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
	"github.com/google/uuid"

	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

// ClientID is the Azure Artifacts application ID.
const ClientID = "d5a56ea4-7369-46b8-a538-c370805301bf"

// Resource identifies the Azure DevOps service in token requests.
const Resource = "499b84ac-1321-427f-aa17-267ca6975798"

// Scopes requested for every bearer token.
var Scopes = []string{Resource + "/.default"}

const redirectURI = "http://localhost"

// ClientOptions configure the shared public client.
type ClientOptions struct {
	// Accessor persists the identity cache across processes; nil keeps it
	// in memory only.
	Accessor cache.ExportReplace

	// EnableBroker asks for an OS-native authentication broker. The Go
	// identity library has no broker IPC, so this currently only widens
	// logging; eligibility rules are unaffected.
	EnableBroker bool
}

// NewPublicClient builds the MSAL public client for the given authority.
func NewPublicClient(authority *url.URL, opts ClientOptions) (public.Client, error) {
	if opts.EnableBroker {
		logger.Debugf("native broker requested but not available on %s, using browser flows", runtime.GOOS)
	}

	msalOpts := []public.Option{
		public.WithAuthority(authority.String()),
	}
	if opts.Accessor != nil {
		msalOpts = append(msalOpts, public.WithCache(opts.Accessor))
	}

	return public.New(ClientID, msalOpts...)
}

// TenantFromAuthority extracts the tenant GUID from an authority URL
// such as https://login.microsoftonline.com/<tenant>. Authorities with a
// symbolic tenant (organizations, common) yield uuid.Nil.
func TenantFromAuthority(authority *url.URL) uuid.UUID {
	tenant, err := uuid.Parse(strings.Trim(authority.Path, "/"))
	if err != nil {
		logger.Debugf("authority %s does not name a tenant", authority)
		return uuid.Nil
	}
	return tenant
}
