// SPDX-License-Identifier: MIT

// Package config resolves the credential provider's settings from the
// environment. Settings are loaded once per process and passed down
// explicitly; nothing in this package holds mutable global state.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

// Environment variables understood by the provider.
const (
	envPrefix = "ARTIFACTS_CREDPROVIDER"

	// SessionTokenCacheEnvVar toggles the cross-process session token cache.
	SessionTokenCacheEnvVar = envPrefix + "_SESSIONTOKENCACHE_ENABLED"
	// SessionTokenCacheLocationEnvVar overrides the cache file location.
	SessionTokenCacheLocationEnvVar = envPrefix + "_SESSIONTOKENCACHE_LOCATION"
	// WindowsIntegratedAuthEnvVar toggles integrated authentication.
	WindowsIntegratedAuthEnvVar = envPrefix + "_WINDOWSINTEGRATEDAUTHENTICATION_ENABLED"
	// BrokerEnvVar toggles use of a native authentication broker.
	BrokerEnvVar = envPrefix + "_BROKER_ENABLED"
	// AuthorityEnvVar overrides the AAD authority discovered from the feed.
	AuthorityEnvVar = envPrefix + "_AUTHORITY"
	// LoginHintEnvVar supplies a fixed login hint for account selection.
	LoginHintEnvVar = envPrefix + "_LOGINHINT"
	// SessionTimeEnvVar overrides the requested token validity in minutes.
	SessionTimeEnvVar = envPrefix + "_SESSIONTIMEMINUTES"
	// TokenTypeEnvVar forces the session token type (compact/selfdescribing).
	TokenTypeEnvVar = envPrefix + "_TOKENTYPE"
	// DeviceFlowTimeoutEnvVar bounds interactive and device-code sign-in.
	DeviceFlowTimeoutEnvVar = envPrefix + "_DEVICEFLOWTIMEOUTSECONDS"
	// SupportedHostsEnvVar extends the feed host allowlist.
	SupportedHostsEnvVar = envPrefix + "_HOSTS"
	// MsalFileCacheEnvVar toggles the persistent identity cache.
	MsalFileCacheEnvVar = envPrefix + "_MSAL_FILECACHE_ENABLED"
	// MsalFileCacheLocationEnvVar overrides the identity cache location.
	MsalFileCacheLocationEnvVar = envPrefix + "_MSAL_FILECACHE_LOCATION"
	// CanShowDialogEnvVar force-overrides the host's canShowDialog flag.
	CanShowDialogEnvVar = envPrefix + "_FORCE_CANSHOWDIALOG"
	// ClientIDEnvVar supplies a client identity for managed identity or
	// service principal authentication.
	ClientIDEnvVar = envPrefix + "_CLIENTID"
	// TenantIDEnvVar supplies the tenant for service principal authentication.
	TenantIDEnvVar = envPrefix + "_TENANTID"
	// ClientCertificateEnvVar points at a PEM file holding the service
	// principal's certificate and private key.
	ClientCertificateEnvVar = envPrefix + "_CLIENTCERTIFICATE"

	// BuildTaskAccessTokenEnvVar carries a pipeline-supplied access token.
	BuildTaskAccessTokenEnvVar = "VSS_NUGET_ACCESSTOKEN"
	// BuildTaskURIPrefixesEnvVar scopes the pipeline token to URI prefixes.
	BuildTaskURIPrefixesEnvVar = "VSS_NUGET_URI_PREFIXES"
	// BuildTaskExternalEndpointsEnvVar carries externally supplied endpoint
	// credentials as JSON.
	BuildTaskExternalEndpointsEnvVar = "VSS_NUGET_EXTERNAL_FEED_ENDPOINTS"
)

const appDirName = "artifacts-credprovider"

// defaultSupportedHosts are the feed hosts the identity-provider backed
// source will serve without a deployment-type probe. A leading dot means
// suffix match.
var defaultSupportedHosts = []string{
	".pkgs.vsts.me",          // DevFabric
	"pkgs.codedev.ms",        // DevFabric
	"pkgs.codeapp.ms",        // AppFabric
	".pkgs.visualstudio.com", // Prod
	"pkgs.dev.azure.com",     // Prod
}

// TokenType selects the kind of session token requested from the service.
type TokenType string

const (
	// TokenTypeCompact is a personal access token. Easily revocable, so it
	// may be long lived.
	TokenTypeCompact TokenType = "compact"
	// TokenTypeSelfDescribing is a self-describing session token (JWT).
	// Harder to revoke, so validity is capped.
	TokenTypeSelfDescribing TokenType = "selfdescribing"
)

// Settings holds every configuration input consumed by the resolution
// core, already validated.
type Settings struct {
	SessionTokenCacheEnabled  bool
	SessionTokenCacheLocation string

	MsalFileCacheEnabled  bool
	MsalFileCacheLocation string

	WindowsIntegratedAuthEnabled bool
	BrokerEnabled                bool

	// Authority overrides the AAD authority discovered from the feed.
	// Nil when no override is configured.
	Authority *url.URL

	LoginHint string

	// SessionTime is the preferred token validity. Zero means "use the
	// per-token-type default".
	SessionTime time.Duration

	// ForcedTokenType is empty unless the user pinned a token type.
	ForcedTokenType TokenType

	DeviceFlowTimeout time.Duration

	SupportedHosts []string

	// CanShowDialog overrides the host-supplied canShowDialog flag when
	// non-nil.
	CanShowDialog *bool

	ClientID          string
	TenantID          string
	ClientCertificate string
}

// Load reads settings from the environment.
func Load() (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)

	for _, key := range []string{
		"sessiontokencache_enabled",
		"sessiontokencache_location",
		"windowsintegratedauthentication_enabled",
		"broker_enabled",
		"authority",
		"loginhint",
		"sessiontimeminutes",
		"tokentype",
		"deviceflowtimeoutseconds",
		"hosts",
		"msal_filecache_enabled",
		"msal_filecache_location",
		"force_canshowdialog",
		"clientid",
		"tenantid",
		"clientcertificate",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	v.SetDefault("sessiontokencache_enabled", true)
	v.SetDefault("windowsintegratedauthentication_enabled", true)
	v.SetDefault("broker_enabled", false)
	v.SetDefault("msal_filecache_enabled", true)
	v.SetDefault("deviceflowtimeoutseconds", 90)

	s := &Settings{
		SessionTokenCacheEnabled:     v.GetBool("sessiontokencache_enabled"),
		SessionTokenCacheLocation:    v.GetString("sessiontokencache_location"),
		MsalFileCacheEnabled:         v.GetBool("msal_filecache_enabled"),
		MsalFileCacheLocation:        v.GetString("msal_filecache_location"),
		WindowsIntegratedAuthEnabled: v.GetBool("windowsintegratedauthentication_enabled"),
		BrokerEnabled:                v.GetBool("broker_enabled"),
		LoginHint:                    v.GetString("loginhint"),
		DeviceFlowTimeout:            time.Duration(v.GetInt("deviceflowtimeoutseconds")) * time.Second,
		ClientID:                     v.GetString("clientid"),
		TenantID:                     v.GetString("tenantid"),
		ClientCertificate:            v.GetString("clientcertificate"),
	}

	if raw := v.GetString("authority"); raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil || !parsed.IsAbs() {
			// A bad override is ignored rather than fatal so a stray env var
			// cannot break unattended restores.
			logger.Warnf("ignoring unparsable authority override %q", raw)
		} else {
			logger.Debugf("using authority override %s", parsed)
			s.Authority = parsed
		}
	}

	if minutes := v.GetFloat64("sessiontimeminutes"); minutes > 0 {
		s.SessionTime = time.Duration(minutes * float64(time.Minute))
	} else if raw := v.GetString("sessiontimeminutes"); raw != "" {
		logger.Warnf("ignoring unparsable session time override %q", raw)
	}

	switch raw := strings.ToLower(v.GetString("tokentype")); raw {
	case "":
	case string(TokenTypeCompact):
		s.ForcedTokenType = TokenTypeCompact
	case string(TokenTypeSelfDescribing):
		s.ForcedTokenType = TokenTypeSelfDescribing
	default:
		logger.Warnf("ignoring unknown token type override %q", v.GetString("tokentype"))
	}

	if raw := v.GetString("force_canshowdialog"); raw != "" {
		force := v.GetBool("force_canshowdialog")
		s.CanShowDialog = &force
	}

	s.SupportedHosts = hostsFromEnvironment(v.GetString("hosts"))

	if s.SessionTokenCacheLocation == "" {
		location, err := xdg.StateFile(filepath.Join(appDirName, "SessionTokenCache.dat"))
		if err != nil {
			return nil, fmt.Errorf("unable to resolve session token cache location: %w", err)
		}
		s.SessionTokenCacheLocation = location
	}

	if s.MsalFileCacheLocation == "" {
		location, err := xdg.StateFile(filepath.Join(appDirName, "msal.cache"))
		if err != nil {
			return nil, fmt.Errorf("unable to resolve identity cache location: %w", err)
		}
		s.MsalFileCacheLocation = location
	}

	return s, nil
}

func hostsFromEnvironment(raw string) []string {
	hosts := make([]string, 0, len(defaultSupportedHosts))
	for _, host := range strings.Split(raw, ";") {
		if host = strings.TrimSpace(host); host != "" {
			hosts = append(hosts, host)
		}
	}
	return append(hosts, defaultSupportedHosts...)
}

// HostMatches reports whether uriHost is served by host. Hosts starting
// with a dot match any subdomain; anything else must match exactly.
func HostMatches(host, uriHost string) bool {
	if strings.HasPrefix(host, ".") {
		return strings.HasSuffix(strings.ToLower(uriHost), strings.ToLower(host))
	}
	return strings.EqualFold(host, uriHost)
}
