// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"net/url"
	"os"

	msalcachelib "github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"

	"github.com/azdo-tools/artifacts-credprovider/pkg/auth"
	"github.com/azdo-tools/artifacts-credprovider/pkg/auth/msalcache"
	"github.com/azdo-tools/artifacts-credprovider/pkg/config"
	"github.com/azdo-tools/artifacts-credprovider/pkg/errors"
	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
	"github.com/azdo-tools/artifacts-credprovider/pkg/vsts"
)

// chainBuilder assembles the token provider chain for a feed. It exists
// as a seam so tests can substitute fake strategies for the identity
// library.
type chainBuilder func(ctx context.Context, uri *url.URL) ([]auth.TokenProvider, error)

// IdentitySource resolves credentials through the identity provider: it
// discovers the feed's authority, drives the token provider chain for a
// bearer token, and exchanges that for a session token. Results are
// cacheable because session tokens outlive a single resolution.
type IdentitySource struct {
	settings  *config.Settings
	authUtil  *vsts.AuthUtil
	exchanger sessionTokenExchanger

	buildChain chainBuilder
}

var _ CredentialSource = (*IdentitySource)(nil)

// NewIdentitySource creates the identity-provider backed source.
func NewIdentitySource(settings *config.Settings, authUtil *vsts.AuthUtil, exchanger sessionTokenExchanger) *IdentitySource {
	s := &IdentitySource{
		settings:  settings,
		authUtil:  authUtil,
		exchanger: exchanger,
	}
	s.buildChain = s.defaultChain
	return s
}

// Name implements CredentialSource.
func (*IdentitySource) Name() string { return "VstsCredentialProvider" }

// Cacheable implements CredentialSource.
func (*IdentitySource) Cacheable() bool { return true }

// CanProvide steps aside when the pipeline environment carries its own
// credentials, accepts feeds on a known Azure Artifacts host outright,
// and otherwise probes the feed, answering only for the hosted service.
// On-premises servers authenticate with NTLM or Kerberos, not AAD.
func (s *IdentitySource) CanProvide(ctx context.Context, uri *url.URL) (bool, error) {
	for _, envVar := range []string{
		config.BuildTaskAccessTokenEnvVar,
		config.BuildTaskURIPrefixesEnvVar,
		config.BuildTaskExternalEndpointsEnvVar,
	} {
		if os.Getenv(envVar) != "" {
			logger.Debugf("%s is set, deferring to the build task sources", envVar)
			return false, nil
		}
	}

	for _, host := range s.settings.SupportedHosts {
		if config.HostMatches(host, uri.Hostname()) {
			return true, nil
		}
	}

	deployment, err := s.authUtil.DeploymentType(ctx, uri)
	if err != nil {
		logger.Debugf("unable to classify %s: %v", uri, err)
		return false, nil
	}
	return deployment == vsts.DeploymentHosted, nil
}

// Resolve implements CredentialSource. A nil response means no strategy
// could produce a token; exchange failures are terminal.
func (s *IdentitySource) Resolve(ctx context.Context, req *Request) (*Response, error) {
	canShowDialog := req.CanShowDialog
	if s.settings.CanShowDialog != nil {
		canShowDialog = *s.settings.CanShowDialog
	}

	if req.IsRetry && req.IsNonInteractive {
		// A rejected token cannot be replaced without the user, and the
		// host forbids involving them.
		logger.Warnf("cannot re-authenticate for %s: the previous token was rejected and interaction is not allowed", req.URI)
		return nil, nil
	}

	tokenReq := &auth.TokenRequest{
		URI:                            req.URI,
		IsRetry:                        req.IsRetry,
		IsInteractive:                  !req.IsNonInteractive,
		CanShowDialog:                  canShowDialog,
		IsWindowsIntegratedAuthEnabled: s.settings.WindowsIntegratedAuthEnabled,
		LoginHint:                      s.settings.LoginHint,
		InteractiveTimeout:             s.settings.DeviceFlowTimeout,
		DeviceCodeCallback:             promptDeviceCode,
		ClientID:                       s.settings.ClientID,
		TenantID:                       s.settings.TenantID,
		ClientCertificate:              s.settings.ClientCertificate,
	}

	providers, err := s.buildChain(ctx, req.URI)
	if err != nil {
		return nil, err
	}

	result, provider, err := auth.RunChain(ctx, providers, tokenReq)
	if err != nil {
		if errors.IsType(err, errors.ErrAuthenticationFailed) || errors.IsType(err, errors.ErrCancelled) {
			logger.Warnf("bearer token acquisition for %s failed: %v", req.URI, err)
			return nil, nil
		}
		return nil, err
	}

	logger.Debugf("bearer token obtained from %s", result.Source)

	sessionToken, err := s.exchanger.SessionTokenFromBearerToken(ctx, req.URI, result.AccessToken, provider.IsInteractive())
	if err != nil {
		return nil, err
	}

	return successResponse(sessionToken), nil
}

// defaultChain discovers the feed's authority and assembles the full
// strategy chain against it, with the cross-process identity cache
// attached when enabled.
func (s *IdentitySource) defaultChain(ctx context.Context, uri *url.URL) ([]auth.TokenProvider, error) {
	authority, err := s.authUtil.AADAuthority(ctx, uri)
	if err != nil {
		return nil, err
	}
	logger.Debugf("using AAD authority %s for %s", authority, uri)

	var accessor msalcachelib.ExportReplace
	if s.settings.MsalFileCacheEnabled {
		accessor = msalcache.New(s.settings.MsalFileCacheLocation)
	}

	app, err := auth.NewPublicClient(authority, auth.ClientOptions{
		Accessor:     accessor,
		EnableBroker: s.settings.BrokerEnabled,
	})
	if err != nil {
		return nil, err
	}

	return auth.ProviderChain(app, authority, s.settings.LoginHint), nil
}

func promptDeviceCode(verificationURL, userCode, message string) error {
	if message != "" {
		logger.Infof("%s", message)
		return nil
	}
	logger.Infof("to sign in, open %s and enter the code %s", verificationURL, userCode)
	return nil
}
