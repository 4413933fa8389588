// SPDX-License-Identifier: MIT

// Package vsts talks to the Azure DevOps service boundary: discovering
// the AAD authority and token-service endpoint a feed announces, and
// exchanging bearer tokens for feed session tokens.
package vsts

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

// Response headers announced by Azure DevOps.
const (
	// HeaderResourceTenant carries the AAD tenant backing the organization.
	HeaderResourceTenant = "X-VSS-ResourceTenant"
	// HeaderAuthorizationEndpoint carries the token service base URL.
	HeaderAuthorizationEndpoint = "X-VSS-AuthorizationEndpoint"
	// HeaderE2EID is present on on-premises deployments.
	HeaderE2EID = "X-VSS-E2EID"
)

const defaultAuthority = "https://login.microsoftonline.com/organizations"

// DeploymentType classifies what kind of service answered the feed URI.
type DeploymentType int

// Deployment types.
const (
	DeploymentExternal DeploymentType = iota
	DeploymentHosted
	DeploymentOnPrem
)

// AuthUtil probes a feed URI once and answers authority, endpoint, and
// deployment questions from the memoized response headers.
type AuthUtil struct {
	httpClient *http.Client

	// authorityOverride short-circuits discovery when the user pinned an
	// authority through configuration.
	authorityOverride *url.URL

	mu      sync.Mutex
	headers map[string]http.Header
}

// NewAuthUtil creates an AuthUtil. A nil httpClient uses a default with
// a conservative timeout; authorityOverride may be nil.
func NewAuthUtil(httpClient *http.Client, authorityOverride *url.URL) *AuthUtil {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &AuthUtil{
		httpClient:        httpClient,
		authorityOverride: authorityOverride,
		headers:           map[string]http.Header{},
	}
}

// AADAuthority returns the identity authority for uri: the configured
// override, else the authorization_uri the feed's WWW-Authenticate
// header names, else the common organizations authority (which covers
// MSA passthrough when no tenant can be determined).
func (a *AuthUtil) AADAuthority(ctx context.Context, uri *url.URL) (*url.URL, error) {
	if a.authorityOverride != nil {
		return a.authorityOverride, nil
	}

	headers, err := a.responseHeaders(ctx, uri)
	if err != nil {
		return nil, err
	}

	for _, challenge := range headers.Values("Www-Authenticate") {
		if authority := authorityFromChallenge(challenge); authority != nil {
			logger.Debugf("found AAD authority %s in authenticate headers", authority)
			return authority, nil
		}
	}

	logger.Debugf("no AAD authority in authenticate headers, using %s", defaultAuthority)
	return url.Parse(defaultAuthority)
}

// AuthorizationEndpoint returns the token service base URL the feed
// announces, or nil when the feed announces none.
func (a *AuthUtil) AuthorizationEndpoint(ctx context.Context, uri *url.URL) (*url.URL, error) {
	headers, err := a.responseHeaders(ctx, uri)
	if err != nil {
		return nil, err
	}

	for _, endpoint := range headers.Values(HeaderAuthorizationEndpoint) {
		parsed, err := url.Parse(endpoint)
		if err == nil && parsed.IsAbs() {
			return parsed, nil
		}
		logger.Debugf("ignoring unparsable authorization endpoint %q", endpoint)
	}

	return nil, nil
}

// DeploymentType probes uri and classifies the deployment from its
// response headers.
func (a *AuthUtil) DeploymentType(ctx context.Context, uri *url.URL) (DeploymentType, error) {
	headers, err := a.responseHeaders(ctx, uri)
	if err != nil {
		return DeploymentExternal, err
	}

	// Hosted only allows https.
	if strings.EqualFold(uri.Scheme, "https") &&
		headers.Get(HeaderResourceTenant) != "" && headers.Get(HeaderAuthorizationEndpoint) != "" {
		return DeploymentHosted, nil
	}

	if headers.Get(HeaderE2EID) != "" {
		return DeploymentOnPrem, nil
	}

	return DeploymentExternal, nil
}

// responseHeaders pings uri (once per process, memoized) and returns the
// response headers. Transient network failures are retried briefly.
func (a *AuthUtil) responseHeaders(ctx context.Context, uri *url.URL) (http.Header, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := uri.String()
	if headers, ok := a.headers[key]; ok {
		return headers, nil
	}

	headers, err := backoff.Retry(ctx, func() (http.Header, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		return resp.Header, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", key, err)
	}

	a.headers[key] = headers
	return headers, nil
}

// authorityFromChallenge extracts authorization_uri from one
// WWW-Authenticate value. MSA-backed organizations expose a bare
// "Bearer" challenge with no parameter.
func authorityFromChallenge(challenge string) *url.URL {
	scheme, params, ok := strings.Cut(strings.TrimSpace(challenge), " ")
	if !ok || scheme != "Bearer" {
		return nil
	}

	for _, param := range strings.Split(params, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(name, "authorization_uri") {
			continue
		}

		parsed, err := url.Parse(strings.Trim(value, `"`))
		if err == nil && parsed.IsAbs() {
			return parsed
		}
	}

	return nil
}
