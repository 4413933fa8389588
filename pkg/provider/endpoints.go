// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/azdo-tools/artifacts-credprovider/pkg/auth"
	"github.com/azdo-tools/artifacts-credprovider/pkg/cache"
	"github.com/azdo-tools/artifacts-credprovider/pkg/config"
	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

// sessionTokenExchanger trades a bearer token for a feed session token.
// Satisfied by vsts.SessionTokenProvider.
type sessionTokenExchanger interface {
	SessionTokenFromBearerToken(ctx context.Context, feedURI *url.URL, bearerToken string, obtainedInteractively bool) (string, error)
}

// EndpointCredential is one decoded entry of the externally supplied
// endpoint credential list. The entry kind is discriminated by which
// field is present in the JSON: a clientId makes it a service principal,
// anything else is a direct username/password pair.
type EndpointCredential interface {
	FeedEndpoint() *url.URL
}

// UsernamePasswordEndpoint is a ready-to-use credential pair.
type UsernamePasswordEndpoint struct {
	Endpoint *url.URL
	Username string
	Password string
}

// FeedEndpoint implements EndpointCredential.
func (e *UsernamePasswordEndpoint) FeedEndpoint() *url.URL { return e.Endpoint }

// ServicePrincipalEndpoint names a certificate-bound client identity to
// authenticate as for the endpoint.
type ServicePrincipalEndpoint struct {
	Endpoint               *url.URL
	ClientID               string
	CertificateFilePath    string
	CertificateSubjectName string
}

// FeedEndpoint implements EndpointCredential.
func (e *ServicePrincipalEndpoint) FeedEndpoint() *url.URL { return e.Endpoint }

type rawEndpointCredential struct {
	Endpoint               string `json:"endpoint"`
	Username               string `json:"username"`
	Password               string `json:"password"`
	ClientID               string `json:"clientId"`
	CertificateFilePath    string `json:"clientCertificateFilePath"`
	CertificateSubjectName string `json:"clientCertificateSubjectName"`
}

type endpointCredentialList struct {
	EndpointCredentials []rawEndpointCredential `json:"endpointCredentials"`
}

// ParseEndpointCredentials decodes the endpoint credential JSON into a
// map keyed by normalized endpoint URI. Entries that cannot be decoded
// into exactly one variant are skipped with a warning; the first entry
// for an endpoint wins.
func ParseEndpointCredentials(raw string) (map[string]EndpointCredential, error) {
	credentials := make(map[string]EndpointCredential)
	if strings.TrimSpace(raw) == "" {
		return credentials, nil
	}

	// Single-quoted pseudo JSON is a recurring misconfiguration in
	// pipeline variable groups.
	if strings.Contains(raw, "':") {
		logger.Warnf("endpoint credential JSON appears to use single quotes; JSON requires double quotes")
	}

	var list endpointCredentialList
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("unable to parse endpoint credentials: %w", err)
	}

	for _, entry := range list.EndpointCredentials {
		endpoint, err := url.Parse(entry.Endpoint)
		if err != nil || !endpoint.IsAbs() {
			logger.Warnf("skipping endpoint credential with unparsable endpoint %q", entry.Endpoint)
			continue
		}

		decoded, err := decodeEndpointCredential(endpoint, entry)
		if err != nil {
			logger.Warnf("skipping endpoint credential for %s: %v", endpoint, err)
			continue
		}

		key := cache.NormalizeURI(endpoint.String())
		if _, ok := credentials[key]; !ok {
			credentials[key] = decoded
		}
	}

	return credentials, nil
}

func decodeEndpointCredential(endpoint *url.URL, entry rawEndpointCredential) (EndpointCredential, error) {
	if entry.ClientID != "" {
		if entry.Password != "" {
			return nil, fmt.Errorf("entry carries both a clientId and a password")
		}
		if entry.CertificateFilePath != "" && entry.CertificateSubjectName != "" {
			return nil, fmt.Errorf("entry carries both a certificate file path and a subject name")
		}
		return &ServicePrincipalEndpoint{
			Endpoint:               endpoint,
			ClientID:               entry.ClientID,
			CertificateFilePath:    entry.CertificateFilePath,
			CertificateSubjectName: entry.CertificateSubjectName,
		}, nil
	}

	username := entry.Username
	if username == "" {
		username = TokenUsername
	}
	return &UsernamePasswordEndpoint{
		Endpoint: endpoint,
		Username: username,
		Password: entry.Password,
	}, nil
}

// ExternalEndpointsSource serves credentials supplied per endpoint
// through the environment, typically by a pipeline service connection.
// Username/password entries are returned as-is; service principal
// entries are authenticated and exchanged for a session token. Never
// cached: the environment owns the credential lifetime.
type ExternalEndpointsSource struct {
	credentials map[string]EndpointCredential
	settings    *config.Settings
	exchanger   sessionTokenExchanger

	// acquireBearer is swappable in tests.
	acquireBearer func(ctx context.Context, req *auth.TokenRequest) (*auth.Result, error)
}

var _ CredentialSource = (*ExternalEndpointsSource)(nil)

// NewExternalEndpointsSource creates a source from explicit credentials.
func NewExternalEndpointsSource(credentials map[string]EndpointCredential, settings *config.Settings, exchanger sessionTokenExchanger) *ExternalEndpointsSource {
	return &ExternalEndpointsSource{
		credentials:   credentials,
		settings:      settings,
		exchanger:     exchanger,
		acquireBearer: auth.NewServicePrincipalTokenProvider().GetToken,
	}
}

// NewExternalEndpointsSourceFromEnvironment parses the endpoint
// credential environment variable. Malformed JSON disables the source
// rather than failing resolution.
func NewExternalEndpointsSourceFromEnvironment(settings *config.Settings, exchanger sessionTokenExchanger) *ExternalEndpointsSource {
	credentials, err := ParseEndpointCredentials(os.Getenv(config.BuildTaskExternalEndpointsEnvVar))
	if err != nil {
		logger.Warnf("ignoring external endpoint credentials: %v", err)
		credentials = nil
	}
	return NewExternalEndpointsSource(credentials, settings, exchanger)
}

// Name implements CredentialSource.
func (*ExternalEndpointsSource) Name() string { return "VstsBuildTaskServiceEndpointCredentialProvider" }

// Cacheable implements CredentialSource.
func (*ExternalEndpointsSource) Cacheable() bool { return false }

// CanProvide implements CredentialSource.
func (s *ExternalEndpointsSource) CanProvide(_ context.Context, uri *url.URL) (bool, error) {
	_, ok := s.credentials[cache.NormalizeURI(uri.String())]
	return ok, nil
}

// Resolve implements CredentialSource.
func (s *ExternalEndpointsSource) Resolve(ctx context.Context, req *Request) (*Response, error) {
	credential, ok := s.credentials[cache.NormalizeURI(req.URI.String())]
	if !ok {
		return nil, nil
	}

	switch credential := credential.(type) {
	case *UsernamePasswordEndpoint:
		if req.IsRetry {
			// The pair came from the environment; re-resolving yields the
			// same rejected value.
			return &Response{
				Username:     credential.Username,
				Message:      "the endpoint credentials for " + req.URI.String() + " were rejected and cannot be refreshed",
				ResponseCode: ResponseError,
			}, nil
		}
		return &Response{
			Username:            credential.Username,
			Password:            credential.Password,
			AuthenticationTypes: []string{"Basic"},
			ResponseCode:        ResponseSuccess,
		}, nil

	case *ServicePrincipalEndpoint:
		return s.resolveServicePrincipal(ctx, req, credential)

	default:
		return nil, nil
	}
}

func (s *ExternalEndpointsSource) resolveServicePrincipal(ctx context.Context, req *Request, credential *ServicePrincipalEndpoint) (*Response, error) {
	if credential.CertificateFilePath == "" {
		// Subject-name lookup needs an OS certificate store, which has no
		// portable equivalent here.
		logger.Warnf("endpoint credential for %s names certificate subject %q but only clientCertificateFilePath is supported",
			req.URI, credential.CertificateSubjectName)
		return nil, nil
	}

	tokenReq := &auth.TokenRequest{
		URI:               req.URI,
		IsRetry:           req.IsRetry,
		ClientID:          credential.ClientID,
		TenantID:          s.settings.TenantID,
		ClientCertificate: credential.CertificateFilePath,
	}

	result, err := s.acquireBearer(ctx, tokenReq)
	if err != nil {
		return nil, err
	}

	sessionToken, err := s.exchanger.SessionTokenFromBearerToken(ctx, req.URI, result.AccessToken, false)
	if err != nil {
		return nil, err
	}

	return successResponse(sessionToken), nil
}
