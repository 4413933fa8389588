// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"net/url"
	"os"
	"strings"

	"github.com/azdo-tools/artifacts-credprovider/pkg/cache"
	"github.com/azdo-tools/artifacts-credprovider/pkg/config"
	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

// BuildTaskSource serves the access token a pipeline build task placed
// in the environment. It is scoped to the advertised URI prefixes and is
// never cached: the pipeline owns the token's lifetime.
type BuildTaskSource struct {
	accessToken string
	uriPrefixes []string
}

var _ CredentialSource = (*BuildTaskSource)(nil)

// NewBuildTaskSource creates a source from explicit values.
func NewBuildTaskSource(accessToken string, uriPrefixes []string) *BuildTaskSource {
	return &BuildTaskSource{accessToken: accessToken, uriPrefixes: uriPrefixes}
}

// NewBuildTaskSourceFromEnvironment reads the pipeline environment.
func NewBuildTaskSourceFromEnvironment() *BuildTaskSource {
	var prefixes []string
	for _, prefix := range strings.Split(os.Getenv(config.BuildTaskURIPrefixesEnvVar), ";") {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			prefixes = append(prefixes, prefix)
		}
	}
	return NewBuildTaskSource(os.Getenv(config.BuildTaskAccessTokenEnvVar), prefixes)
}

// Name implements CredentialSource.
func (*BuildTaskSource) Name() string { return "VstsBuildTaskCredentialProvider" }

// Cacheable implements CredentialSource.
func (*BuildTaskSource) Cacheable() bool { return false }

// CanProvide requires a token and, when prefixes are advertised, a
// matching URI.
func (s *BuildTaskSource) CanProvide(_ context.Context, uri *url.URL) (bool, error) {
	if s.accessToken == "" {
		return false, nil
	}
	if len(s.uriPrefixes) == 0 {
		return true, nil
	}

	normalized := cache.NormalizeURI(uri.String())
	for _, prefix := range s.uriPrefixes {
		if strings.HasPrefix(strings.ToLower(normalized), strings.ToLower(cache.NormalizeURI(prefix))) {
			return true, nil
		}
	}

	logger.Debugf("%s matches no build task URI prefix", uri)
	return false, nil
}

// Resolve implements CredentialSource. A retry is reported as an error:
// the environment token is fixed, so a rejected token cannot be replaced
// by re-resolving.
func (s *BuildTaskSource) Resolve(_ context.Context, req *Request) (*Response, error) {
	if req.IsRetry {
		return &Response{
			Message:      "the build task access token for " + req.URI.String() + " was rejected and cannot be refreshed",
			ResponseCode: ResponseError,
		}, nil
	}
	return successResponse(s.accessToken), nil
}
