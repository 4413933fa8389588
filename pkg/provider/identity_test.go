// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azdo-tools/artifacts-credprovider/pkg/auth"
	"github.com/azdo-tools/artifacts-credprovider/pkg/config"
	"github.com/azdo-tools/artifacts-credprovider/pkg/errors"
	"github.com/azdo-tools/artifacts-credprovider/pkg/vsts"
)

type fakeStrategy struct {
	name        string
	interactive bool
	eligible    func(*auth.TokenRequest) bool
	token       string
	calls       int
}

func (s *fakeStrategy) Name() string        { return s.name }
func (s *fakeStrategy) IsInteractive() bool { return s.interactive }

func (s *fakeStrategy) CanGetToken(req *auth.TokenRequest) bool {
	if s.eligible == nil {
		return true
	}
	return s.eligible(req)
}

func (s *fakeStrategy) GetToken(_ context.Context, _ *auth.TokenRequest) (*auth.Result, error) {
	s.calls++
	if s.token == "" {
		return nil, nil
	}
	return &auth.Result{AccessToken: s.token, Source: auth.TokenSourceIdentityProvider}, nil
}

type fakeExchanger struct {
	token       string
	err         error
	bearer      string
	interactive bool
	calls       int
}

func (e *fakeExchanger) SessionTokenFromBearerToken(_ context.Context, _ *url.URL, bearerToken string, obtainedInteractively bool) (string, error) {
	e.calls++
	e.bearer = bearerToken
	e.interactive = obtainedInteractively
	return e.token, e.err
}

func newTestIdentitySource(settings *config.Settings, exchanger sessionTokenExchanger, strategies ...auth.TokenProvider) *IdentitySource {
	s := NewIdentitySource(settings, vsts.NewAuthUtil(nil, nil), exchanger)
	s.buildChain = func(context.Context, *url.URL) ([]auth.TokenProvider, error) {
		return strategies, nil
	}
	return s
}

func TestIdentitySourceResolvesThroughChain(t *testing.T) {
	t.Parallel()

	silent := &fakeStrategy{name: "silent"}
	integrated := &fakeStrategy{name: "integrated"}
	interactive := &fakeStrategy{name: "interactive", interactive: true, token: "AAD-1",
		eligible: func(req *auth.TokenRequest) bool { return req.IsInteractive && req.CanShowDialog }}

	exchanger := &fakeExchanger{token: "SESSION-1"}
	source := newTestIdentitySource(&config.Settings{}, exchanger, silent, integrated, interactive)

	resp, err := source.Resolve(context.Background(), testRequest(t))
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, ResponseSuccess, resp.ResponseCode)
	assert.Equal(t, TokenUsername, resp.Username)
	assert.Equal(t, "SESSION-1", resp.Password)

	assert.Equal(t, 1, silent.calls)
	assert.Equal(t, 1, integrated.calls)
	assert.Equal(t, "AAD-1", exchanger.bearer)
	assert.True(t, exchanger.interactive, "the exchange must know the token came from an interactive flow")
}

func TestIdentitySourceRetryWithoutInteractionResolvesNothing(t *testing.T) {
	t.Parallel()

	strategy := &fakeStrategy{name: "any", token: "AAD-1"}
	exchanger := &fakeExchanger{token: "SESSION-1"}
	source := newTestIdentitySource(&config.Settings{}, exchanger, strategy)

	req := testRequest(t)
	req.IsRetry = true
	req.IsNonInteractive = true

	resp, err := source.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Zero(t, strategy.calls, "a non-interactive retry must not run any strategy")
	assert.Zero(t, exchanger.calls)
}

func TestIdentitySourceReturnsNothingWhenChainFails(t *testing.T) {
	t.Parallel()

	exchanger := &fakeExchanger{token: "SESSION-1"}
	source := newTestIdentitySource(&config.Settings{}, exchanger, &fakeStrategy{name: "empty"})

	resp, err := source.Resolve(context.Background(), testRequest(t))
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Zero(t, exchanger.calls)
}

func TestIdentitySourceExchangeFailureIsTerminal(t *testing.T) {
	t.Parallel()

	exchanger := &fakeExchanger{err: errors.NewExchangeFailedError("token service returned status 500", nil)}
	source := newTestIdentitySource(&config.Settings{}, exchanger,
		&fakeStrategy{name: "silent", token: "AAD-1"})

	resp, err := source.Resolve(context.Background(), testRequest(t))
	assert.Nil(t, resp)
	assert.True(t, errors.IsType(err, errors.ErrExchangeFailed))
}

func TestIdentitySourceCanShowDialogOverride(t *testing.T) {
	t.Parallel()

	var sawCanShowDialog bool
	strategy := &fakeStrategy{name: "probe", token: "AAD-1",
		eligible: func(req *auth.TokenRequest) bool {
			sawCanShowDialog = req.CanShowDialog
			return true
		}}

	forced := false
	source := newTestIdentitySource(&config.Settings{CanShowDialog: &forced}, &fakeExchanger{token: "SESSION-1"}, strategy)

	_, err := source.Resolve(context.Background(), testRequest(t))
	require.NoError(t, err)
	assert.False(t, sawCanShowDialog, "the configured override must beat the host's flag")
}

func TestIdentitySourceSettingsFlowIntoRequest(t *testing.T) {
	t.Parallel()

	var captured *auth.TokenRequest
	strategy := &fakeStrategy{name: "probe", token: "AAD-1",
		eligible: func(req *auth.TokenRequest) bool {
			captured = req
			return true
		}}

	settings := &config.Settings{
		WindowsIntegratedAuthEnabled: true,
		LoginHint:                    "user@contoso.test",
		ClientID:                     "11111111-2222-3333-4444-555555555555",
	}
	source := newTestIdentitySource(settings, &fakeExchanger{token: "SESSION-1"}, strategy)

	_, err := source.Resolve(context.Background(), testRequest(t))
	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.True(t, captured.IsWindowsIntegratedAuthEnabled)
	assert.Equal(t, "user@contoso.test", captured.LoginHint)
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", captured.ClientID)
	assert.True(t, captured.IsInteractive)
}

func TestIdentitySourceCanProvide(t *testing.T) {
	t.Parallel()

	settings := &config.Settings{SupportedHosts: []string{".pkgs.visualstudio.com", "pkgs.dev.azure.com"}}
	source := NewIdentitySource(settings, vsts.NewAuthUtil(nil, nil), &fakeExchanger{})

	tests := []struct {
		uri  string
		want bool
	}{
		{uri: "https://pkgs.dev.azure.com/org/_packaging/feed/nuget/v3/index.json", want: true},
		{uri: "https://org.pkgs.visualstudio.com/_packaging/feed/nuget/v3/index.json", want: true},
		{uri: "https://nuget.feed.invalid/api/v2", want: false},
	}

	for _, tt := range tests {
		uri, err := url.Parse(tt.uri)
		require.NoError(t, err)

		// Unknown hosts fall through to the probe, which fails fast for an
		// unreachable host.
		got, err := source.CanProvide(context.Background(), uri)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.uri)
	}
}

func TestIdentitySourceCanProvideByProbe(t *testing.T) {
	t.Parallel()

	t.Run("hosted deployment is accepted", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set(vsts.HeaderResourceTenant, "11111111-2222-3333-4444-555555555555")
			w.Header().Set(vsts.HeaderAuthorizationEndpoint, "https://vssps.dev.azure.com/org")
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		source := NewIdentitySource(&config.Settings{}, vsts.NewAuthUtil(srv.Client(), nil), &fakeExchanger{})

		uri, err := url.Parse(srv.URL)
		require.NoError(t, err)

		got, err := source.CanProvide(context.Background(), uri)
		require.NoError(t, err)
		assert.True(t, got, "a hosted deployment is served even off the host allowlist")
	})

	t.Run("on-premises deployment is rejected", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set(vsts.HeaderE2EID, "some-request-id")
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		source := NewIdentitySource(&config.Settings{}, vsts.NewAuthUtil(srv.Client(), nil), &fakeExchanger{})

		uri, err := url.Parse(srv.URL)
		require.NoError(t, err)

		got, err := source.CanProvide(context.Background(), uri)
		require.NoError(t, err)
		assert.False(t, got, "on-premises servers do not speak AAD")
	})
}

func TestIdentitySourceDefersToBuildTaskEnvironment(t *testing.T) {
	envVars := []string{
		config.BuildTaskAccessTokenEnvVar,
		config.BuildTaskURIPrefixesEnvVar,
		config.BuildTaskExternalEndpointsEnvVar,
	}

	for _, envVar := range envVars {
		t.Run(envVar, func(t *testing.T) {
			t.Setenv(envVar, "set-by-pipeline")

			settings := &config.Settings{SupportedHosts: []string{"pkgs.dev.azure.com"}}
			source := NewIdentitySource(settings, vsts.NewAuthUtil(nil, nil), &fakeExchanger{})

			uri, err := url.Parse("https://pkgs.dev.azure.com/org/_packaging/feed/nuget/v3/index.json")
			require.NoError(t, err)

			got, err := source.CanProvide(context.Background(), uri)
			require.NoError(t, err)
			assert.False(t, got, "the build task sources own resolution when the pipeline environment is populated")
		})
	}
}
