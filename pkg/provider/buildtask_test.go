// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTaskSourceCanProvide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		token    string
		prefixes []string
		uri      string
		want     bool
	}{
		{
			name: "no token",
			uri:  "https://pkgs.dev.azure.com/org/feed",
			want: false,
		},
		{
			name:  "token without prefixes serves everything",
			token: "pipeline-token",
			uri:   "https://pkgs.dev.azure.com/org/feed",
			want:  true,
		},
		{
			name:     "matching prefix",
			token:    "pipeline-token",
			prefixes: []string{"https://pkgs.dev.azure.com/org"},
			uri:      "https://pkgs.dev.azure.com/org/_packaging/feed/nuget/v3/index.json",
			want:     true,
		},
		{
			name:     "prefix match ignores case",
			token:    "pipeline-token",
			prefixes: []string{"HTTPS://PKGS.DEV.AZURE.COM/org"},
			uri:      "https://pkgs.dev.azure.com/org/feed",
			want:     true,
		},
		{
			name:     "non-matching prefix",
			token:    "pipeline-token",
			prefixes: []string{"https://pkgs.dev.azure.com/other"},
			uri:      "https://pkgs.dev.azure.com/org/feed",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			source := NewBuildTaskSource(tt.token, tt.prefixes)

			uri, err := url.Parse(tt.uri)
			require.NoError(t, err)

			got, err := source.CanProvide(context.Background(), uri)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildTaskSourceResolve(t *testing.T) {
	t.Parallel()

	source := NewBuildTaskSource("pipeline-token", nil)

	resp, err := source.Resolve(context.Background(), testRequest(t))
	require.NoError(t, err)
	assert.Equal(t, ResponseSuccess, resp.ResponseCode)
	assert.Equal(t, TokenUsername, resp.Username)
	assert.Equal(t, "pipeline-token", resp.Password)
}

func TestBuildTaskSourceRetryIsAnError(t *testing.T) {
	t.Parallel()

	source := NewBuildTaskSource("pipeline-token", nil)

	req := testRequest(t)
	req.IsRetry = true

	resp, err := source.Resolve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ResponseError, resp.ResponseCode)
	assert.Empty(t, resp.Password, "a rejected environment token must not be handed out again")
	assert.NotEmpty(t, resp.Message)
}

func TestBuildTaskSourceFromEnvironment(t *testing.T) {
	t.Setenv("VSS_NUGET_ACCESSTOKEN", "pipeline-token")
	t.Setenv("VSS_NUGET_URI_PREFIXES", "https://pkgs.dev.azure.com/org; https://org.pkgs.visualstudio.com ;")

	source := NewBuildTaskSourceFromEnvironment()

	uri, err := url.Parse("https://org.pkgs.visualstudio.com/_packaging/feed/nuget/v3/index.json")
	require.NoError(t, err)

	got, err := source.CanProvide(context.Background(), uri)
	require.NoError(t, err)
	assert.True(t, got)
}
