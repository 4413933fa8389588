// SPDX-License-Identifier: MIT

package vsts

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azdo-tools/artifacts-credprovider/pkg/config"
)

func TestTokenValidity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		kind      config.TokenType
		preferred time.Duration
		want      time.Duration
	}{
		{
			name: "personal access token default is 90 days",
			kind: config.TokenTypeCompact,
			want: 2160 * time.Hour,
		},
		{
			name:      "personal access token honors any preference",
			kind:      config.TokenTypeCompact,
			preferred: 30 * 24 * time.Hour,
			want:      30 * 24 * time.Hour,
		},
		{
			name: "self-describing default is 4 hours",
			kind: config.TokenTypeSelfDescribing,
			want: 4 * time.Hour,
		},
		{
			name:      "self-describing honors short preferences",
			kind:      config.TokenTypeSelfDescribing,
			preferred: 2 * time.Hour,
			want:      2 * time.Hour,
		},
		{
			name:      "self-describing is capped at 24 hours",
			kind:      config.TokenTypeSelfDescribing,
			preferred: 72 * time.Hour,
			want:      24 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, TokenValidity(tt.kind, tt.preferred))
		})
	}
}

func TestSessionTokenFromBearerTokenKindSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		forced       config.TokenType
		interactive  bool
		wantWireType string
	}{
		{
			name:         "interactive prefers a personal access token",
			interactive:  true,
			wantWireType: "Compact",
		},
		{
			name:         "unattended prefers a self-describing token",
			wantWireType: "SelfDescribing",
		},
		{
			name:         "a forced type always wins",
			forced:       config.TokenTypeSelfDescribing,
			interactive:  true,
			wantWireType: "SelfDescribing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var wireType string
			srv, client := newExchangeServer(t, func(w http.ResponseWriter, r *http.Request) {
				wireType = r.URL.Query().Get("tokenType")
				require.NoError(t, json.NewEncoder(w).Encode(SessionToken{Token: "session-token"}))
			})

			provider := NewSessionTokenProvider(client, &config.Settings{ForcedTokenType: tt.forced})

			token, err := provider.SessionTokenFromBearerToken(context.Background(),
				mustParse(t, srv.URL+"/feed/"), "aad-token", tt.interactive)
			require.NoError(t, err)
			assert.Equal(t, "session-token", token)
			assert.Equal(t, tt.wantWireType, wireType)
		})
	}
}
