// SPDX-License-Identifier: MIT

package vsts

import (
	"context"
	"net/url"
	"time"

	"github.com/azdo-tools/artifacts-credprovider/pkg/config"
	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

const (
	// defaultSessionTime bounds self-describing tokens, which are hard to
	// revoke.
	defaultSessionTime    = 4 * time.Hour
	maxSelfDescribingTime = 24 * time.Hour

	// defaultPersonalAccessTime is 90 days; personal access tokens are
	// easily revocable so they may live long.
	defaultPersonalAccessTime = 2160 * time.Hour
)

// SessionTokenProvider applies the token-type and validity policy on top
// of the raw exchange client.
type SessionTokenProvider struct {
	client   *SessionTokenClient
	settings *config.Settings
}

// NewSessionTokenProvider creates a provider.
func NewSessionTokenProvider(client *SessionTokenClient, settings *config.Settings) *SessionTokenProvider {
	return &SessionTokenProvider{client: client, settings: settings}
}

// SessionTokenFromBearerToken exchanges bearerToken for a session token
// for feedURI. When the user pinned no token type, an interactively
// obtained bearer token prefers a personal access token (so the long
// default validity is safe), anything else a self-describing token.
func (p *SessionTokenProvider) SessionTokenFromBearerToken(
	ctx context.Context,
	feedURI *url.URL,
	bearerToken string,
	obtainedInteractively bool,
) (string, error) {
	kind := p.settings.ForcedTokenType
	if kind == "" {
		if obtainedInteractively {
			kind = config.TokenTypeCompact
		} else {
			kind = config.TokenTypeSelfDescribing
		}
	}

	validity := TokenValidity(kind, p.settings.SessionTime)
	validTo := time.Now().UTC().Add(validity)

	logger.Debugf("requesting a %s session token valid for %s (to %s)",
		kind, validity, validTo.Format(time.RFC3339))

	return p.client.CreateSessionToken(ctx, feedURI, bearerToken, kind, validTo)
}

// TokenValidity resolves the effective validity window for a token type,
// honoring a preferred duration but capping self-describing tokens at a
// strict 24 hours.
func TokenValidity(kind config.TokenType, preferred time.Duration) time.Duration {
	if kind == config.TokenTypeCompact {
		if preferred > 0 {
			return preferred
		}
		return defaultPersonalAccessTime
	}

	validity := preferred
	if validity <= 0 {
		validity = defaultSessionTime
	}
	if validity >= maxSelfDescribingTime {
		validity = maxSelfDescribingTime
	}
	return validity
}
