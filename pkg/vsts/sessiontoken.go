// SPDX-License-Identifier: MIT

package vsts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/azdo-tools/artifacts-credprovider/pkg/config"
	"github.com/azdo-tools/artifacts-credprovider/pkg/errors"
	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

const (
	// TokenScope is the fixed scope requested for every session token.
	TokenScope = "vso.packaging_write vso.drop_write"

	displayName    = "Azure DevOps Artifacts Credential Provider"
	apiVersion     = "5.0-preview.1"
	sessionTokenPath = "/_apis/Token/SessionTokens"

	// maxResponseBodySize bounds response reads (1 MB).
	maxResponseBodySize = 1 << 20

	// validityWarningSlack is how far the granted validity may fall short
	// of the requested one before a warning is recorded.
	validityWarningSlack = time.Hour
)

// SessionToken is the exchange request and response body.
type SessionToken struct {
	DisplayName string     `json:"displayName,omitempty"`
	Scope       string     `json:"scope,omitempty"`
	ValidTo     *time.Time `json:"validTo,omitempty"`
	Token       string     `json:"token,omitempty"`
}

// SessionTokenClient performs the bearer-to-session-token exchange
// against the token service endpoint the feed announces.
type SessionTokenClient struct {
	httpClient *http.Client
	authUtil   *AuthUtil
}

// NewSessionTokenClient creates a client. A nil httpClient uses a
// default with a conservative timeout.
func NewSessionTokenClient(httpClient *http.Client, authUtil *AuthUtil) *SessionTokenClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &SessionTokenClient{httpClient: httpClient, authUtil: authUtil}
}

// CreateSessionToken exchanges bearerToken for a session token of the
// given kind valid until validTo. If the service rejects the requested
// validity with a client error, the exchange is retried exactly once
// without an explicit validity so the service applies its default. A
// granted validity more than an hour short of the requested one logs a
// warning but still succeeds.
func (c *SessionTokenClient) CreateSessionToken(
	ctx context.Context,
	feedURI *url.URL,
	bearerToken string,
	kind config.TokenType,
	validTo time.Time,
) (string, error) {
	endpoint, err := c.authUtil.AuthorizationEndpoint(ctx, feedURI)
	if err != nil {
		return "", errors.NewExchangeFailedError("failed to discover the token service endpoint", err)
	}
	if endpoint == nil {
		return "", errors.NewExchangeFailedError(
			fmt.Sprintf("%s announces no token service endpoint", feedURI), nil)
	}

	tokenURL := *endpoint
	tokenURL.Path = strings.TrimRight(tokenURL.Path, "/") + sessionTokenPath
	tokenURL.RawQuery = url.Values{
		"tokenType":   []string{wireTokenType(kind)},
		"api-version": []string{apiVersion},
	}.Encode()

	resp, err := c.post(ctx, tokenURL.String(), bearerToken, &validTo)
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		drain(resp)
		logger.Debugf("service rejected the requested validity (%d), retrying with the service default", resp.StatusCode)

		if resp, err = c.post(ctx, tokenURL.String(), bearerToken, nil); err != nil {
			return "", err
		}
	}

	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.NewExchangeFailedError(
			fmt.Sprintf("token service returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return "", errors.NewExchangeFailedError("failed to read the token service response", err)
	}

	var token SessionToken
	if err := json.Unmarshal(body, &token); err != nil {
		return "", errors.NewExchangeFailedError("malformed token service response", err)
	}
	if token.Token == "" {
		return "", errors.NewExchangeFailedError("token service returned an empty token", nil)
	}

	if token.ValidTo != nil && validTo.Sub(*token.ValidTo) > validityWarningSlack {
		logger.Warnf("requested a session token valid to %s but received %s",
			validTo.Format(time.RFC3339), token.ValidTo.Format(time.RFC3339))
	}

	return token.Token, nil
}

func (c *SessionTokenClient) post(ctx context.Context, tokenURL, bearerToken string, validTo *time.Time) (*http.Response, error) {
	body, err := json.Marshal(SessionToken{
		DisplayName: displayName,
		Scope:       TokenScope,
		ValidTo:     validTo,
	})
	if err != nil {
		return nil, errors.NewExchangeFailedError("failed to serialize the exchange request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewExchangeFailedError("failed to build the exchange request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCancelledError("session token exchange cancelled", ctx.Err())
		}
		return nil, errors.NewExchangeFailedError("session token exchange request failed", err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
	_ = resp.Body.Close()
}

// wireTokenType maps a configured token type onto the service's enum
// names.
func wireTokenType(kind config.TokenType) string {
	if kind == config.TokenTypeCompact {
		return "Compact"
	}
	return "SelfDescribing"
}
