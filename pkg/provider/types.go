// SPDX-License-Identifier: MIT

// Package provider orchestrates credential resolution: it consults the
// session token cache, drives the configured credential sources in
// order, and reports a credential pair back to the host.
package provider

import (
	"context"
	"net/url"
)

// TokenUsername is the fixed username paired with every session token.
const TokenUsername = "VssSessionToken"

// ResponseCode is the tri-state outcome reported to the host.
type ResponseCode string

// Response codes.
const (
	ResponseSuccess  ResponseCode = "Success"
	ResponseNotFound ResponseCode = "NotFound"
	ResponseError    ResponseCode = "Error"
)

// Request is one credential resolution request from the host.
type Request struct {
	URI              *url.URL
	IsRetry          bool
	IsNonInteractive bool
	CanShowDialog    bool
}

// Response is the credential pair and outcome handed back to the host.
// The password must never be logged at non-verbose levels.
type Response struct {
	Username            string       `json:"username,omitempty"`
	Password            string       `json:"password,omitempty"`
	Message             string       `json:"message,omitempty"`
	AuthenticationTypes []string     `json:"authenticationTypes,omitempty"`
	ResponseCode        ResponseCode `json:"responseCode"`
}

// successResponse wraps a session token in the host contract.
func successResponse(sessionToken string) *Response {
	return &Response{
		Username:            TokenUsername,
		Password:            sessionToken,
		AuthenticationTypes: []string{"Basic"},
		ResponseCode:        ResponseSuccess,
	}
}

// CredentialSource is one way of producing credentials for a feed.
type CredentialSource interface {
	// Name is a diagnostic label.
	Name() string

	// Cacheable reports whether results may be stored in the session
	// token cache. Sources backed by externally supplied secrets always
	// re-resolve.
	Cacheable() bool

	// CanProvide is a cheap applicability check for the URI.
	CanProvide(ctx context.Context, uri *url.URL) (bool, error)

	// Resolve attempts resolution. A nil or non-Success response means
	// the source has no credentials and the next source should be tried;
	// errors are terminal.
	Resolve(ctx context.Context, req *Request) (*Response, error)
}
