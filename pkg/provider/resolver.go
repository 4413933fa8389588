// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/azdo-tools/artifacts-credprovider/pkg/cache"
	"github.com/azdo-tools/artifacts-credprovider/pkg/errors"
	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

// Resolver drives one credential resolution: cache first, then the
// configured sources in order.
type Resolver struct {
	sources []CredentialSource
	cache   cache.Cache
}

// NewResolver creates a resolver over sources, tried in the given order.
func NewResolver(sources []CredentialSource, tokenCache cache.Cache) *Resolver {
	return &Resolver{sources: sources, cache: tokenCache}
}

// Resolve produces a response for req. It never panics into the host
// protocol loop; unexpected failures degrade to an Error response.
func (r *Resolver) Resolve(ctx context.Context, req *Request) (resp *Response, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Errorf("credential resolution panicked: %v", recovered)
			resp = &Response{
				Message:      "credential resolution failed unexpectedly",
				ResponseCode: ResponseError,
			}
			err = nil
		}
	}()

	uri := req.URI.String()

	if req.IsRetry {
		// The host rejected whatever we handed out last time. Drop it
		// before anything can serve it again.
		if err := r.cache.Remove(ctx, uri); err != nil {
			logger.Warnf("failed to remove rejected session token for %s: %v", uri, err)
		}
	} else if token, ok := r.cache.Get(ctx, uri); ok {
		logger.Debugf("returning cached session token for %s", uri)
		return successResponse(token), nil
	}

	for _, source := range r.sources {
		ok, err := source.CanProvide(ctx, req.URI)
		if err != nil {
			logger.Debugf("source %s failed its applicability check for %s: %v", source.Name(), uri, err)
			continue
		}
		if !ok {
			continue
		}

		logger.Debugf("resolving credentials for %s using %s", uri, source.Name())

		resp, err := source.Resolve(ctx, req)
		if err != nil {
			return errorResponse(source, err), nil
		}
		if resp == nil {
			continue
		}
		if resp.ResponseCode != ResponseSuccess {
			// The source answered without credentials. Surface its reason
			// and give the remaining sources a chance.
			logger.Warnf("%s could not provide credentials for %s: %s", source.Name(), uri, resp.Message)
			continue
		}

		if source.Cacheable() {
			if err := r.cache.Set(ctx, uri, resp.Password); err != nil {
				logger.Warnf("failed to cache session token for %s: %v", uri, err)
			}
		}
		return resp, nil
	}

	return &Response{ResponseCode: ResponseNotFound}, nil
}

// errorResponse converts a terminal source error into the host contract.
// The full error chain goes to the debug log only; the host sees a
// single human-readable line.
func errorResponse(source CredentialSource, err error) *Response {
	logger.Debugf("source %s failed: %+v", source.Name(), err)

	message := fmt.Sprintf("credential resolution through %s failed", source.Name())
	var typed *errors.Error
	if stderrors.As(err, &typed) {
		message = typed.Message
	}

	return &Response{
		Message:      message,
		ResponseCode: ResponseError,
	}
}
