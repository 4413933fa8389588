// SPDX-License-Identifier: MIT

// Package cache implements the cross-process session token cache: a
// single encrypted file mapping feed URIs to session tokens, shared by
// every concurrently running provider process and serialized through a
// file lock.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/azdo-tools/artifacts-credprovider/pkg/encryptedfile"
	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

// lockRetryInterval is how often lock acquisition is retried when another
// provider process holds the cache.
const lockRetryInterval = 100 * time.Millisecond

// Cache is a key/value store for session tokens keyed by feed URI.
type Cache interface {
	// Get returns the cached token for uri, if any.
	Get(ctx context.Context, uri string) (string, bool)
	// Set stores token for uri. Empty tokens are rejected.
	Set(ctx context.Context, uri string, token string) error
	// Remove drops any entry for uri.
	Remove(ctx context.Context, uri string) error
}

// SessionTokenCache is the file-backed Cache implementation. The host
// frequently launches one provider process per feed in parallel, so every
// access reloads the file from disk under an OS-wide lock; the in-memory
// view is never trusted across calls.
type SessionTokenCache struct {
	file *encryptedfile.File
	lock *flock.Flock
}

var _ Cache = (*SessionTokenCache)(nil)

// NewSessionTokenCache creates a cache persisted at location. The lock
// file sits next to the cache file so its identity is deterministic for
// all processes sharing the same path.
func NewSessionTokenCache(location string, opts ...encryptedfile.Option) *SessionTokenCache {
	return &SessionTokenCache{
		file: encryptedfile.New(location, opts...),
		lock: flock.New(location + ".lock"),
	}
}

// Get returns the cached session token for uri, if present.
func (c *SessionTokenCache) Get(ctx context.Context, uri string) (string, bool) {
	if !c.acquireLock(ctx) {
		return "", false
	}
	defer c.releaseLock()

	token, ok := c.load()[NormalizeURI(uri)]
	return token, ok
}

// Set stores token for uri using a full read-modify-write cycle under
// the lock, so concurrent writers never lose each other's entries.
func (c *SessionTokenCache) Set(ctx context.Context, uri string, token string) error {
	if token == "" {
		return fmt.Errorf("refusing to cache an empty session token for %s", uri)
	}

	if !c.acquireLock(ctx) {
		return lockErr(ctx)
	}
	defer c.releaseLock()

	entries := c.load()
	entries[NormalizeURI(uri)] = token
	return c.store(entries)
}

// Remove drops the entry for uri, if present.
func (c *SessionTokenCache) Remove(ctx context.Context, uri string) error {
	if !c.acquireLock(ctx) {
		return lockErr(ctx)
	}
	defer c.releaseLock()

	entries := c.load()
	key := NormalizeURI(uri)
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	return c.store(entries)
}

// lockErr explains a failed acquisition: the context's own error when
// it fired, otherwise the lock itself failed and the caller must not
// report the mutation as applied.
func lockErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("could not acquire session token cache lock")
}

// acquireLock attempts an immediate acquisition, then polls until the
// lock is free or ctx fires. A false return means the caller must give
// up with an empty result.
func (c *SessionTokenCache) acquireLock(ctx context.Context) bool {
	locked, err := c.lock.TryLock()
	if err == nil && locked {
		return true
	}
	if err != nil {
		logger.Debugf("session token cache lock error: %v", err)
	}

	logger.Debugf("session token cache is held by another process, waiting")
	locked, err = c.lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil || !locked {
		logger.Debugf("gave up waiting for session token cache lock: %v", err)
		return false
	}
	return true
}

func (c *SessionTokenCache) releaseLock() {
	if err := c.lock.Unlock(); err != nil {
		logger.Debugf("failed to release session token cache lock: %v", err)
	}
}

// load reads the full map from disk. Corrupt content is treated as an
// empty cache: the file is deleted and resolution continues.
func (c *SessionTokenCache) load() map[string]string {
	data, err := c.file.Read()
	if err != nil {
		logger.Warnf("discarding unreadable session token cache: %v", err)
		if delErr := c.file.Delete(); delErr != nil {
			logger.Debugf("failed to delete corrupt session token cache: %v", delErr)
		}
		return map[string]string{}
	}
	if len(data) == 0 {
		return map[string]string{}
	}

	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warnf("discarding corrupt session token cache: %v", err)
		if delErr := c.file.Delete(); delErr != nil {
			logger.Debugf("failed to delete corrupt session token cache: %v", delErr)
		}
		return map[string]string{}
	}
	return entries
}

func (c *SessionTokenCache) store(entries map[string]string) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to serialize session token cache: %w", err)
	}
	return c.file.Write(data)
}

// NormalizeURI canonicalizes a feed URI for use as a cache key: scheme
// and host are lowercased and any trailing slash is dropped. Unparsable
// input is used verbatim.
func NormalizeURI(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Host == "" {
		return strings.TrimSuffix(uri, "/")
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	return strings.TrimSuffix(parsed.String(), "/")
}

// NoOpCache satisfies Cache without storing anything. Used when the
// session token cache is disabled.
type NoOpCache struct{}

var _ Cache = NoOpCache{}

// Get always misses.
func (NoOpCache) Get(context.Context, string) (string, bool) { return "", false }

// Set discards the token.
func (NoOpCache) Set(context.Context, string, string) error { return nil }

// Remove does nothing.
func (NoOpCache) Remove(context.Context, string) error { return nil }
