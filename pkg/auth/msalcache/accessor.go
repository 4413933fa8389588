// SPDX-License-Identifier: MIT

// Package msalcache persists the identity library's token cache to an
// encrypted file shared across provider processes, so a sign-in
// performed by one process is silently reusable by the next.
package msalcache

import (
	"context"
	"time"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/gofrs/flock"

	"github.com/azdo-tools/artifacts-credprovider/pkg/encryptedfile"
	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

const lockRetryInterval = 100 * time.Millisecond

// Accessor implements the identity library's cache.ExportReplace
// against an encrypted file protected by a cross-process lock.
type Accessor struct {
	file *encryptedfile.File
	lock *flock.Flock
}

var _ cache.ExportReplace = (*Accessor)(nil)

// New creates a file-backed accessor at location.
func New(location string, opts ...encryptedfile.Option) *Accessor {
	return &Accessor{
		file: encryptedfile.New(location, opts...),
		lock: flock.New(location + ".lock"),
	}
}

// Replace refreshes the in-memory cache from disk before the library
// reads it. A missing or corrupt file leaves the cache empty.
func (a *Accessor) Replace(ctx context.Context, c cache.Unmarshaler, _ cache.ReplaceHints) error {
	if !a.acquireLock(ctx) {
		return ctx.Err()
	}
	defer a.releaseLock()

	data, err := a.file.Read()
	if err != nil {
		logger.Warnf("discarding unreadable identity cache: %v", err)
		if delErr := a.file.Delete(); delErr != nil {
			logger.Debugf("failed to delete corrupt identity cache: %v", delErr)
		}
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	return c.Unmarshal(data)
}

// Export writes the in-memory cache to disk after the library updated it.
func (a *Accessor) Export(ctx context.Context, c cache.Marshaler, _ cache.ExportHints) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if !a.acquireLock(ctx) {
		return ctx.Err()
	}
	defer a.releaseLock()

	return a.file.Write(data)
}

func (a *Accessor) acquireLock(ctx context.Context) bool {
	locked, err := a.lock.TryLock()
	if err == nil && locked {
		return true
	}

	logger.Debugf("identity cache is held by another process, waiting")
	locked, err = a.lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil || !locked {
		logger.Debugf("gave up waiting for identity cache lock: %v", err)
		return false
	}
	return true
}

func (a *Accessor) releaseLock() {
	if err := a.lock.Unlock(); err != nil {
		logger.Debugf("failed to release identity cache lock: %v", err)
	}
}
