// SPDX-License-Identifier: MIT

package msalcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azdo-tools/artifacts-credprovider/pkg/encryptedfile"
)

type fixedKeyProvider struct{ key []byte }

func (p fixedKeyProvider) Key() ([]byte, error) {
	if p.key == nil {
		return nil, fmt.Errorf("no key store available")
	}
	return p.key, nil
}

// memoryContract emulates the identity library's in-memory cache.
type memoryContract struct {
	data []byte
}

func (m *memoryContract) Marshal() ([]byte, error) { return m.data, nil }
func (m *memoryContract) Unmarshal(b []byte) error { m.data = b; return nil }

func newTestAccessor(t *testing.T) (*Accessor, string) {
	t.Helper()

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	location := filepath.Join(t.TempDir(), "msal.cache")
	return New(location, encryptedfile.WithKeyProvider(fixedKeyProvider{key: key})), location
}

func TestExportThenReplace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a, _ := newTestAccessor(t)

	require.NoError(t, a.Export(ctx, &memoryContract{data: []byte(`{"AccessToken":{}}`)}, cache.ExportHints{}))

	restored := &memoryContract{}
	require.NoError(t, a.Replace(ctx, restored, cache.ReplaceHints{}))
	assert.Equal(t, `{"AccessToken":{}}`, string(restored.data))
}

func TestReplaceMissingFileLeavesCacheEmpty(t *testing.T) {
	t.Parallel()

	a, _ := newTestAccessor(t)

	restored := &memoryContract{}
	require.NoError(t, a.Replace(context.Background(), restored, cache.ReplaceHints{}))
	assert.Nil(t, restored.data)
}

func TestReplaceDiscardsCorruptFile(t *testing.T) {
	t.Parallel()

	a, location := newTestAccessor(t)
	require.NoError(t, os.WriteFile(location, []byte("not ciphertext"), 0600))

	restored := &memoryContract{data: []byte("untouched")}
	require.NoError(t, a.Replace(context.Background(), restored, cache.ReplaceHints{}))
	assert.Equal(t, "untouched", string(restored.data), "corrupt content must not reach the library")

	_, err := os.Stat(location)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
