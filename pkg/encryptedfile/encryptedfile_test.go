// SPDX-License-Identifier: MIT

package encryptedfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedKeyProvider struct{ key []byte }

func (p fixedKeyProvider) Key() ([]byte, error) {
	if p.key == nil {
		return nil, fmt.Errorf("no key store available")
	}
	return p.key, nil
}

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestEncryptedRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tokens.dat")
	f := New(path, WithKeyProvider(fixedKeyProvider{key: testKey()}))

	require.NoError(t, f.Write([]byte(`{"feed":"token"}`)))

	data, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"feed":"token"}`, string(data))

	// The on-disk form must not contain the plaintext.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "token")
}

func TestReadMissingFile(t *testing.T) {
	t.Parallel()

	f := New(filepath.Join(t.TempDir(), "absent.dat"), WithKeyProvider(fixedKeyProvider{key: testKey()}))

	data, err := f.Read()
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestReadCorruptContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tokens.dat")
	require.NoError(t, os.WriteFile(path, []byte("definitely not ciphertext"), 0600))

	f := New(path, WithKeyProvider(fixedKeyProvider{key: testKey()}))

	_, err := f.Read()
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestTruncatedCiphertextIsCorrupted(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tokens.dat")
	require.NoError(t, os.WriteFile(path, []byte{0x01}, 0600))

	f := New(path, WithKeyProvider(fixedKeyProvider{key: testKey()}))

	_, err := f.Read()
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestPlaintextFallback(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tokens.dat")
	f := New(path, WithKeyProvider(fixedKeyProvider{}))

	require.NoError(t, f.Write([]byte("fallback content")))

	data, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, "fallback content", string(data))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestWriteCreatesParentDirectories(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "deeper", "tokens.dat")
	f := New(path, WithKeyProvider(fixedKeyProvider{key: testKey()}))

	require.NoError(t, f.Write([]byte("content")))

	data, err := f.Read()
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestDeleteMissingFile(t *testing.T) {
	t.Parallel()

	f := New(filepath.Join(t.TempDir(), "absent.dat"), WithKeyProvider(fixedKeyProvider{key: testKey()}))
	assert.NoError(t, f.Delete())
}
