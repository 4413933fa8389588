// SPDX-License-Identifier: MIT

// Package encryptedfile reads and writes files that are encrypted at
// rest with a per-user key held in the OS keyring. When no keyring is
// available the file is written in plaintext with owner-only
// permissions instead of failing outright.
package encryptedfile

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"

	"github.com/azdo-tools/artifacts-credprovider/pkg/logger"
)

const (
	keyringService = "artifacts-credprovider"
	keyringKey     = "file-encryption-key"
	keySize        = 32
)

// ErrCorrupted indicates the file content could not be decrypted or was
// otherwise malformed. Callers are expected to discard the file.
var ErrCorrupted = errors.New("encrypted file content is corrupted")

// KeyProvider supplies the symmetric key material. It exists so tests can
// substitute a fake without touching the OS keyring.
type KeyProvider interface {
	// Key returns the per-user encryption key, creating one if needed.
	// It returns an error when no key store is available.
	Key() ([]byte, error)
}

type keyringProvider struct{}

func (keyringProvider) Key() ([]byte, error) {
	encoded, err := keyring.Get(keyringService, keyringKey)
	if err == nil {
		key, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr != nil || len(key) != keySize {
			return nil, fmt.Errorf("invalid key material in keyring: %w", decodeErr)
		}
		return key, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("keyring unavailable: %w", err)
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := keyring.Set(keyringService, keyringKey, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("keyring unavailable: %w", err)
	}
	return key, nil
}

// File handles encrypted reads and writes for a single path.
type File struct {
	path      string
	key       []byte
	plaintext bool
}

// Option configures a File.
type Option func(*options)

type options struct {
	provider KeyProvider
}

// WithKeyProvider overrides the OS keyring as the key source.
func WithKeyProvider(p KeyProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// New prepares encrypted access to path. When the OS keyring cannot
// supply a key, it logs a warning once and falls back to plaintext with
// 0600 permissions.
func New(path string, opts ...Option) *File {
	o := options{provider: keyringProvider{}}
	for _, opt := range opts {
		opt(&o)
	}

	key, err := o.provider.Key()
	if err != nil {
		logger.Warnf("OS keyring unavailable, storing %s unencrypted with owner-only permissions: %v", path, err)
		return &File{path: path, plaintext: true}
	}

	return &File{path: path, key: key}
}

// Path returns the underlying file path.
func (f *File) Path() string {
	return f.path
}

// Read returns the decrypted file content, or nil when the file does not
// exist. Undecryptable content yields ErrCorrupted.
func (f *File) Read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	if f.plaintext {
		return data, nil
	}

	return f.decrypt(data)
}

// Write encrypts and writes data, creating parent directories as needed.
func (f *File) Write(data []byte) error {
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if !f.plaintext {
		var err error
		if data, err = f.encrypt(data); err != nil {
			return err
		}
	}

	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.path, err)
	}
	return nil
}

// Delete removes the file. Deleting a missing file is not an error.
func (f *File) Delete() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", f.path, err)
	}
	return nil
}

func (f *File) encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := f.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (f *File) decrypt(data []byte) ([]byte, error) {
	gcm, err := f.aead()
	if err != nil {
		return nil, err
	}

	if len(data) < gcm.NonceSize() {
		return nil, ErrCorrupted
	}

	plaintext, err := gcm.Open(nil, data[:gcm.NonceSize()], data[gcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return plaintext, nil
}

func (f *File) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(f.key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
