package store

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealVersion = "v1"

// Sealed encrypts selected keys with XChaCha20-Poly1305 before they reach the
// inner store. The key name is bound as associated data, so a value copied
// to another key fails to open.
type Sealed struct {
	inner  Store
	aead   cipher.AEAD
	sealed map[string]bool
}

// NewSealed wraps inner. key must be 32 bytes; keys lists the store keys to
// encrypt, all others pass through untouched.
func NewSealed(inner Store, key []byte, keys ...string) (*Sealed, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("store: seal key: %w", err)
	}
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return &Sealed{inner: inner, aead: aead, sealed: set}, nil
}

// DecodeKey accepts standard, raw or URL-safe base64 and requires 32 bytes.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			if len(b) != chacha20poly1305.KeySize {
				return nil, fmt.Errorf("store: seal key must decode to %d bytes (got %d)", chacha20poly1305.KeySize, len(b))
			}
			return b, nil
		}
	}
	return nil, errors.New("store: seal key is not base64")
}

// Get implements Store.
func (s *Sealed) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok || !s.sealed[key] {
		return v, ok, err
	}
	plain, err := s.open(key, v)
	if err != nil {
		return "", false, err
	}
	return plain, true, nil
}

// Set implements Store.
func (s *Sealed) Set(ctx context.Context, key, value string) error {
	if !s.sealed[key] {
		return s.inner.Set(ctx, key, value)
	}
	sealed, err := s.seal(key, value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, sealed)
}

// Delete implements Store.
func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *Sealed) seal(key, plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("store: nonce: %w", err)
	}
	ct := s.aead.Seal(nil, nonce, []byte(plaintext), []byte(key))
	enc := base64.RawURLEncoding.EncodeToString
	return sealVersion + "." + enc(nonce) + "." + enc(ct), nil
}

// open returns values written before sealing was enabled as-is.
func (s *Sealed) open(key, value string) (string, error) {
	parts := strings.Split(value, ".")
	if len(parts) != 3 || parts[0] != sealVersion {
		return value, nil
	}
	nonce, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || len(nonce) != s.aead.NonceSize() {
		return "", fmt.Errorf("store: open %q: bad nonce", key)
	}
	ct, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("store: open %q: ciphertext: %w", key, err)
	}
	plain, err := s.aead.Open(nil, nonce, ct, []byte(key))
	if err != nil {
		return "", fmt.Errorf("store: open %q: %w", key, err)
	}
	return string(plain), nil
}
