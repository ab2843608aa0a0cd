// Package credential encrypts a password for transmission with a one-time
// secret issued by the provider before login.
//
// The scheme is AES-CBC with PKCS#7 padding under a fixed, provider-wide IV.
// A fixed IV leaks equality of plaintexts encrypted under the same secret;
// it is kept because the provider only accepts this construction.
package credential

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ytget/streamsession/internal/logger"
)

var (
	// ErrInvalidSecret is returned when the secret is not a valid AES key length.
	ErrInvalidSecret = errors.New("credential: secret must be 16, 24 or 32 bytes")
	// ErrInvalidIV is returned when the IV is not one AES block.
	ErrInvalidIV = errors.New("credential: iv must be 16 bytes")
)

// SecretFetcher obtains the one-time secret bound to a device.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, deviceID, nickname string) (string, error)
}

// SecretFetcherFunc adapts a function to SecretFetcher.
type SecretFetcherFunc func(ctx context.Context, deviceID, nickname string) (string, error)

// FetchSecret implements SecretFetcher.
func (f SecretFetcherFunc) FetchSecret(ctx context.Context, deviceID, nickname string) (string, error) {
	return f(ctx, deviceID, nickname)
}

// Cipher encrypts passwords with secrets from Fetcher.
type Cipher struct {
	iv      []byte
	fetcher SecretFetcher
}

// NewCipher parses the hex IV and binds the secret source.
func NewCipher(ivHex string, fetcher SecretFetcher) (*Cipher, error) {
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("credential: decode iv: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, ErrInvalidIV
	}
	if fetcher == nil {
		return nil, errors.New("credential: nil secret fetcher")
	}
	return &Cipher{iv: iv, fetcher: fetcher}, nil
}

// EncryptPassword fetches a fresh secret and returns the hex ciphertext.
// Fetch errors are returned unchanged.
func (c *Cipher) EncryptPassword(ctx context.Context, plaintext, deviceID, nickname string) (string, error) {
	secret, err := c.fetcher.FetchSecret(ctx, deviceID, nickname)
	if err != nil {
		return "", err
	}
	logger.WithComponent(logger.ComponentCredential).Debug("fetched login secret", map[string]interface{}{
		"device_id": deviceID,
		"secret":    logger.Mask(secret),
	})
	return Encrypt(secret, c.iv, plaintext)
}

// Encrypt is AES-CBC(key = UTF-8 bytes of secret, iv) over the PKCS#7
// padded plaintext, hex encoded.
func Encrypt(secret string, iv []byte, plaintext string) (string, error) {
	if len(iv) != aes.BlockSize {
		return "", ErrInvalidIV
	}
	switch len(secret) {
	case 16, 24, 32:
	default:
		return "", fmt.Errorf("%w (got %d)", ErrInvalidSecret, len(secret))
	}
	block, err := aes.NewCipher([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("credential: %w", err)
	}
	padded := pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Only used to verify round trips.
func Decrypt(secret string, iv []byte, hexCiphertext string) (string, error) {
	if len(iv) != aes.BlockSize {
		return "", ErrInvalidIV
	}
	block, err := aes.NewCipher([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	data, err := hex.DecodeString(hexCiphertext)
	if err != nil {
		return "", fmt.Errorf("credential: decode ciphertext: %w", err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", errors.New("credential: ciphertext is not a whole number of blocks")
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return unpad(out, aes.BlockSize)
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) (string, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return "", errors.New("credential: bad padding")
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return "", errors.New("credential: bad padding")
		}
	}
	return string(b[:len(b)-n]), nil
}
