// Package secret seals stored app passwords with a symmetric key.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the required key length in bytes.
const KeySize = 32

const nonceSize = 24

var (
	// ErrDecryptionFailed is returned for any token that does not open under the key.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidKey is returned for keys that are not KeySize bytes of base64.
	ErrInvalidKey = errors.New("invalid encryption key")
)

// Box seals and opens secrets under one key.
type Box struct {
	key [KeySize]byte
}

// NewBox creates a Box from a raw key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	b := &Box{}
	copy(b.key[:], key)
	return b, nil
}

// NewBoxFromBase64 creates a Box from a base64-encoded key, as produced by
// GenerateKey. Both standard and URL-safe alphabets are accepted.
func NewBoxFromBase64(encoded string) (*Box, error) {
	key, err := decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewBox(key)
}

// GenerateKey returns a fresh random key, base64 encoded.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return base64.URLEncoding.EncodeToString(key), nil
}

// Seal encrypts plaintext under a random nonce and returns an opaque token.
func (b *Box) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token produced by Seal.
func (b *Box) Open(token string) (string, error) {
	data, err := decode(token)
	if err != nil || len(data) < nonceSize+secretbox.Overhead {
		return "", ErrDecryptionFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

func decode(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
