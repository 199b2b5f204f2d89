// Marquee - Self-Hosted Media Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

var (
	// ErrDecryptionFailed means a sealed token did not authenticate, usually
	// because TOKEN_ENCRYPTION_KEY changed since it was stored.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidCiphertext means a value carries the sealed prefix but is
	// not a well-formed sealed token.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

const (
	sealedPrefix   = "enc1:"
	minMasterKey   = 16
	aesKeyLen      = 32
	defaultKeyInfo = "marquee-jellyfin-token"
)

var tokenEncoding = base64.RawURLEncoding

// TokenEncryptor seals stored Jellyfin access tokens with AES-256-GCM. Sealed
// values are "enc1:" followed by base64url(nonce || ciphertext). A nil
// *TokenEncryptor leaves tokens in plaintext.
type TokenEncryptor struct {
	gcm cipher.AEAD
}

// TokenEncryptorConfig configures NewTokenEncryptor.
type TokenEncryptorConfig struct {
	MasterKey string // standard base64, at least 16 bytes decoded
	Context   string // HKDF info; defaults to "marquee-jellyfin-token"
}

// NewTokenEncryptor derives the AES key from the master key with
// HKDF-SHA256. It returns nil, nil when no master key is configured.
func NewTokenEncryptor(cfg *TokenEncryptorConfig) (*TokenEncryptor, error) {
	if cfg == nil || cfg.MasterKey == "" {
		return nil, nil
	}
	secret, err := base64.StdEncoding.DecodeString(cfg.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("token encryption key is not base64: %w", err)
	}
	if len(secret) < minMasterKey {
		return nil, fmt.Errorf("token encryption key has %d bytes, need at least %d", len(secret), minMasterKey)
	}

	info := cfg.Context
	if info == "" {
		info = defaultKeyInfo
	}
	key := make([]byte, aesKeyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &TokenEncryptor{gcm: gcm}, nil
}

// IsEnabled reports whether tokens are sealed.
func (e *TokenEncryptor) IsEnabled() bool { return e != nil && e.gcm != nil }

// Encrypt seals token with a fresh nonce. The empty token stays empty.
func (e *TokenEncryptor) Encrypt(token string) (string, error) {
	if token == "" || !e.IsEnabled() {
		return token, nil
	}
	buf := make([]byte, e.gcm.NonceSize(), e.gcm.NonceSize()+len(token)+e.gcm.Overhead())
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	buf = e.gcm.Seal(buf, buf, []byte(token), nil)
	return sealedPrefix + tokenEncoding.EncodeToString(buf), nil
}

// Decrypt opens a sealed token. Values without the sealed prefix were
// stored before encryption was enabled and are returned unchanged.
func (e *TokenEncryptor) Decrypt(stored string) (string, error) {
	if !e.IsEnabled() {
		return stored, nil
	}
	body, sealed := strings.CutPrefix(stored, sealedPrefix)
	if !sealed {
		return stored, nil
	}

	raw, err := tokenEncoding.DecodeString(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	n := e.gcm.NonceSize()
	if len(raw) <= n+e.gcm.Overhead() {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidCiphertext, len(raw))
	}
	plain, err := e.gcm.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plain), nil
}

// GenerateEncryptionKey returns a random 32-byte key in the base64 form
// TOKEN_ENCRYPTION_KEY expects.
func GenerateEncryptionKey() (string, error) {
	key := make([]byte, aesKeyLen)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
