package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidKey        = errors.New("key must be 32 bytes, base64 encoded")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// GenerateSecureKey returns 32 random bytes, base64 encoded.
func GenerateSecureKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func MustGenerateSecureKey() string {
	key, err := GenerateSecureKey()
	if err != nil {
		panic("failed to generate secure key: " + err.Error())
	}
	return key
}

// PANCipher encrypts card numbers with AES-256-GCM and derives a keyed
// SHA-256 lookup hash for uniqueness checks.
type PANCipher struct {
	aead    cipher.AEAD
	hmacKey []byte
}

// NewPANCipher builds a cipher from two base64 encoded 32 byte keys.
func NewPANCipher(encKey, hmacKey string) (*PANCipher, error) {
	ek, err := decodeKey(encKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	hk, err := decodeKey(hmacKey)
	if err != nil {
		return nil, fmt.Errorf("hmac key: %w", err)
	}

	block, err := aes.NewCipher(ek)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return &PANCipher{aead: aead, hmacKey: hk}, nil
}

func decodeKey(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) != 32 {
		return nil, ErrInvalidKey
	}
	return b, nil
}

// Encrypt returns base64(nonce || ciphertext).
func (c *PANCipher) Encrypt(pan string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(pan), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *PANCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	n := c.aead.NonceSize()
	if len(raw) < n {
		return "", ErrInvalidCiphertext
	}
	plain, err := c.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}

// Hash is deterministic for a given key, so equal PANs collide.
func (c *PANCipher) Hash(pan string) string {
	mac := hmac.New(sha256.New, c.hmacKey)
	mac.Write([]byte(pan))
	return hex.EncodeToString(mac.Sum(nil))
}
