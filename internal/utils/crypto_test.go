package utils

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPANCipher(t *testing.T) {
	c, err := NewPANCipher(MustGenerateSecureKey(), MustGenerateSecureKey())
	require.NoError(t, err)

	first, err := c.Encrypt("4242424242424242")
	require.NoError(t, err)
	second, err := c.Encrypt("4242424242424242")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "nonce must differ per encryption")

	plain, err := c.Decrypt(first)
	require.NoError(t, err)
	assert.Equal(t, "4242424242424242", plain)

	assert.Equal(t, c.Hash("4242424242424242"), c.Hash("4242424242424242"))
	assert.NotEqual(t, c.Hash("4242424242424242"), c.Hash("5555555555554444"))
	assert.Len(t, c.Hash("x"), 64)

	_, err = c.Decrypt("not base64!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestPANCipher_KeyMismatch(t *testing.T) {
	a, err := NewPANCipher(MustGenerateSecureKey(), MustGenerateSecureKey())
	require.NoError(t, err)
	b, err := NewPANCipher(MustGenerateSecureKey(), MustGenerateSecureKey())
	require.NoError(t, err)

	ct, err := a.Encrypt("4242424242424242")
	require.NoError(t, err)
	_, err = b.Decrypt(ct)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
	assert.NotEqual(t, a.Hash("4242424242424242"), b.Hash("4242424242424242"))
}

func TestNewPANCipher_InvalidKeys(t *testing.T) {
	good := MustGenerateSecureKey()
	short := base64.StdEncoding.EncodeToString([]byte("too short"))

	_, err := NewPANCipher(short, good)
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = NewPANCipher(good, "%%%")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = NewPANCipher("", "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
