package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidCiphertext is returned when a stored value cannot be
// decrypted, typically after a key rotation gone wrong or data
// corruption.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// FieldCipher encrypts short sensitive fields (TOTP secrets, bank
// details) with AES-GCM before they reach the database.
type FieldCipher struct {
	aead cipher.AEAD
	aad  []byte
}

// NewFieldCipher creates a cipher from a 32-byte key
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("field cipher key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &FieldCipher{aead: aead}, nil
}

// For returns a cipher bound to a field label. The label is mixed into
// the authentication tag, so a value sealed for one field cannot be
// replayed into another column.
func (c *FieldCipher) For(field string) *FieldCipher {
	return &FieldCipher{aead: c.aead, aad: []byte(field)}
}

// Encrypt seals the plaintext and returns a base64 string carrying the
// nonce and ciphertext.
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), c.aad)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt
func (c *FieldCipher) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, c.aad)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}
