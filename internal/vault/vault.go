// Package vault encrypts provider tokens at rest with AES-256-GCM. The key
// is derived once at startup from the configured secret and never leaves the
// process.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// ErrDecryptFailed reports ciphertext that is malformed, tampered with, or
// sealed under a different key. Callers must treat the credential as unusable.
var ErrDecryptFailed = errors.New("vault: decrypt failed")

// Vault seals and opens small secrets under a fixed process-wide key.
type Vault struct {
	aead cipher.AEAD
}

// New derives a 256-bit key from secret and salt with argon2id and returns a
// ready vault. The same secret/salt pair always yields the same key, so
// ciphertext survives process restarts.
func New(secret, salt string) (*Vault, error) {
	if secret == "" {
		return nil, errors.New("vault: empty secret")
	}
	key := argon2.IDKey([]byte(secret), []byte(salt), 1, 64*1024, 4, 32)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce. The nonce is prepended
// to the returned ciphertext.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: nonce: %w", err)
	}
	return v.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt. Any corruption or key
// mismatch yields ErrDecryptFailed, never partial plaintext.
func (v *Vault) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < v.aead.NonceSize() {
		return nil, ErrDecryptFailed
	}
	nonce, sealed := ciphertext[:v.aead.NonceSize()], ciphertext[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// EncryptString seals a token string for storage in a text column.
func (v *Vault) EncryptString(plaintext string) (string, error) {
	ct, err := v.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// DecryptString reverses EncryptString. Invalid base64 counts as tampering.
func (v *Vault) DecryptString(ciphertext string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptFailed
	}
	pt, err := v.Decrypt(ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
