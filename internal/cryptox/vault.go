// Package cryptox bundles the cryptographic primitives used by the server:
// the token vault for third-party access tokens at rest, Argon2id password
// hashing, and JWT access tokens.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const (
	nonceSize = 12
	tagSize   = 16
)

// Vault encrypts and decrypts external access tokens with AES-256-GCM.
// The stored form is base64(nonce || tag || ciphertext), so every value is
// self-describing. When constructed without a key the vault runs in
// pass-through mode: both Encrypt and Decrypt return their input unchanged.
type Vault struct {
	key []byte
}

// NewVault derives a 256-bit AES key from the configured secret. An empty
// secret yields a pass-through vault; callers should check Passthrough at
// startup and emit an operational warning.
func NewVault(secret string) *Vault {
	if secret == "" {
		return &Vault{}
	}
	key := sha256.Sum256([]byte(secret))
	return &Vault{key: key[:]}
}

// Passthrough reports whether the vault stores tokens unencrypted.
func (v *Vault) Passthrough() bool {
	return len(v.key) == 0
}

// Encrypt seals plaintext with a fresh random nonce. In pass-through mode it
// returns the plaintext unchanged.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if v.Passthrough() {
		return plaintext, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	aesgcm, err := v.gcm()
	if err != nil {
		return "", err
	}

	// Seal appends the tag to the ciphertext; the stored layout keeps the
	// tag up front, right after the nonce.
	sealed := aesgcm.Seal(nil, nonce, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+tagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt. Malformed input (not base64,
// too short, or failing authentication) is treated as a legacy unencrypted
// token and returned unchanged. Callers cannot distinguish that fallback
// from a successful decryption of a plaintext that happens to decode.
func (v *Vault) Decrypt(value string) (string, error) {
	if v.Passthrough() {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil || len(raw) < nonceSize+tagSize {
		return value, nil
	}

	aesgcm, err := v.gcm()
	if err != nil {
		return "", err
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ct := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := aesgcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		// Pre-encryption-era value, pass it through.
		return value, nil
	}
	return string(plaintext), nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
