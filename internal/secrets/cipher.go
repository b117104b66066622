// Package secrets provides the credential cipher used to protect stored
// connection passwords and SSH key material at rest.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

var (
	// ErrMissingSecret is returned when no master secret was supplied at startup.
	ErrMissingSecret = errors.New("master secret is not configured")

	// ErrIntegrity is returned when an envelope is malformed or its
	// authentication tag does not verify.
	ErrIntegrity = errors.New("envelope failed integrity check")
)

const (
	envelopeVersion = "v1"

	// The salt is fixed so the same master secret always derives the same key.
	keySalt = "vantage-credential-cipher"

	scryptN = 32768
	scryptR = 8
	scryptP = 1
	keyLen  = 32
)

// Cipher encrypts and decrypts short secrets using AES-256-GCM with a key
// derived once from the process-wide master secret.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the symmetric key from the master secret and returns a ready
// cipher. It fails if the secret is empty.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	key, err := scrypt.Key([]byte(secret), []byte(keySalt), scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive cipher key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext into a versioned envelope. Each call uses a fresh
// random nonce; the envelope carries nonce, ciphertext, and tag as separate
// base64 fields.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - c.aead.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	enc := base64.StdEncoding
	return strings.Join([]string{
		envelopeVersion,
		enc.EncodeToString(nonce),
		enc.EncodeToString(ciphertext),
		enc.EncodeToString(tag),
	}, ":"), nil
}

// IsEnvelope reports whether a value carries the envelope version prefix,
// i.e. was produced by Encrypt rather than supplied as plaintext.
func IsEnvelope(s string) bool {
	return strings.HasPrefix(s, envelopeVersion+":")
}

// Decrypt opens an envelope produced by Encrypt. Any malformed field or tag
// mismatch yields ErrIntegrity; garbage plaintext is never returned.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 4 || parts[0] != envelopeVersion {
		return "", ErrIntegrity
	}

	enc := base64.StdEncoding
	nonce, err := enc.DecodeString(parts[1])
	if err != nil || len(nonce) != c.aead.NonceSize() {
		return "", ErrIntegrity
	}
	ciphertext, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", ErrIntegrity
	}
	tag, err := enc.DecodeString(parts[3])
	if err != nil || len(tag) != c.aead.Overhead() {
		return "", ErrIntegrity
	}

	plaintext, err := c.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plaintext), nil
}
