// Package crypto encrypts secrets stored in the configuration file using
// AES-256-GCM. The key is derived from stable machine identifiers, so tokens
// survive restarts on the same host and user but are useless elsewhere.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"sshpilot/internal/apperr"
)

const (
	saltLen          = 16
	nonceLen         = 12
	keyLen           = 32
	pbkdf2Iterations = 100_000
)

// Cipher produces opaque tokens of the form base64(salt || nonce || sealed).
// A fresh salt and nonce are drawn on every Encrypt call, so encrypting the
// same plaintext twice yields distinct tokens.
type Cipher struct {
	secret []byte
}

// NewCipher builds a cipher bound to this host and user. HOSTNAME/COMPUTERNAME
// and USER/USERNAME are consulted with fixed fallbacks so the derivation never
// fails outright.
func NewCipher() *Cipher {
	hostname := firstEnv("HOSTNAME", "COMPUTERNAME")
	if hostname == "" {
		if h, err := os.Hostname(); err == nil {
			hostname = h
		} else {
			hostname = "default_host"
		}
	}
	username := firstEnv("USER", "USERNAME")
	if username == "" {
		username = "default_user"
	}
	return &Cipher{secret: []byte("sshpilot_" + hostname + "_" + username)}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func (c *Cipher) deriveKey(salt []byte) []byte {
	return pbkdf2.Key(c.secret, salt, pbkdf2Iterations, keyLen, sha256.New)
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.deriveKey(salt))
	if err != nil {
		return nil, apperr.New(apperr.Encryption, "failed to create cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.New(apperr.Encryption, "failed to create GCM", err)
	}
	return aead, nil
}

// Encrypt seals plaintext into an opaque token.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", apperr.New(apperr.Encryption, "failed to generate salt", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", apperr.New(apperr.Encryption, "failed to generate nonce", err)
	}

	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	combined := make([]byte, 0, saltLen+nonceLen+len(sealed))
	combined = append(combined, salt...)
	combined = append(combined, nonce...)
	combined = append(combined, sealed...)
	return base64.StdEncoding.EncodeToString(combined), nil
}

// Decrypt opens a token produced by Encrypt and returns the exact plaintext.
func (c *Cipher) Decrypt(token string) (string, error) {
	combined, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", apperr.New(apperr.Encryption, "invalid base64 encoding", err)
	}
	// The GCM tag alone is 16 bytes, so anything shorter cannot be a token.
	if len(combined) < saltLen+nonceLen+16 {
		return "", apperr.Newf(apperr.Encryption, "invalid encrypted data length")
	}

	salt := combined[:saltLen]
	nonce := combined[saltLen : saltLen+nonceLen]
	sealed := combined[saltLen+nonceLen:]

	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", apperr.New(apperr.Encryption, "failed to decrypt", err)
	}
	return string(plain), nil
}
