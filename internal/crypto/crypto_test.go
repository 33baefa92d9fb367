package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := NewCipher()
	for _, plain := range []string{
		"test_password_123",
		"",
		"пароль_测试_🔐",
		strings.Repeat("x", 4096),
	} {
		token, err := c.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", plain, err)
		}
		if token == plain && plain != "" {
			t.Errorf("token equals plaintext for %q", plain)
		}
		got, err := c.Decrypt(token)
		if err != nil {
			t.Fatalf("Decrypt error = %v", err)
		}
		if got != plain {
			t.Errorf("round trip = %q, want %q", got, plain)
		}
	}
}

func TestEncryptProducesDistinctTokens(t *testing.T) {
	c := NewCipher()
	t1, err := c.Encrypt("same_password")
	if err != nil {
		t.Fatal(err)
	}
	t2, err := c.Encrypt("same_password")
	if err != nil {
		t.Fatal(err)
	}
	if t1 == t2 {
		t.Error("two encryptions of the same plaintext produced identical tokens")
	}
	for _, tok := range []string{t1, t2} {
		got, err := c.Decrypt(tok)
		if err != nil {
			t.Fatal(err)
		}
		if got != "same_password" {
			t.Errorf("Decrypt = %q, want same_password", got)
		}
	}
}

func TestDecryptInvalidBase64(t *testing.T) {
	c := NewCipher()
	if _, err := c.Decrypt("not_valid_base64!@#"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestDecryptTooShort(t *testing.T) {
	c := NewCipher()
	short := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4, 5})
	if _, err := c.Decrypt(short); err == nil {
		t.Error("expected error for truncated token")
	}
}

func TestDecryptCorruptedData(t *testing.T) {
	c := NewCipher()
	token, err := c.Encrypt("test_password")
	if err != nil {
		t.Fatal(err)
	}
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-1] ^= 0xFF
	if _, err := c.Decrypt(base64.StdEncoding.EncodeToString(raw)); err == nil {
		t.Error("expected error for corrupted ciphertext")
	}
}

func TestKeyDerivationConsistency(t *testing.T) {
	c := NewCipher()
	salt := make([]byte, saltLen)
	for i := range salt {
		salt[i] = 1
	}
	k1 := c.deriveKey(salt)
	k2 := c.deriveKey(salt)
	if string(k1) != string(k2) {
		t.Error("same salt derived different keys")
	}

	salt[0] = 2
	k3 := c.deriveKey(salt)
	if string(k1) == string(k3) {
		t.Error("different salts derived identical keys")
	}
}

func TestHostBinding(t *testing.T) {
	t.Setenv("HOSTNAME", "host-a")
	t.Setenv("USER", "alice")
	a := NewCipher()
	token, err := a.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}

	// Same machine identity decrypts.
	if got, err := NewCipher().Decrypt(token); err != nil || got != "secret" {
		t.Fatalf("same-host decrypt = %q, %v", got, err)
	}

	// A different machine identity must not.
	t.Setenv("HOSTNAME", "host-b")
	if _, err := NewCipher().Decrypt(token); err == nil {
		t.Error("token decrypted under a different host identity")
	}
}
