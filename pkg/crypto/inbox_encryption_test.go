package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestEncryptorSealOpen(t *testing.T) {
	enc, err := NewEncryptor([]byte("short-key"))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	sealed, err := enc.Seal("ya29.access-token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !strings.HasPrefix(sealed, sealedPrefix) {
		t.Errorf("expected sealed value to carry prefix, got %q", sealed)
	}
	if strings.Contains(sealed, "ya29") {
		t.Error("sealed value leaks plaintext")
	}

	opened, err := enc.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != "ya29.access-token" {
		t.Errorf("expected %q, got %q", "ya29.access-token", opened)
	}
}

func TestEncryptorOpenPlaintextPassthrough(t *testing.T) {
	enc, _ := NewEncryptor([]byte("k"))
	got, err := enc.Open("legacy-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "legacy-token" {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestEncryptorEmpty(t *testing.T) {
	enc, _ := NewEncryptor([]byte("k"))
	sealed, err := enc.Seal("")
	if err != nil || sealed != "" {
		t.Errorf("expected empty seal, got %q, %v", sealed, err)
	}
}

func TestOpenWithWrongKey(t *testing.T) {
	a, _ := NewEncryptor([]byte("key-a"))
	b, _ := NewEncryptor([]byte("key-b"))

	sealed, _ := a.Seal("secret")
	if _, err := b.Open(sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestPlainRejectsSealed(t *testing.T) {
	enc, _ := NewEncryptor([]byte("k"))
	sealed, _ := enc.Seal("secret")
	if _, err := (Plain{}).Open(sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}
