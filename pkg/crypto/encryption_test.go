package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor(bytes.Repeat([]byte{0x42}, KeySize), 1)
	if err != nil {
		t.Fatalf("new encryptor: %v", err)
	}

	secret := "api-secret-xyz-123"
	sealed, err := enc.Encrypt(secret)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !strings.HasPrefix(sealed, "ENC[v1]:") {
		t.Fatalf("missing version prefix: %q", sealed)
	}
	if ParseVersion(sealed) != 1 {
		t.Fatalf("ParseVersion=%d, expected 1", ParseVersion(sealed))
	}

	opened, err := enc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if opened != secret {
		t.Fatalf("round trip mismatch: %q != %q", opened, secret)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	enc, _ := NewEncryptor(bytes.Repeat([]byte{0x01}, KeySize), 1)

	for _, input := range []string{"", "plaintext", "ENC[v1]:!!notbase64", "ENC[v1]:QQ=="} {
		if _, err := enc.Decrypt(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}

	// Tampered ciphertext must fail authentication.
	sealed, _ := enc.Encrypt("hello")
	tampered := sealed[:len(sealed)-2] + "AA"
	if _, err := enc.Decrypt(tampered); err == nil {
		t.Fatal("expected auth failure for tampered ciphertext")
	}
}

func TestWrongKeyFailsDecryption(t *testing.T) {
	encA, _ := NewEncryptor(bytes.Repeat([]byte{0xAA}, KeySize), 1)
	encB, _ := NewEncryptor(bytes.Repeat([]byte{0xBB}, KeySize), 1)

	sealed, _ := encA.Encrypt("secret")
	if _, err := encB.Decrypt(sealed); err != ErrDecryptionFailed {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestKeySizeValidation(t *testing.T) {
	if _, err := NewEncryptor([]byte("short"), 1); err != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := NewEncryptorHex("deadbeef", 1); err == nil {
		t.Fatal("expected error for short hex key")
	}
}
