package coursesync

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncryptor_PasswordRoundTrip(t *testing.T) {
	enc, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "outline-secret"})
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	plaintext := []byte("unpublished course material")
	sealed, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatalf("sealed blob contains plaintext")
	}

	opened, err := enc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("round trip mismatch: %q", opened)
	}
}

func TestEncryptor_RawKeyRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	enc, err := NewEncryptor(EncryptionConfig{Enabled: true, Key: key})
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	sealed, err := enc.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	opened, err := enc.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(opened) != "payload" {
		t.Errorf("round trip mismatch: %q", opened)
	}
}

func TestEncryptor_SealedBlobsAreSelfContained(t *testing.T) {
	// Two encryptors created from the same password share no state; the salt
	// embedded in each blob is enough to decrypt it.
	a, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "pw"})
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	b, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "pw"})
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	sealed, err := a.Encrypt([]byte("shared"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	opened, err := b.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt with fresh encryptor: %v", err)
	}
	if string(opened) != "shared" {
		t.Errorf("round trip mismatch: %q", opened)
	}
}

func TestEncryptor_WrongPasswordFails(t *testing.T) {
	enc, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "right"})
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	sealed, err := enc.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	wrong, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "wrong"})
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	if _, err := wrong.Decrypt(sealed); err == nil {
		t.Errorf("expected decryption failure with wrong password")
	}
}

func TestNewEncryptor_Validation(t *testing.T) {
	t.Run("DisabledReturnsNil", func(t *testing.T) {
		enc, err := NewEncryptor(EncryptionConfig{})
		if err != nil || enc != nil {
			t.Errorf("expected (nil, nil) when disabled, got (%v, %v)", enc, err)
		}
	})

	t.Run("ShortKey", func(t *testing.T) {
		_, err := NewEncryptor(EncryptionConfig{Enabled: true, Key: []byte("short")})
		if !errors.Is(err, ErrEncryptionKey) {
			t.Errorf("expected ErrEncryptionKey, got %v", err)
		}
	})

	t.Run("NoKeyOrPassword", func(t *testing.T) {
		if _, err := NewEncryptor(EncryptionConfig{Enabled: true}); err == nil {
			t.Errorf("expected error when enabled without key material")
		}
	})
}

func TestEncryptor_TruncatedBlob(t *testing.T) {
	enc, err := NewEncryptor(EncryptionConfig{Enabled: true, KeyPassword: "pw"})
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	if _, err := enc.Decrypt([]byte("too short")); err == nil {
		t.Errorf("expected error for truncated blob")
	}
}
