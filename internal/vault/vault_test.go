package vault

import (
	"bytes"
	"errors"
	"testing"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := New("test-secret", "test-salt")
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return v
}

func TestRoundTrip(t *testing.T) {
	v := newTestVault(t)
	for _, plaintext := range [][]byte{
		[]byte("waka_tok_abc123"),
		[]byte(""),
		bytes.Repeat([]byte{0x00}, 512),
	} {
		ct, err := v.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		pt, err := v.Decrypt(ct)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if !bytes.Equal(pt, plaintext) {
			t.Fatalf("round trip mismatch: got %q want %q", pt, plaintext)
		}
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	v := newTestVault(t)
	a, _ := v.Encrypt([]byte("same"))
	b, _ := v.Encrypt([]byte("same"))
	if bytes.Equal(a, b) {
		t.Fatal("two encryptions of the same plaintext must differ")
	}
}

func TestDecrypt_Tampered(t *testing.T) {
	v := newTestVault(t)
	ct, err := v.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ct[len(ct)-1] ^= 0xff
	if _, err := v.Decrypt(ct); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecrypt_TooShort(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.Decrypt([]byte{0x01, 0x02}); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecrypt_KeyRotation(t *testing.T) {
	v1 := newTestVault(t)
	v2, err := New("other-secret", "test-salt")
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	ct, err := v1.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := v2.Decrypt(ct); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed under rotated key, got %v", err)
	}
}

func TestStringRoundTrip(t *testing.T) {
	v := newTestVault(t)
	ct, err := v.EncryptString("waka_ref_xyz")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pt, err := v.DecryptString(ct)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if pt != "waka_ref_xyz" {
		t.Fatalf("round trip mismatch: %q", pt)
	}
}

func TestDecryptString_BadBase64(t *testing.T) {
	v := newTestVault(t)
	if _, err := v.DecryptString("not-base64!!!"); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestNew_EmptySecret(t *testing.T) {
	if _, err := New("", "salt"); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
