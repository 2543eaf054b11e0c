package cryptoutil

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func testKey(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, keyLen)
}

func TestDecodeKeyEncodings(t *testing.T) {
	want := testKey(7)
	for name, key := range map[string]string{
		"base64":        base64.StdEncoding.EncodeToString(want),
		"base64 tagged": "base64:" + base64.StdEncoding.EncodeToString(want),
		"base64 url":    base64.RawURLEncoding.EncodeToString(want),
		"hex":           hex.EncodeToString(want),
		"hex tagged":    "hex:" + hex.EncodeToString(want),
		"padded":        "  " + hex.EncodeToString(want) + "\n",
	} {
		got, err := decodeKey(key)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("%s: unexpected key bytes", name)
		}
	}
}

func TestDecodeKeyRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "   ", base64.StdEncoding.EncodeToString([]byte("short")), "hex:zz", strings.Repeat("g", 64)} {
		if _, err := decodeKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestConfigRoundTrip(t *testing.T) {
	key := hex.EncodeToString(testKey(1))
	plain := []byte("backup_dir: /var/backups\nremote:\n  bucket: b\n")
	sealed, err := EncryptConfig(plain, key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, []byte("backup_dir")) {
		t.Fatalf("ciphertext contains plaintext")
	}
	// the same key in another encoding opens it
	opened, err := DecryptConfig(sealed, base64.StdEncoding.EncodeToString(testKey(1)))
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plain) {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestEncryptConfigBadKey(t *testing.T) {
	if _, err := EncryptConfig([]byte("x: 1"), "nope"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestDecryptConfigWrongKey(t *testing.T) {
	sealed, err := EncryptConfig([]byte("secret: 1"), hex.EncodeToString(testKey(1)))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := DecryptConfig(sealed, hex.EncodeToString(testKey(2))); err == nil {
		t.Fatalf("expected error with wrong key")
	}
}

func TestDecryptConfigPlaintext(t *testing.T) {
	_, err := DecryptConfig([]byte("backup_dir: /tmp"), hex.EncodeToString(testKey(1)))
	if !errors.Is(err, ErrNotEncrypted) {
		t.Fatalf("expected ErrNotEncrypted, got %v", err)
	}
}
