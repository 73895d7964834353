package crypto

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func newTestKey(t *testing.T) *EncryptionKey {
	t.Helper()
	raw, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	key, err := NewEncryptionKey(raw)
	if err != nil {
		t.Fatalf("NewEncryptionKey() error = %v", err)
	}
	return key
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("GenerateKey() key length = %d, want %d", len(key), KeySize)
	}
	key2, _ := GenerateKey()
	if bytes.Equal(key, key2) {
		t.Error("GenerateKey() generated duplicate keys")
	}
}

func TestNewEncryptionKeyInvalidSize(t *testing.T) {
	tests := []struct {
		name    string
		keySize int
	}{
		{"too short", 16},
		{"too long", 64},
		{"empty", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEncryptionKey(make([]byte, tt.keySize)); err != ErrInvalidKey {
				t.Errorf("NewEncryptionKey() error = %v, want %v", err, ErrInvalidKey)
			}
		})
	}
}

func TestSealOpen(t *testing.T) {
	key := newTestKey(t)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", nil},
		{"short", []byte("page image")},
		{"page", bytes.Repeat([]byte{0x5A}, 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			aad := []byte("tx-header")
			sealed, err := key.Seal(nil, tt.plaintext, aad)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if len(sealed) != len(tt.plaintext)+Overhead {
				t.Errorf("sealed length = %d, want %d", len(sealed), len(tt.plaintext)+Overhead)
			}
			opened, err := key.Open(nil, sealed, aad)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(opened, tt.plaintext) {
				t.Error("Open() did not return the original plaintext")
			}
		})
	}
}

func TestSealAppendsToDst(t *testing.T) {
	key := newTestKey(t)
	prefix := []byte("header")

	sealed, err := key.Seal(append([]byte(nil), prefix...), []byte("data"), nil)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if !bytes.HasPrefix(sealed, prefix) {
		t.Error("Seal() did not keep dst prefix")
	}
	opened, err := key.Open(nil, sealed[len(prefix):], nil)
	if err != nil || string(opened) != "data" {
		t.Errorf("Open() = %q, %v", opened, err)
	}
}

func TestOpenFailures(t *testing.T) {
	key := newTestKey(t)
	other := newTestKey(t)
	sealed, _ := key.Seal(nil, []byte("secret"), []byte("aad"))

	tampered := append([]byte(nil), sealed...)
	tampered[NonceSize] ^= 0xFF

	tests := []struct {
		name    string
		key     *EncryptionKey
		payload []byte
		aad     []byte
		want    error
	}{
		{"wrong key", other, sealed, []byte("aad"), ErrDecryptFailed},
		{"wrong aad", key, sealed, []byte("other"), ErrDecryptFailed},
		{"tampered", key, tampered, []byte("aad"), ErrDecryptFailed},
		{"too short", key, sealed[:Overhead-1], []byte("aad"), ErrInvalidCiphertext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.key.Open(nil, tt.payload, tt.aad); err != tt.want {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadKeyFromFile(t *testing.T) {
	dir := t.TempDir()
	raw, _ := GenerateKey()

	hexPath := filepath.Join(dir, "hex.key")
	if err := SaveKeyToFile(raw, hexPath); err != nil {
		t.Fatalf("SaveKeyToFile() error = %v", err)
	}
	rawPath := filepath.Join(dir, "raw.key")
	os.WriteFile(rawPath, raw, 0600)
	badPath := filepath.Join(dir, "bad.key")
	os.WriteFile(badPath, []byte("nope"), 0600)

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"hex", hexPath, nil},
		{"raw", rawPath, nil},
		{"bad format", badPath, ErrInvalidKeyFormat},
		{"missing", filepath.Join(dir, "missing.key"), ErrKeyFileNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := LoadKeyFromFile(tt.path)
			if err != tt.wantErr {
				t.Fatalf("LoadKeyFromFile() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && !bytes.Equal(key.key, raw) {
				t.Error("loaded key does not match")
			}
		})
	}
}

func TestSaveKeyToFileInvalidKey(t *testing.T) {
	if err := SaveKeyToFile([]byte("short"), filepath.Join(t.TempDir(), "k")); err != ErrInvalidKey {
		t.Errorf("SaveKeyToFile() error = %v, want %v", err, ErrInvalidKey)
	}
}

func TestClear(t *testing.T) {
	key := newTestKey(t)
	key.Clear()
	for _, b := range key.key {
		if b != 0 {
			t.Fatal("Clear() left key material")
		}
	}
}
