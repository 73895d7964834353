package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
)

// Constants for AES-256-GCM encryption.
const (
	NonceSize = 12 // GCM standard nonce size
	TagSize   = 16 // GCM authentication tag size
	KeySize   = 32 // AES-256 key size

	// Overhead is the number of bytes Seal adds to a plaintext.
	Overhead = NonceSize + TagSize
)

// Errors returned by crypto operations.
var (
	ErrInvalidKey        = errors.New("invalid encryption key: must be 32 bytes")
	ErrDecryptFailed     = errors.New("decryption failed: authentication error")
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short")
	ErrKeyFileNotFound   = errors.New("encryption key file not found")
	ErrInvalidKeyFormat  = errors.New("invalid key format: must be 32 bytes or 64 hex chars")
)

// EncryptionKey holds the AES-256 key and cipher instance.
type EncryptionKey struct {
	key    []byte
	cipher cipher.AEAD
}

// NewEncryptionKey creates a new encryption key from raw bytes.
func NewEncryptionKey(key []byte) (*EncryptionKey, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	keyCopy := make([]byte, KeySize)
	copy(keyCopy, key)

	return &EncryptionKey{
		key:    keyCopy,
		cipher: gcm,
	}, nil
}

// GenerateKey generates a new random 256-bit encryption key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// LoadKeyFromFile loads an encryption key from a file.
// The file can contain either raw 32 bytes or 64 hex characters.
func LoadKeyFromFile(path string) (*EncryptionKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyFileNotFound
		}
		return nil, err
	}

	if len(data) == KeySize {
		return NewEncryptionKey(data)
	}

	trimmed := []byte(strings.TrimSpace(string(data)))
	switch len(trimmed) {
	case KeySize:
		return NewEncryptionKey(trimmed)
	case KeySize * 2:
		key := make([]byte, KeySize)
		if _, err := hex.Decode(key, trimmed); err != nil {
			return nil, ErrInvalidKeyFormat
		}
		return NewEncryptionKey(key)
	default:
		return nil, ErrInvalidKeyFormat
	}
}

// SaveKeyToFile saves an encryption key to a file in hex format.
func SaveKeyToFile(key []byte, path string) error {
	if len(key) != KeySize {
		return ErrInvalidKey
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(key)), 0600)
}

// Seal encrypts plaintext with a fresh random nonce and appends
// nonce + ciphertext + tag to dst. additionalData is authenticated but not
// encrypted.
func (k *EncryptionKey) Seal(dst, plaintext, additionalData []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	dst = append(dst, nonce[:]...)
	return k.cipher.Seal(dst, nonce[:], plaintext, additionalData), nil
}

// Open decrypts a payload produced by Seal and appends the plaintext to dst.
func (k *EncryptionKey) Open(dst, sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < Overhead {
		return nil, ErrInvalidCiphertext
	}
	out, err := k.cipher.Open(dst, sealed[:NonceSize], sealed[NonceSize:], additionalData)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return out, nil
}

// Clear zeros out the key material.
func (k *EncryptionKey) Clear() {
	clear(k.key)
}
