// Package credential keeps provider API keys encrypted at rest.
//
// Values are sealed with AES-256-GCM under a key derived from machine and
// user identifiers, so a copied database cannot be read elsewhere.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/zeebo/blake3"
)

// EncryptedPrefix marks values as encrypted in storage.
const EncryptedPrefix = "enc:v1:"

const keyContext = "recall 2025 credential vault v1"

var (
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidFormat    = errors.New("invalid encrypted format")
)

// KV is the configuration table the vault reads and writes.
type KV interface {
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)
}

// Vault encrypts secrets on the way into a KV and decrypts them on the way out.
type Vault struct {
	kv   KV
	aead cipher.AEAD
}

// NewVault opens a vault over kv using the machine key.
func NewVault(kv KV) (*Vault, error) {
	return newVault(kv, machineKey())
}

func newVault(kv KV, key []byte) (*Vault, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Vault{kv: kv, aead: aead}, nil
}

// IsSecret reports whether a config key holds a credential.
func IsSecret(key string) bool {
	return strings.HasSuffix(key, ".api_key") || strings.HasSuffix(key, "_token")
}

// Set stores value under key, encrypting it when the key is a secret.
func (v *Vault) Set(key, value string) error {
	if IsSecret(key) {
		sealed, err := v.Seal(value)
		if err != nil {
			return err
		}
		value = sealed
	}
	return v.kv.SetConfig(key, value)
}

// Get returns the plaintext value stored under key.
func (v *Vault) Get(key string) (string, error) {
	stored, err := v.kv.GetConfig(key)
	if err != nil {
		return "", err
	}
	return v.Open(stored)
}

// Seal encrypts plaintext. The empty string stays empty.
func (v *Vault) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a stored value. Values without the prefix are returned
// unchanged, which covers keys written before encryption was enabled.
func (v *Vault) Open(stored string) (string, error) {
	if !IsEncrypted(stored) {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrInvalidFormat, err)
	}
	n := v.aead.NonceSize()
	if len(raw) < n {
		return "", ErrInvalidFormat
	}
	plaintext, err := v.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// IsEncrypted checks if a value is already encrypted.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// machineKey derives a 32-byte key stable across restarts for this user
// on this host.
func machineKey() []byte {
	hostname, _ := os.Hostname()
	home, _ := os.UserHomeDir()
	material := strings.Join([]string{
		hostname,
		home,
		runtime.GOOS + "/" + runtime.GOARCH,
		fmt.Sprintf("uid:%d", os.Getuid()),
		os.Getenv("USER"),
	}, "\x00")

	key := make([]byte, 32)
	blake3.DeriveKey(keyContext, []byte(material), key)
	return key
}

// MaskSecret returns a masked version of a secret for display purposes.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
