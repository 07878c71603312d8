package credential

import (
	"errors"
	"strings"
	"testing"
)

type memKV map[string]string

func (m memKV) SetConfig(key, value string) error { m[key] = value; return nil }
func (m memKV) GetConfig(key string) (string, error) { return m[key], nil }

func newTestVault(t *testing.T) (*Vault, memKV) {
	t.Helper()
	kv := memKV{}
	v, err := NewVault(kv)
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}
	return v, kv
}

func TestVault_SealOpen(t *testing.T) {
	v, _ := newTestVault(t)

	testCases := []struct {
		name      string
		plaintext string
	}{
		{"empty string", ""},
		{"simple api key", "sk-1234567890abcdef"},
		{"long key", strings.Repeat("a", 1000)},
		{"unicode content", "api-key-日本語-🔑"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := v.Seal(tc.plaintext)
			if err != nil {
				t.Fatalf("seal failed: %v", err)
			}
			if tc.plaintext == "" {
				if sealed != "" {
					t.Errorf("empty string should not be encrypted, got: %s", sealed)
				}
				return
			}
			if !IsEncrypted(sealed) || strings.Contains(sealed, tc.plaintext) {
				t.Errorf("unexpected sealed form: %s", sealed)
			}

			opened, err := v.Open(sealed)
			if err != nil {
				t.Fatalf("open failed: %v", err)
			}
			if opened != tc.plaintext {
				t.Errorf("got %q, want %q", opened, tc.plaintext)
			}
		})
	}
}

func TestVault_SetGet(t *testing.T) {
	v, kv := newTestVault(t)

	if err := v.Set("openai.api_key", "sk-secret-value"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !IsEncrypted(kv["openai.api_key"]) {
		t.Errorf("api key stored in plaintext: %q", kv["openai.api_key"])
	}
	got, err := v.Get("openai.api_key")
	if err != nil || got != "sk-secret-value" {
		t.Errorf("Get = %q, %v", got, err)
	}

	v.Set("vision.model", "gpt-4.1-nano")
	if kv["vision.model"] != "gpt-4.1-nano" {
		t.Error("non-secret keys should be stored as-is")
	}
}

func TestVault_OpenPlaintextAndInvalid(t *testing.T) {
	v, _ := newTestVault(t)

	if got, _ := v.Open("sk-not-encrypted"); got != "sk-not-encrypted" {
		t.Errorf("plaintext should pass through, got %q", got)
	}

	for _, in := range []string{EncryptedPrefix + "not-valid-base64!!!", EncryptedPrefix + "YWJj"} {
		if _, err := v.Open(in); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Open(%q): expected ErrInvalidFormat, got %v", in, err)
		}
	}
}

func TestVault_WrongKey(t *testing.T) {
	a, _ := newVault(memKV{}, make([]byte, 32))
	other := make([]byte, 32)
	other[0] = 1
	b, _ := newVault(memKV{}, other)

	sealed, _ := a.Seal("sk-secret")
	if _, err := b.Open(sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestVault_DifferentNonces(t *testing.T) {
	v, _ := newTestVault(t)
	s1, _ := v.Seal("test-api-key")
	s2, _ := v.Seal("test-api-key")
	if s1 == s2 {
		t.Error("same plaintext should produce different ciphertext")
	}
}

func TestIsSecret(t *testing.T) {
	for key, want := range map[string]bool{
		"openai.api_key":    true,
		"anthropic.api_key": true,
		"chat.model":        false,
	} {
		if IsSecret(key) != want {
			t.Errorf("IsSecret(%q) != %v", key, want)
		}
	}
}

func TestMaskSecret(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"", "****"},
		{"12345678", "****"},
		{"sk-1234567890abcdef", "sk-1...cdef"},
	}
	for _, tc := range testCases {
		if got := MaskSecret(tc.input); got != tc.expected {
			t.Errorf("MaskSecret(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}
