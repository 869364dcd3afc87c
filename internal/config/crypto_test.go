package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretKey_EncryptDecrypt(t *testing.T) {
	t.Setenv("AULE_SECRET_KEY", "test-secret-key-for-unit-tests")

	sk, err := NewSecretKey()
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext string
	}{
		{"gemini key", "AIzaSyA-test-key-1234567890"},
		{"empty", ""},
		{"long key", "sk-proj-very-long-api-key-that-might-be-used-by-some-providers-1234567890"},
		{"special chars", "sk-+/=!@#$%^&*()"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := sk.Encrypt(tt.plaintext)
			require.NoError(t, err)

			if tt.plaintext == "" {
				assert.Empty(t, encrypted)
				return
			}
			assert.True(t, IsEncrypted(encrypted))
			assert.NotContains(t, encrypted, tt.plaintext)

			decrypted, err := sk.Decrypt(encrypted)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, decrypted)
		})
	}
}

func TestSecretKey_DecryptPassesPlaintextThrough(t *testing.T) {
	t.Setenv("AULE_SECRET_KEY", "test-key")
	sk, err := NewSecretKey()
	require.NoError(t, err)

	got, err := sk.Decrypt("plain-text-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-text-value", got)
}

func TestSecretKey_WrongKeyFails(t *testing.T) {
	t.Setenv("AULE_SECRET_KEY", "first")
	first, err := NewSecretKey()
	require.NoError(t, err)
	encrypted, err := first.Encrypt("AIza-secret")
	require.NoError(t, err)

	t.Setenv("AULE_SECRET_KEY", "second")
	second, err := NewSecretKey()
	require.NoError(t, err)

	_, err = second.Decrypt(encrypted)
	assert.Error(t, err)

	_, err = second.Decrypt("enc:not-base64!")
	assert.Error(t, err)
	_, err = second.Decrypt("enc:")
	assert.ErrorContains(t, err, "too short")
}

func TestLoadOrCreateKey_PersistsAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "secret.key")

	first, err := loadOrCreateKey(path)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	encrypted, err := first.Encrypt("AIza-secret")
	require.NoError(t, err)

	second, err := loadOrCreateKey(path)
	require.NoError(t, err)
	got, err := second.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "AIza-secret", got)
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"ab", "****"},
		{"abcd", "****"},
		{"sk-abc123def", "****3def"},
		{"AIzaSyA-test-key-12345", "****2345"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, MaskSecret(tt.input), "MaskSecret(%q)", tt.input)
	}
}
