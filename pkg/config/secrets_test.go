package config

import (
	"errors"
	"os"
	"testing"
)

func TestEncryptDecryptSecretsRoundTrip(t *testing.T) {
	home := t.TempDir()

	password := "test-password-12345"
	secrets := map[string]string{
		"AZURE_AI_API_KEY":  "azure-test-key",
		"ANTHROPIC_API_KEY": "sk-ant-test123",
		"OPENAI_API_KEY":    "sk-test-openai",
	}

	if err := EncryptSecretsFile(home, password, secrets); err != nil {
		t.Fatalf("Failed to encrypt secrets: %v", err)
	}

	info, err := os.Stat(SecretsPath(home))
	if err != nil {
		t.Fatalf("Failed to stat secrets file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected file permissions 0600, got %04o", info.Mode().Perm())
	}

	decrypted, err := DecryptSecretsFile(home, password)
	if err != nil {
		t.Fatalf("Failed to decrypt secrets: %v", err)
	}
	if len(decrypted) != len(secrets) {
		t.Errorf("Expected %d secrets, got %d", len(secrets), len(decrypted))
	}
	for key, want := range secrets {
		if got := decrypted[key]; got != want {
			t.Errorf("Secret %s: expected %q, got %q", key, want, got)
		}
	}
}

func TestDecryptWithWrongPassword(t *testing.T) {
	home := t.TempDir()

	if err := EncryptSecretsFile(home, "correct-password", map[string]string{"X": "y"}); err != nil {
		t.Fatalf("Failed to encrypt secrets: %v", err)
	}

	_, err := DecryptSecretsFile(home, "wrong-password")
	if !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("Expected ErrWrongPassword, got %v", err)
	}
}

func TestDecryptFixesPermissions(t *testing.T) {
	home := t.TempDir()
	if err := EncryptSecretsFile(home, "pw", map[string]string{"X": "y"}); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(SecretsPath(home), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := DecryptSecretsFile(home, "pw"); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(SecretsPath(home))
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions not fixed: %04o", info.Mode().Perm())
	}
}

func TestGetSecretPrecedence(t *testing.T) {
	SetDecryptedSecrets(map[string]string{"TEST_SECRET": "from-secrets-file"})
	t.Cleanup(func() { SetDecryptedSecrets(nil) })
	t.Setenv("TEST_SECRET", "from-env-var")

	secret, err := GetSecret("TEST_SECRET")
	if err != nil {
		t.Fatalf("Expected to get secret, got error: %v", err)
	}
	if secret != "from-secrets-file" {
		t.Errorf("Expected secret from secrets file, got %q", secret)
	}

	SetDecryptedSecrets(map[string]string{"OTHER_SECRET": "other"})
	secret, err = GetSecret("TEST_SECRET")
	if err != nil || secret != "from-env-var" {
		t.Errorf("Expected env fallback, got %q, %v", secret, err)
	}

	if _, err := GetSecret("NOT_SET_ANYWHERE_123"); err == nil {
		t.Error("Expected error for unknown secret")
	}
}

func TestStoreAndLoadSecrets(t *testing.T) {
	home := t.TempDir()
	t.Cleanup(func() { SetDecryptedSecrets(nil) })

	if err := LoadSecrets(home, "pw"); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}

	if err := StoreSecret(home, "pw", "OPENAI_API_KEY", "sk-1"); err != nil {
		t.Fatal(err)
	}
	if err := StoreSecret(home, "pw", "ANTHROPIC_API_KEY", "sk-2"); err != nil {
		t.Fatal(err)
	}
	if err := StoreSecret(home, "bad", "X", "y"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected wrong password, got %v", err)
	}

	SetDecryptedSecrets(nil)
	if err := LoadSecrets(home, "pw"); err != nil {
		t.Fatal(err)
	}
	names := SecretNames()
	if len(names) != 2 || names[0] != "ANTHROPIC_API_KEY" || names[1] != "OPENAI_API_KEY" {
		t.Errorf("unexpected names %v", names)
	}
}
