package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/crypto/scrypt"

	"openswe/pkg/logx"
)

// Secrets file configuration.
const (
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	scryptN         = 32768 // 2^15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32 // AES-256

	// EnvPassword unlocks the secrets file without a prompt.
	EnvPassword = "OPENSWE_PASSWORD"
)

// ErrWrongPassword reports a failed decryption.
var ErrWrongPassword = errors.New("decryption failed (wrong password or corrupted file)")

//nolint:gochecknoglobals // in-memory decrypted secrets shared by the process
var (
	decryptedSecrets    map[string]string
	decryptedSecretsMux sync.RWMutex
)

// SetDecryptedSecrets stores decrypted secrets in memory.
func SetDecryptedSecrets(secrets map[string]string) {
	decryptedSecretsMux.Lock()
	defer decryptedSecretsMux.Unlock()
	decryptedSecrets = secrets
}

// GetSecret returns a secret value by name: the decrypted secrets file first,
// then the environment.
func GetSecret(name string) (string, error) {
	decryptedSecretsMux.RLock()
	value, exists := decryptedSecrets[name]
	decryptedSecretsMux.RUnlock()
	if exists && value != "" {
		return value, nil
	}

	if value := os.Getenv(name); value != "" {
		return value, nil
	}

	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// SecretNames returns the sorted names (not values) of the decrypted secrets.
func SecretNames() []string {
	decryptedSecretsMux.RLock()
	defer decryptedSecretsMux.RUnlock()

	names := make([]string, 0, len(decryptedSecrets))
	for name := range decryptedSecrets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SecretsPath returns the encrypted secrets file under home.
func SecretsPath(home string) string {
	return filepath.Join(home, secretsFileName)
}

// SecretsFileExists checks if the secrets file exists under home.
func SecretsFileExists(home string) bool {
	_, err := os.Stat(SecretsPath(home))
	return err == nil
}

// LoadSecrets decrypts the secrets file under home into memory. A missing file
// or empty password is not an error; nothing is loaded.
func LoadSecrets(home, password string) error {
	if password == "" || !SecretsFileExists(home) {
		return nil
	}
	secrets, err := DecryptSecretsFile(home, password)
	if err != nil {
		return err
	}
	SetDecryptedSecrets(secrets)
	logx.NewLogger("config").Debug("loaded %d secrets from %s", len(secrets), SecretsPath(home))
	return nil
}

// StoreSecret adds or replaces one secret in the file under home, creating the
// file on first use.
func StoreSecret(home, password, name, value string) error {
	secrets := map[string]string{}
	if SecretsFileExists(home) {
		existing, err := DecryptSecretsFile(home, password)
		if err != nil {
			return err
		}
		secrets = existing
	}
	secrets[name] = value
	if err := EncryptSecretsFile(home, password, secrets); err != nil {
		return err
	}
	SetDecryptedSecrets(secrets)
	return nil
}

func deriveGCM(password, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// EncryptSecretsFile writes secrets to <home>/secrets.json.enc as
// [salt][nonce][ciphertext+tag] with mode 0600.
func EncryptSecretsFile(home, password string, secrets map[string]string) error {
	passwordBytes := []byte(password)
	defer clear(passwordBytes)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := deriveGCM(passwordBytes, salt)
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}
	defer clear(plaintext)

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	fileData := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	fileData = append(fileData, salt...)
	fileData = append(fileData, nonce...)
	fileData = append(fileData, ciphertext...)

	if err := os.MkdirAll(home, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", home, err)
	}
	if err := os.WriteFile(SecretsPath(home), fileData, 0600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile reads and decrypts <home>/secrets.json.enc, tightening
// its permissions to 0600 when they are looser.
func DecryptSecretsFile(home, password string) (map[string]string, error) {
	path := SecretsPath(home)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if info.Mode().Perm() != 0600 {
		logx.NewLogger("config").Warn("secrets file has permissions %04o, resetting to 0600", info.Mode().Perm())
		if chmodErr := os.Chmod(path, 0600); chmodErr != nil {
			return nil, fmt.Errorf("failed to fix file permissions: %w", chmodErr)
		}
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(fileData) < saltSize+nonceSize+16 { // 16 is the GCM tag size
		return nil, fmt.Errorf("secrets file is corrupted or invalid format (too small)")
	}

	salt := fileData[:saltSize]
	nonce := fileData[saltSize : saltSize+nonceSize]
	ciphertext := fileData[saltSize+nonceSize:]

	passwordBytes := []byte(password)
	defer clear(passwordBytes)

	gcm, err := deriveGCM(passwordBytes, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}
	defer clear(plaintext)

	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return secrets, nil
}
