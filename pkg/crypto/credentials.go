// Package crypto encrypts datasource credentials at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/ekaya-inc/ekaya-datasources/pkg/models"
)

var (
	// ErrInvalidKey is returned when the encryption key is empty.
	ErrInvalidKey = errors.New("invalid encryption key: must not be empty")
	// ErrDecryptionFailed is returned when a stored secret cannot be opened with the configured key.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or wrong key")
)

// CredentialEncryptor seals secrets with AES-256-GCM.
type CredentialEncryptor struct {
	aead cipher.AEAD
}

// NewCredentialEncryptor accepts either a base64-encoded 32-byte key
// (openssl rand -base64 32) or an arbitrary passphrase, which is hashed
// with SHA-256.
func NewCredentialEncryptor(keyInput string) (*CredentialEncryptor, error) {
	if keyInput == "" {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(deriveKey(keyInput))
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialEncryptor{aead: aead}, nil
}

func deriveKey(keyInput string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(keyInput); err == nil && len(decoded) == 32 {
		return decoded
	}
	sum := sha256.Sum256([]byte(keyInput))
	return sum[:]
}

// Encrypt returns base64(nonce || ciphertext || tag). Empty input stays empty.
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Empty input stays empty.
func (e *CredentialEncryptor) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrDecryptionFailed)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize+e.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	plaintext, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}

	return string(plaintext), nil
}

// EncryptConfiguration returns a copy of cfg with its password sealed.
func (e *CredentialEncryptor) EncryptConfiguration(cfg *models.DatasourceConfiguration) (*models.DatasourceConfiguration, error) {
	return e.transformPassword(cfg, e.Encrypt)
}

// DecryptConfiguration returns a copy of cfg with its password opened.
func (e *CredentialEncryptor) DecryptConfiguration(cfg *models.DatasourceConfiguration) (*models.DatasourceConfiguration, error) {
	return e.transformPassword(cfg, e.Decrypt)
}

func (e *CredentialEncryptor) transformPassword(cfg *models.DatasourceConfiguration, fn func(string) (string, error)) (*models.DatasourceConfiguration, error) {
	out := cfg.Clone()
	if out == nil || out.Authentication == nil || out.Authentication.Password == "" {
		return out, nil
	}

	password, err := fn(out.Authentication.Password)
	if err != nil {
		return nil, err
	}
	out.Authentication.Password = password
	return out, nil
}
