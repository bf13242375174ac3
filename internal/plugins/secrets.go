package plugins

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Plugin configuration often carries API tokens for third-party services,
// so it is sealed with AES-GCM under a key derived from the server's
// private key before it touches the database.

// SealConfig encrypts a config map into a base64 blob (nonce || ciphertext).
func SealConfig(privateKey string, config map[string]string) (string, error) {
	plaintext, err := json.Marshal(config)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(privateKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenConfig decrypts a blob produced by SealConfig.
func OpenConfig(privateKey, blob string) (map[string]string, error) {
	if blob == "" {
		return map[string]string{}, nil
	}

	sealed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("corrupt config blob: %w", err)
	}

	gcm, err := newGCM(privateKey)
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("corrupt config blob: too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt config: %w", err)
	}

	var config map[string]string
	if err := json.Unmarshal(plaintext, &config); err != nil {
		return nil, err
	}
	return config, nil
}

// newGCM derives a 32-byte key from the private key so any key length the
// operator configures still yields a valid AES-256 key.
func newGCM(privateKey string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(privateKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
