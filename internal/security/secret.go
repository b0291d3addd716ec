package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	secretKeyEnv = "SETTINGS_ENCRYPTION_KEY"
	// EncryptionPrefix marks a settings value produced by EncryptSecret.
	EncryptionPrefix = "enc:"
)

var (
	cipherOnce sync.Once
	cipherInst cipher.AEAD
	cipherErr  error
)

func getCipher() (cipher.AEAD, error) {
	cipherOnce.Do(func() {
		rawKey := strings.TrimSpace(os.Getenv(secretKeyEnv))
		if rawKey == "" {
			cipherErr = errors.New("settings encryption key not set: " + secretKeyEnv)
			return
		}

		block, err := aes.NewCipher(deriveKey(rawKey))
		if err != nil {
			cipherErr = fmt.Errorf("create cipher: %w", err)
			return
		}

		gcm, err := cipher.NewGCM(block)
		if err != nil {
			cipherErr = fmt.Errorf("create gcm: %w", err)
			return
		}
		cipherInst = gcm
	})

	return cipherInst, cipherErr
}

// deriveKey accepts a base64 AES key of a valid size or hashes anything else.
func deriveKey(raw string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		switch len(decoded) {
		case 16, 24, 32:
			return decoded
		}
	}
	sum := sha256.Sum256([]byte(raw))
	return sum[:]
}

// EncryptSecret seals plain for storage in the settings file.
func EncryptSecret(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}

	gcm, err := getCipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	payload := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return EncryptionPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// RevealSecret returns the plain text of value. Values without the
// encryption prefix are returned as they are.
func RevealSecret(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EncryptionPrefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := getCipher()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) <= nonceSize {
		return "", errors.New("ciphertext too short")
	}

	plain, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt ciphertext: %w", err)
	}
	return string(plain), nil
}

func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptionPrefix)
}

// ResetCipherForTests drops the cached cipher so a new key is picked up.
func ResetCipherForTests() {
	cipherOnce = sync.Once{}
	cipherInst = nil
	cipherErr = nil
}
