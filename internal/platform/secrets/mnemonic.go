// Package secrets resolves the wallet service's BIP-39 mnemonic at
// startup: either read in clear from config, or decrypted once from an
// encrypted-at-rest value. The mnemonic never touches a log line.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/protocol-bank/wallet-onboarding/internal/apperr"
)

const hkdfInfo = "wallet-service-mnemonic-v1"

// deriveKey stretches an operator-supplied encryption key into a 32-byte
// AES-256 key via HKDF-SHA256, the same derive-then-symmetric-encrypt
// shape this pipeline's wider stack uses for secret material at rest.
func deriveKey(encryptionKey string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(encryptionKey), nil, []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}
	return key, nil
}

// Encrypt seals mnemonic for storage as MNEMONIC_ENCRYPTED with AES-256-GCM,
// prefixing the random nonce to the ciphertext. Exposed mainly so operators
// and tests can produce a value Resolve can read back.
func Encrypt(mnemonic, encryptionKey string) (string, error) {
	key, err := deriveKey(encryptionKey)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(mnemonic), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decrypt reverses Encrypt.
func decrypt(encoded, encryptionKey string) (string, error) {
	key, err := deriveKey(encryptionKey)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}

// Resolve returns the clear-text mnemonic: mnemonic if non-empty, else the
// decryption of mnemonicEncrypted with encryptionKey. A missing or
// undecryptable mnemonic is fatal and reported as MNEMONIC_SECURITY.
func Resolve(mnemonic, mnemonicEncrypted, encryptionKey string) (string, error) {
	if mnemonic != "" {
		return mnemonic, nil
	}
	if mnemonicEncrypted == "" {
		return "", apperr.New(apperr.CodeMnemonicSecurity, "no mnemonic configured")
	}
	if encryptionKey == "" {
		return "", apperr.New(apperr.CodeMnemonicSecurity, "encryption key required to decrypt mnemonic")
	}

	plain, err := decrypt(mnemonicEncrypted, encryptionKey)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeMnemonicSecurity, "failed to decrypt mnemonic", err)
	}
	return plain, nil
}
