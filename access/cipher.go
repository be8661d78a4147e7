package access

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrDecryptionFailed indicates the ciphertext could not be opened with the
	// supplied key: wrong key, corrupt blob or tampered content. GCM
	// authentication makes all three indistinguishable on purpose.
	ErrDecryptionFailed = errors.New("access: decryption failed")
	// ErrEmptyPlaintext indicates an attempt to seal empty content. An empty
	// plaintext would be indistinguishable from a wrong-key failure on the
	// read side, so it is rejected up front.
	ErrEmptyPlaintext = errors.New("access: plaintext must not be empty")
)

// ciphertextPrefix versions the on-the-wire ciphertext format:
// "g1:" + base64(nonce || AES-256-GCM sealed plaintext).
const ciphertextPrefix = "g1:"

// Encrypt seals a content reference under the supplied key. The nonce is
// random per call, so identical plaintext/key pairs produce distinct blobs.
func Encrypt(key Key, plaintext string) (string, error) {
	if strings.TrimSpace(plaintext) == "" {
		return "", ErrEmptyPlaintext
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("access: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("access: init gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("access: nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return ciphertextPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any failure — unknown
// format, bad base64, authentication mismatch or empty recovered plaintext —
// reports ErrDecryptionFailed so callers fall back from cached to re-derived
// to manually supplied keys without special-casing.
func Decrypt(key Key, ciphertext string) (string, error) {
	encoded, ok := strings.CutPrefix(ciphertext, ciphertextPrefix)
	if !ok {
		return "", fmt.Errorf("%w: unknown format", ErrDecryptionFailed)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("access: init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("access: init gcm: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext truncated", ErrDecryptionFailed)
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(plaintext) == 0 {
		return "", fmt.Errorf("%w: empty plaintext", ErrDecryptionFailed)
	}
	return string(plaintext), nil
}

// LooksLikeURL reports whether recovered content should be presented as a
// navigable link rather than secret text.
func LooksLikeURL(plaintext string) bool {
	trimmed := strings.TrimSpace(plaintext)
	return strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://")
}
