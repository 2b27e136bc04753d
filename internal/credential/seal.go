package credential

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/brokkr-io/brokkr/internal/dalerr"
)

// Sealer encrypts and decrypts webhook URLs and auth headers with
// ChaCha20-Poly1305 keyed from the broker-wide encryption.key config value
// (distinct from the PAK pepper), per spec §4.1's "AES-256-GCM or
// equivalent". The stored blob is nonce ‖ ciphertext ‖ tag; the nonce is
// 96 bits of crypto/rand output generated fresh on every call to Seal.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a 32-byte key. Any other key length is a
// configuration error caught at startup, not at encryption time.
func NewSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("constructing ChaCha20-Poly1305 AEAD: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext, returning nonce‖ciphertext‖tag.
func (s *Sealer) Seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Open decrypts a nonce‖ciphertext‖tag blob produced by Seal. It fails
// closed on any authentication-tag mismatch or malformed input.
func (s *Sealer) Open(blob []byte) (string, error) {
	nonceSize := s.aead.NonceSize()
	if len(blob) < nonceSize {
		return "", dalerr.Wrap(dalerr.Fatal, "sealed blob shorter than nonce")
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", dalerr.Wrap(dalerr.Fatal, "decryption failed: %v", err)
	}
	return string(plaintext), nil
}
