package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks values produced by Seal so plaintext rows written before a key was
// configured can still be read.
const sealedPrefix = "gcm:"

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Sealer encrypts small secrets (TOTP seeds) before they are written to the users table.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key string) (*Sealer, error) {
	if strings.TrimSpace(key) == "" {
		return &Sealer{}, nil
	}
	decoded := decodeKey(key)
	if len(decoded) != 32 {
		return nil, fmt.Errorf("DATA_ENCRYPTION_KEY must be 32 bytes after decoding, got %d", len(decoded))
	}
	block, err := aes.NewCipher(decoded)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Configured() bool {
	return s != nil && s.aead != nil
}

// Seal returns a text value safe to store in a TEXT column.
func (s *Sealer) Seal(plain string) (string, error) {
	if plain == "" || !s.Configured() {
		return plain, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plain), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (s *Sealer) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if !s.Configured() {
		return "", errors.New("encrypted value found but DATA_ENCRYPTION_KEY is not set")
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", err
	}
	if len(raw) < s.aead.NonceSize() {
		return "", ErrCiphertextTooShort
	}
	nonce, data := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, data, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func decodeKey(raw string) []byte {
	if len(raw) == 64 {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	return []byte(raw)
}
