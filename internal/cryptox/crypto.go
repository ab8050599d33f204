// Package cryptox implements the per-object content cipher: AES-256 in CTR
// mode with a nonce derived from the key itself.
//
// The nonce is a deterministic function of the key, which is only safe because
// every object receives its own random key. Never reuse a content key across
// objects.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/dmitrijs2005/flaxvault/internal/common"
)

const (
	// KeySize is the length of a decoded content key, in bytes (AES-256).
	KeySize = 32
	// NonceSize is the CTR initial counter block length, in bytes.
	NonceSize = aes.BlockSize
)

// NewContentKey returns a fresh random content key as a 64-character hex string.
func NewContentKey() (string, error) {
	return common.MakeRandHexString(KeySize)
}

// DecodeKey decodes a hex content key and checks its length.
func DecodeKey(contentKey string) ([]byte, error) {
	key, err := hex.DecodeString(contentKey)
	if err != nil {
		return nil, fmt.Errorf("decode content key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("content key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// DeriveNonce returns the first NonceSize bytes of SHA-256(key).
func DeriveNonce(key []byte) []byte {
	sum := sha256.Sum256(key)
	nonce := make([]byte, NonceSize)
	copy(nonce, sum[:NonceSize])
	return nonce
}

// NewStream builds the CTR keystream for contentKey. Encryption and
// decryption are the same operation, so callers use one stream per pass.
func NewStream(contentKey string) (cipher.Stream, error) {
	key, err := DecodeKey(contentKey)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return cipher.NewCTR(block, DeriveNonce(key)), nil
}

// NewReader wraps r so every byte read from it is transformed under contentKey.
// Applied to plaintext it yields ciphertext and vice versa.
func NewReader(r io.Reader, contentKey string) (io.Reader, error) {
	stream, err := NewStream(contentKey)
	if err != nil {
		return nil, err
	}
	return &cipher.StreamReader{S: stream, R: r}, nil
}

// Apply transforms data in one shot and returns a new slice.
func Apply(data []byte, contentKey string) ([]byte, error) {
	stream, err := NewStream(contentKey)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}
