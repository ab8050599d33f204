package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestNewContentKey(t *testing.T) {
	k1, err := NewContentKey()
	require.NoError(t, err)
	k2, err := NewContentKey()
	require.NoError(t, err)

	assert.Len(t, k1, 2*KeySize)
	assert.NotEqual(t, k1, k2)

	_, err = DecodeKey(k1)
	require.NoError(t, err)
}

func TestDecodeKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "ok", key: testKey},
		{name: "not hex", key: strings.Repeat("zz", KeySize), wantErr: true},
		{name: "short", key: "0011", wantErr: true},
		{name: "long", key: testKey + "00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DecodeKey(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, key, KeySize)
		})
	}
}

func TestDeriveNonce_IsHashPrefix(t *testing.T) {
	key, err := DecodeKey(testKey)
	require.NoError(t, err)

	sum := sha256.Sum256(key)
	assert.Equal(t, sum[:16], DeriveNonce(key))
}

func TestApply_MatchesReferenceCTR(t *testing.T) {
	key, _ := hex.DecodeString(testKey)
	plaintext := []byte("attack at dawn, bring snacks")

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	sum := sha256.Sum256(key)
	want := make([]byte, len(plaintext))
	cipher.NewCTR(block, sum[:16]).XORKeyStream(want, plaintext)

	got, err := Apply(plaintext, testKey)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestApply_RoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 15, 16, 17, 4096, 1<<16 + 3} {
		key, err := NewContentKey()
		require.NoError(t, err)

		data := make([]byte, size)
		_, _ = rand.Read(data)

		ct, err := Apply(data, key)
		require.NoError(t, err)
		require.Len(t, ct, size)
		if size >= 16 {
			assert.NotEqual(t, data, ct)
		}

		pt, err := Apply(ct, key)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(data, pt), "size %d", size)
	}
}

func TestNewReader_ChunkedReadsMatchOneShot(t *testing.T) {
	data := make([]byte, 100_000)
	_, _ = rand.Read(data)

	want, err := Apply(data, testKey)
	require.NoError(t, err)

	r, err := NewReader(bytes.NewReader(data), testKey)
	require.NoError(t, err)

	var got bytes.Buffer
	buf := make([]byte, 777)
	_, err = io.CopyBuffer(&got, r, buf)
	require.NoError(t, err)

	assert.Equal(t, want, got.Bytes())
}

func TestNewStream_BadKey(t *testing.T) {
	_, err := NewStream("abc")
	require.Error(t, err)

	_, err = NewReader(bytes.NewReader(nil), "abc")
	require.Error(t, err)
}
