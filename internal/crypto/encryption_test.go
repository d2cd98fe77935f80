package crypto

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/krathor2212/medcrypt/internal/cryptoerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyWrapping(t *testing.T) {
	kw := NewKeyWrapping(nil)

	assert.NotNil(t, kw)
	assert.NotNil(t, kw.random)
}

func TestKeyWrapping_WrapUnwrap_Roundtrip(t *testing.T) {
	kw := NewKeyWrapping(nil)

	testData := [][]byte{
		{},
		{0x00},
		[]byte("patient private exponent"),
		bytes.Repeat([]byte{0x00}, 256),
		make([]byte, 4096),
	}
	_, err := rand.Read(testData[4])
	require.NoError(t, err)

	for i, secret := range testData {
		t.Run(fmt.Sprintf("roundtrip_%d", i), func(t *testing.T) {
			wrapped, err := kw.WrapSecret(secret, nil)
			require.NoError(t, err)

			assert.Len(t, wrapped.Key, KeySize)
			assert.Len(t, wrapped.IV, NonceSize)
			assert.Len(t, wrapped.Tag, TagSize)
			assert.Len(t, wrapped.Ciphertext, len(secret))

			plaintext, err := kw.UnwrapSecret(wrapped.Key, wrapped.IV, wrapped.Ciphertext, wrapped.Tag, nil)
			require.NoError(t, err)
			assert.Equal(t, len(secret), len(plaintext))
			if len(secret) > 0 {
				assert.Equal(t, secret, plaintext)
			}
		})
	}
}

func TestKeyWrapping_FreshKeyAndNonce(t *testing.T) {
	kw := NewKeyWrapping(nil)
	secret := []byte("same secret twice")

	first, err := kw.WrapSecret(secret, nil)
	require.NoError(t, err)
	second, err := kw.WrapSecret(secret, nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.Key, second.Key)
	assert.NotEqual(t, first.IV, second.IV)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestKeyWrapping_BitFlips(t *testing.T) {
	kw := NewKeyWrapping(nil)
	secret := []byte("0123456789abcdef0123456789abcdef")

	wrapped, err := kw.WrapSecret(secret, nil)
	require.NoError(t, err)

	flip := func(b []byte, bit int) []byte {
		out := append([]byte(nil), b...)
		out[bit/8] ^= 1 << (bit % 8)
		return out
	}

	for bit := 0; bit < len(wrapped.Ciphertext)*8; bit++ {
		plaintext, err := kw.UnwrapSecret(wrapped.Key, wrapped.IV, flip(wrapped.Ciphertext, bit), wrapped.Tag, nil)
		require.ErrorIs(t, err, cryptoerr.ErrIntegrity, "ciphertext bit %d", bit)
		require.Nil(t, plaintext)
	}

	for bit := 0; bit < TagSize*8; bit++ {
		plaintext, err := kw.UnwrapSecret(wrapped.Key, wrapped.IV, wrapped.Ciphertext, flip(wrapped.Tag, bit), nil)
		require.ErrorIs(t, err, cryptoerr.ErrIntegrity, "tag bit %d", bit)
		require.Nil(t, plaintext)
	}
}

func TestKeyWrapping_AssociatedData(t *testing.T) {
	kw := NewKeyWrapping(nil)
	wrapped, err := kw.WrapSecret([]byte("secret"), []byte("p1|d1"))
	require.NoError(t, err)

	plaintext, err := kw.UnwrapSecret(wrapped.Key, wrapped.IV, wrapped.Ciphertext, wrapped.Tag, []byte("p1|d1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), plaintext)

	for _, aad := range [][]byte{nil, []byte("p2|d1"), []byte("p1|d2")} {
		plaintext, err := kw.UnwrapSecret(wrapped.Key, wrapped.IV, wrapped.Ciphertext, wrapped.Tag, aad)
		assert.ErrorIs(t, err, cryptoerr.ErrIntegrity, "aad %q", aad)
		assert.Nil(t, plaintext)
	}
}

func TestKeyWrapping_UnwrapInvalidInputs(t *testing.T) {
	kw := NewKeyWrapping(nil)
	wrapped, err := kw.WrapSecret([]byte("secret"), nil)
	require.NoError(t, err)

	otherKey, err := GenerateKey(rand.Reader, KeySize)
	require.NoError(t, err)
	otherIV := append([]byte(nil), wrapped.IV...)
	otherIV[0] ^= 0xff

	tests := []struct {
		name       string
		key        []byte
		iv         []byte
		ciphertext []byte
		tag        []byte
	}{
		{"wrong key", otherKey, wrapped.IV, wrapped.Ciphertext, wrapped.Tag},
		{"wrong iv", wrapped.Key, otherIV, wrapped.Ciphertext, wrapped.Tag},
		{"short key", wrapped.Key[:16], wrapped.IV, wrapped.Ciphertext, wrapped.Tag},
		{"short iv", wrapped.Key, wrapped.IV[:8], wrapped.Ciphertext, wrapped.Tag},
		{"truncated tag", wrapped.Key, wrapped.IV, wrapped.Ciphertext, wrapped.Tag[:12]},
		{"truncated ciphertext", wrapped.Key, wrapped.IV, wrapped.Ciphertext[:3], wrapped.Tag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plaintext, err := kw.UnwrapSecret(tt.key, tt.iv, tt.ciphertext, tt.tag, nil)
			assert.ErrorIs(t, err, cryptoerr.ErrIntegrity)
			assert.Nil(t, plaintext)
		})
	}
}

func TestKeyWrapping_SealOpen(t *testing.T) {
	kw := NewKeyWrapping(nil)
	master, err := GenerateKey(rand.Reader, KeySize)
	require.NoError(t, err)

	plaintext := []byte("stored private key")
	aad := []byte("patient-1|patient")

	sealed, err := kw.Seal(master, plaintext, aad)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), string(plaintext))

	opened, err := kw.Open(master, sealed, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	t.Run("wrong aad", func(t *testing.T) {
		_, err := kw.Open(master, sealed, []byte("doctor-1|doctor"))
		assert.ErrorIs(t, err, cryptoerr.ErrIntegrity)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := kw.Open(master, sealed[:10], aad)
		assert.ErrorIs(t, err, cryptoerr.ErrIntegrity)
	})

	t.Run("invalid key size", func(t *testing.T) {
		_, err := kw.Seal([]byte("short"), plaintext, aad)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must be 32 bytes")
	})
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey(rand.Reader, KeySize)
	require.NoError(t, err)
	assert.Len(t, key, KeySize)

	_, err = GenerateKey(rand.Reader, 0)
	assert.Error(t, err)

	_, err = GenerateKey(bytes.NewReader([]byte{1, 2, 3}), KeySize)
	assert.Error(t, err)
}

type argon2TestParams struct{ keyLength uint32 }

func (p argon2TestParams) GetMemory() uint32     { return 8 * 1024 }
func (p argon2TestParams) GetIterations() uint32 { return 2 }
func (p argon2TestParams) GetParallelism() uint8 { return 1 }
func (p argon2TestParams) GetKeyLength() uint32  { return p.keyLength }

func TestDeriveKey(t *testing.T) {
	salt := []byte("0123456789abcdef")
	params := argon2TestParams{keyLength: KeySize}

	first, err := DeriveKey([]byte("correct horse"), salt, params)
	require.NoError(t, err)
	assert.Len(t, first, KeySize)

	second, err := DeriveKey([]byte("correct horse"), salt, params)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := DeriveKey([]byte("battery staple"), salt, params)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	_, err = DeriveKey(nil, salt, params)
	assert.Error(t, err)
	_, err = DeriveKey([]byte("pw"), []byte("short"), params)
	assert.Error(t, err)
	_, err = DeriveKey([]byte("pw"), salt, argon2TestParams{keyLength: 16})
	assert.Error(t, err)
	_, err = DeriveKey([]byte("pw"), salt, nil)
	assert.Error(t, err)
}
