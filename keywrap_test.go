package medcrypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWrapper(t *testing.T) *KeyWrapper {
	t.Helper()
	w, err := NewKeyWrapper(randomBytes(t, MasterKeySize), nil)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestNewKeyWrapper_MasterKeySize(t *testing.T) {
	_, err := NewKeyWrapper(make([]byte, 16), nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestKeyWrapper_WrapUnwrap(t *testing.T) {
	w := newTestWrapper(t)
	secret := []byte("serialized patient private key")

	wrapped, err := w.Wrap(secret, nil)
	require.NoError(t, err)
	assert.Len(t, wrapped.Key, WrapKeySize)
	assert.Len(t, wrapped.IV, WrapIVSize)
	assert.Len(t, wrapped.Tag, WrapTagSize)
	assert.Len(t, wrapped.Ciphertext, len(secret))
	assert.NotEqual(t, secret, wrapped.Ciphertext)

	got, err := w.Unwrap(*wrapped, wrapped.Key, nil)
	require.NoError(t, err)
	assert.Equal(t, secret, got)

	again, err := w.Wrap(secret, nil)
	require.NoError(t, err)
	assert.NotEqual(t, wrapped.Key, again.Key)
	assert.NotEqual(t, wrapped.IV, again.IV)
}

func TestKeyWrapper_UnwrapTampered(t *testing.T) {
	w := newTestWrapper(t)
	secret := []byte("serialized patient private key")

	flip := func(b []byte) []byte {
		c := append([]byte(nil), b...)
		c[0] ^= 0x01
		return c
	}

	tests := []struct {
		name   string
		mutate func(ws *WrappedSecret, key []byte) []byte
	}{
		{"ciphertext bit", func(ws *WrappedSecret, key []byte) []byte { ws.Ciphertext = flip(ws.Ciphertext); return key }},
		{"tag bit", func(ws *WrappedSecret, key []byte) []byte { ws.Tag = flip(ws.Tag); return key }},
		{"iv bit", func(ws *WrappedSecret, key []byte) []byte { ws.IV = flip(ws.IV); return key }},
		{"key bit", func(ws *WrappedSecret, key []byte) []byte { return flip(key) }},
		{"short key", func(ws *WrappedSecret, key []byte) []byte { return key[:16] }},
		{"short iv", func(ws *WrappedSecret, key []byte) []byte { ws.IV = ws.IV[:8]; return key }},
		{"short tag", func(ws *WrappedSecret, key []byte) []byte { ws.Tag = ws.Tag[:4]; return key }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped, err := w.Wrap(secret, nil)
			require.NoError(t, err)
			ws := *wrapped
			key := tt.mutate(&ws, wrapped.Key)

			got, err := w.Unwrap(ws, key, nil)
			assert.ErrorIs(t, err, ErrIntegrity)
			assert.Nil(t, got)
		})
	}
}

func TestKeyWrapper_UnwrapWrongPair(t *testing.T) {
	w := newTestWrapper(t)
	wrapped, err := w.Wrap([]byte("patient key"), grantAAD("p1", "d1"))
	require.NoError(t, err)

	got, err := w.Unwrap(*wrapped, wrapped.Key, grantAAD("p1", "d1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("patient key"), got)

	got, err = w.Unwrap(*wrapped, wrapped.Key, grantAAD("p2", "d1"))
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Nil(t, got)
}

func TestWrappedSecret_Wipe(t *testing.T) {
	w := newTestWrapper(t)
	wrapped, err := w.Wrap([]byte("secret"), nil)
	require.NoError(t, err)

	wrapped.Wipe()
	assert.Equal(t, make([]byte, WrapKeySize), wrapped.Key)

	var nilSecret *WrappedSecret
	assert.NotPanics(t, nilSecret.Wipe)
}

func TestKeyWrapper_SealOpen(t *testing.T) {
	w := newTestWrapper(t)
	plaintext := []byte("private key bytes")

	sealed, err := w.Seal(plaintext, []byte("p1|patient"))
	require.NoError(t, err)

	got, err := w.Open(sealed, []byte("p1|patient"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	_, err = w.Open(sealed, []byte("p1|doctor"))
	assert.ErrorIs(t, err, ErrIntegrity)

	_, err = w.Open(sealed[:10], []byte("p1|patient"))
	assert.ErrorIs(t, err, ErrIntegrity)

	other := newTestWrapper(t)
	_, err = other.Open(sealed, []byte("p1|patient"))
	assert.ErrorIs(t, err, ErrIntegrity)
}
