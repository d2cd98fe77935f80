package medcrypt

import (
	"fmt"
	"io"

	"github.com/krathor2212/medcrypt/internal/crypto"
	"github.com/krathor2212/medcrypt/internal/security"
)

// Sizes of the AES-256-GCM key wrap.
const (
	WrapKeySize = crypto.KeySize
	WrapIVSize  = crypto.NonceSize
	WrapTagSize = crypto.TagSize
)

// WrappedSecret is a secret encrypted under a one-time AES-256-GCM key. Key
// is the plaintext wrap key; callers encrypt it for the recipient and wipe it.
type WrappedSecret struct {
	Key        []byte
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

// Wipe zeroes the plaintext wrap key.
func (w *WrappedSecret) Wipe() {
	if w != nil {
		security.ZeroBytes(w.Key)
	}
}

// KeyWrapper performs one-time AES-256-GCM key wrapping for grants and seals
// private keys at rest under the process master key.
type KeyWrapper struct {
	wrapping  *crypto.KeyWrapping
	masterKey []byte
}

// NewKeyWrapper creates a wrapper bound to a 32-byte master key. The key is
// copied. A nil reader means crypto/rand.
func NewKeyWrapper(masterKey []byte, random io.Reader) (*KeyWrapper, error) {
	if len(masterKey) != MasterKeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d", ErrInvalidConfiguration, MasterKeySize, len(masterKey))
	}
	return &KeyWrapper{
		wrapping:  crypto.NewKeyWrapping(random),
		masterKey: security.SecureCopy(masterKey),
	}, nil
}

// Wrap encrypts secret under a fresh 256-bit key and 96-bit IV, binding aad.
func (k *KeyWrapper) Wrap(secret, aad []byte) (*WrappedSecret, error) {
	w, err := k.wrapping.WrapSecret(secret, aad)
	if err != nil {
		return nil, err
	}
	return &WrappedSecret{Key: w.Key, IV: w.IV, Ciphertext: w.Ciphertext, Tag: w.Tag}, nil
}

// Unwrap authenticates and decrypts w with key and the aad given to Wrap.
// Any failure, including a wrong key, IV or tag length, is ErrIntegrity and
// returns no plaintext.
func (k *KeyWrapper) Unwrap(w WrappedSecret, key, aad []byte) ([]byte, error) {
	return k.wrapping.UnwrapSecret(key, w.IV, w.Ciphertext, w.Tag, aad)
}

// Seal encrypts plaintext under the master key, binding aad.
func (k *KeyWrapper) Seal(plaintext, aad []byte) ([]byte, error) {
	return k.wrapping.Seal(k.masterKey, plaintext, aad)
}

// Open reverses Seal. A wrong master key or aad fails with ErrIntegrity.
func (k *KeyWrapper) Open(sealed, aad []byte) ([]byte, error) {
	return k.wrapping.Open(k.masterKey, sealed, aad)
}

// Close wipes the master key.
func (k *KeyWrapper) Close() {
	security.ZeroBytes(k.masterKey)
}
