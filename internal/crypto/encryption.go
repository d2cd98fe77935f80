package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/krathor2212/medcrypt/internal/cryptoerr"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the 96-bit GCM nonce length in bytes.
	NonceSize = 12
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

// Wrapped is the output of WrapSecret. Ciphertext and Tag are kept apart so
// they can be stored in separate columns.
type Wrapped struct {
	Key        []byte
	IV         []byte
	Ciphertext []byte
	Tag        []byte
}

// KeyWrapping handles AES-256-GCM wrapping of secret bytes.
type KeyWrapping struct {
	random io.Reader
}

// NewKeyWrapping creates a KeyWrapping instance. A nil reader means crypto/rand.
func NewKeyWrapping(random io.Reader) *KeyWrapping {
	if random == nil {
		random = rand.Reader
	}
	return &KeyWrapping{random: random}
}

// WrapSecret encrypts secret under a freshly generated key and nonce. aad is
// authenticated but not stored.
func (w *KeyWrapping) WrapSecret(secret, aad []byte) (*Wrapped, error) {
	key, err := GenerateKey(w.random, KeySize)
	if err != nil {
		return nil, err
	}
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, NonceSize)
	if _, err := io.ReadFull(w.random, iv); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aesGCM.Seal(nil, iv, secret, aad)
	split := len(sealed) - TagSize
	return &Wrapped{
		Key:        key,
		IV:         iv,
		Ciphertext: sealed[:split:split],
		Tag:        sealed[split:],
	}, nil
}

// UnwrapSecret reverses WrapSecret with the same aad. Every failure is
// reported as an integrity error and no plaintext is returned.
func (w *KeyWrapping) UnwrapSecret(key, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, cryptoerr.NewIntegrityError(cryptoerr.Unwrap, fmt.Sprintf("key must be %d bytes, got %d", KeySize, len(key)))
	}
	if len(iv) != NonceSize {
		return nil, cryptoerr.NewIntegrityError(cryptoerr.Unwrap, fmt.Sprintf("iv must be %d bytes, got %d", NonceSize, len(iv)))
	}
	if len(tag) != TagSize {
		return nil, cryptoerr.NewIntegrityError(cryptoerr.Unwrap, fmt.Sprintf("auth tag must be %d bytes, got %d", TagSize, len(tag)))
	}
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aesGCM.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, cryptoerr.NewIntegrityError(cryptoerr.Unwrap, "authentication tag mismatch")
	}
	return plaintext, nil
}

// Seal encrypts plaintext under a long-lived key. The nonce is prepended to the
// returned ciphertext and aad is authenticated but not stored.
func (w *KeyWrapping) Seal(key, plaintext, aad []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(w.random, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aesGCM.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts the output of Seal.
func (w *KeyWrapping) Open(key, sealed, aad []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonceSize := aesGCM.NonceSize()
	if len(sealed) < nonceSize+aesGCM.Overhead() {
		return nil, cryptoerr.NewIntegrityError(cryptoerr.Unwrap, "sealed value too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, cryptoerr.NewIntegrityError(cryptoerr.Unwrap, "authentication tag mismatch")
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: AES-256 key must be %d bytes, got %d", cryptoerr.ErrIntegrity, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
