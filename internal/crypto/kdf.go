package crypto

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2ParamsInterface defines the interface for Argon2 parameters
type Argon2ParamsInterface interface {
	GetMemory() uint32
	GetIterations() uint32
	GetParallelism() uint8
	GetKeyLength() uint32
}

// DeriveKey stretches a passphrase into a KeySize master key with Argon2id.
func DeriveKey(passphrase, salt []byte, params Argon2ParamsInterface) ([]byte, error) {
	if params == nil {
		return nil, fmt.Errorf("argon2 parameters cannot be nil")
	}
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if len(salt) < 16 {
		return nil, fmt.Errorf("salt must be at least 16 bytes, got %d", len(salt))
	}
	if params.GetKeyLength() != KeySize {
		return nil, fmt.Errorf("derived key length must be %d bytes, got %d", KeySize, params.GetKeyLength())
	}
	return argon2.IDKey(passphrase, salt, params.GetIterations(), params.GetMemory(), params.GetParallelism(), params.GetKeyLength()), nil
}
