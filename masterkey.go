package medcrypt

import (
	"encoding/hex"
	"fmt"

	"github.com/krathor2212/medcrypt/internal/crypto"
)

// ResolveMasterKey returns the 32-byte master key from whichever source the
// config carries. The caller owns the returned slice and should wipe it.
func (c *Config) ResolveMasterKey() ([]byte, error) {
	switch {
	case len(c.MasterKey) > 0:
		if len(c.MasterKey) != MasterKeySize {
			return nil, fmt.Errorf("%w: master key must be %d bytes, got %d", ErrInvalidConfiguration, MasterKeySize, len(c.MasterKey))
		}
		key := make([]byte, MasterKeySize)
		copy(key, c.MasterKey)
		return key, nil

	case c.MasterKeyHex != "":
		key, err := hex.DecodeString(c.MasterKeyHex)
		if err != nil {
			return nil, fmt.Errorf("%w: master key is not valid hex", ErrInvalidConfiguration)
		}
		if len(key) != MasterKeySize {
			return nil, fmt.Errorf("%w: master key must be %d bytes, got %d", ErrInvalidConfiguration, MasterKeySize, len(key))
		}
		return key, nil

	case c.MasterPassphrase != "":
		salt, err := hex.DecodeString(c.MasterSaltHex)
		if err != nil {
			return nil, fmt.Errorf("%w: master salt is not valid hex", ErrInvalidConfiguration)
		}
		params := c.Argon2Params
		if params == nil {
			params = DefaultArgon2Params()
		}
		if uint32(len(salt)) < params.SaltLength {
			return nil, fmt.Errorf("%w: master salt must be at least %d bytes, got %d", ErrInvalidConfiguration, params.SaltLength, len(salt))
		}
		key, err := crypto.DeriveKey([]byte(c.MasterPassphrase), salt, params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("%w: no master key source configured", ErrInvalidConfiguration)
}
