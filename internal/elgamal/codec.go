package elgamal

import (
	"fmt"
	"math/big"

	"github.com/krathor2212/medcrypt/internal/cryptoerr"
)

// Codec converts between byte strings and integers below p. Integers drop
// leading zero bytes, so callers keep the original length next to every block
// and hand it back to Decode.
type Codec struct {
	maxBytes int
}

// NewCodec returns the codec for a group.
func NewCodec(group *Group) *Codec {
	return &Codec{maxBytes: group.MaxBlockBytes()}
}

// MaxBlockBytes is floor((bitLen(p)-1)/8).
func (c *Codec) MaxBlockBytes() int {
	return c.maxBytes
}

// Encode interprets b as a big-endian integer and returns it with len(b).
func (c *Codec) Encode(b []byte) (*big.Int, int, error) {
	if len(b) > c.maxBytes {
		return nil, 0, cryptoerr.NewBlockTooLargeError(len(b), c.maxBytes, cryptoerr.Encrypt)
	}
	return new(big.Int).SetBytes(b), len(b), nil
}

// Decode writes m as exactly length big-endian bytes, restoring leading zeros.
func (c *Codec) Decode(m *big.Int, length int) ([]byte, error) {
	if length < 0 || length > c.maxBytes {
		return nil, fmt.Errorf("%w: recorded block length %d outside [0, %d]", cryptoerr.ErrInvalidPayload, length, c.maxBytes)
	}
	if m.Sign() < 0 || m.BitLen() > 8*length {
		return nil, cryptoerr.NewIntegrityError(cryptoerr.Decrypt, fmt.Sprintf("decrypted block does not fit its recorded length of %d bytes", length))
	}
	return m.FillBytes(make([]byte, length)), nil
}
