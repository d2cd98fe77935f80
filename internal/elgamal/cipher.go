package elgamal

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/krathor2212/medcrypt/internal/cryptoerr"
)

// Ciphertext is a single ElGamal block (c1, c2), both in [0, p).
type Ciphertext struct {
	C1 *big.Int
	C2 *big.Int
}

// Cipher performs single-block encryption over one group.
type Cipher struct {
	group  *Group
	random io.Reader
}

// NewCipher returns a Cipher over a validated group. A nil reader means crypto/rand.
func NewCipher(group *Group, random io.Reader) (*Cipher, error) {
	if err := group.Validate(); err != nil {
		return nil, err
	}
	if random == nil {
		random = rand.Reader
	}
	return &Cipher{group: group, random: random}, nil
}

// Group returns the domain parameters of the cipher.
func (c *Cipher) Group() *Group {
	return c.group
}

// Encrypt encrypts m under pub with a fresh k drawn from [1, p-2].
// m must satisfy 0 <= m < p.
func (c *Cipher) Encrypt(m *big.Int, pub *PublicKey) (*Ciphertext, error) {
	if !c.group.SameGroup(pub) || pub.Y == nil {
		return nil, cryptoerr.NewKeyFormatError("public key", "key does not belong to the configured group")
	}
	if m == nil || m.Sign() < 0 || m.Cmp(c.group.P) >= 0 {
		return nil, fmt.Errorf("%w: message must satisfy 0 <= m < p", cryptoerr.ErrBlockTooLarge)
	}

	k, err := randomExponent(c.random, c.group.P)
	if err != nil {
		return nil, fmt.Errorf("failed to draw ephemeral exponent: %w", err)
	}

	c1 := new(big.Int).Exp(c.group.G, k, c.group.P)
	s := new(big.Int).Exp(pub.Y, k, c.group.P)
	c2 := s.Mul(s, m)
	c2.Mod(c2, c.group.P)

	return &Ciphertext{C1: c1, C2: c2}, nil
}

// Decrypt recovers m = c2 * (c1^x)^-1 mod p. The ciphertext is not modified.
func (c *Cipher) Decrypt(ct *Ciphertext, priv *PrivateKey) (*big.Int, error) {
	if priv == nil || priv.X == nil || !c.group.SameGroup(&priv.PublicKey) {
		return nil, cryptoerr.NewKeyFormatError("private key", "key does not belong to the configured group")
	}
	if ct == nil || ct.C1 == nil || ct.C2 == nil {
		return nil, cryptoerr.NewIntegrityError(cryptoerr.Decrypt, "ciphertext is incomplete")
	}
	if ct.C1.Sign() <= 0 || ct.C1.Cmp(c.group.P) >= 0 || ct.C2.Sign() < 0 || ct.C2.Cmp(c.group.P) >= 0 {
		return nil, cryptoerr.NewIntegrityError(cryptoerr.Decrypt, "ciphertext component out of range")
	}

	s := new(big.Int).Exp(ct.C1, priv.X, c.group.P)
	inv := s.ModInverse(s, c.group.P)
	if inv == nil {
		return nil, cryptoerr.NewIntegrityError(cryptoerr.Decrypt, "shared secret is not invertible")
	}
	m := new(big.Int).Mul(ct.C2, inv)
	return m.Mod(m, c.group.P), nil
}
