package elgamal

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/krathor2212/medcrypt/internal/cryptoerr"
	pgpelgamal "golang.org/x/crypto/openpgp/elgamal" //nolint:staticcheck // key structs only
)

// PublicKey and PrivateKey reuse the x/crypto key layout: {G, P, Y} and {PublicKey, X}.
type (
	PublicKey  = pgpelgamal.PublicKey
	PrivateKey = pgpelgamal.PrivateKey
)

// GenerateKey draws x uniformly from [1, p-2] and returns (y = g^x mod p, x).
// A nil reader means crypto/rand.
func GenerateKey(ctx context.Context, group *Group, random io.Reader) (*PrivateKey, error) {
	if err := group.Validate(); err != nil {
		return nil, err
	}
	if random == nil {
		random = rand.Reader
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x, err := randomExponent(random, group.P)
	if err != nil {
		return nil, fmt.Errorf("failed to draw private exponent: %w", err)
	}
	y := new(big.Int).Exp(group.G, x, group.P)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &PrivateKey{
		PublicKey: PublicKey{
			G: new(big.Int).Set(group.G),
			P: new(big.Int).Set(group.P),
			Y: y,
		},
		X: x,
	}, nil
}

// randomExponent returns a uniform value in [1, p-2].
func randomExponent(random io.Reader, p *big.Int) (*big.Int, error) {
	upper := new(big.Int).Sub(p, bigTwo) // values in [0, p-3]
	k, err := rand.Int(random, upper)
	if err != nil {
		return nil, err
	}
	return k.Add(k, bigOne), nil
}

// SameGroup reports whether the key was generated under gr.
func (gr *Group) SameGroup(pub *PublicKey) bool {
	return pub != nil && pub.P != nil && pub.G != nil &&
		gr.P.Cmp(pub.P) == 0 && gr.G.Cmp(pub.G) == 0
}

// MarshalPrivate encodes x as a fixed-width big-endian integer of ByteLen bytes.
func (gr *Group) MarshalPrivate(priv *PrivateKey) []byte {
	return priv.X.FillBytes(make([]byte, gr.ByteLen()))
}

// MarshalPublic encodes y as a fixed-width big-endian integer of ByteLen bytes.
func (gr *Group) MarshalPublic(pub *PublicKey) []byte {
	return pub.Y.FillBytes(make([]byte, gr.ByteLen()))
}

// ParsePrivate decodes a key produced by MarshalPrivate and recomputes y.
func (gr *Group) ParsePrivate(data []byte) (*PrivateKey, error) {
	if len(data) != gr.ByteLen() {
		return nil, cryptoerr.NewKeyFormatError("private key", fmt.Sprintf("expected %d bytes, got %d", gr.ByteLen(), len(data)))
	}
	x := new(big.Int).SetBytes(data)
	pMinusTwo := new(big.Int).Sub(gr.P, bigTwo)
	if x.Sign() <= 0 || x.Cmp(pMinusTwo) > 0 {
		return nil, cryptoerr.NewKeyFormatError("private key", "exponent out of range [1, p-2]")
	}
	return &PrivateKey{
		PublicKey: PublicKey{
			G: new(big.Int).Set(gr.G),
			P: new(big.Int).Set(gr.P),
			Y: new(big.Int).Exp(gr.G, x, gr.P),
		},
		X: x,
	}, nil
}

// ParsePublic decodes a key produced by MarshalPublic.
func (gr *Group) ParsePublic(data []byte) (*PublicKey, error) {
	if len(data) != gr.ByteLen() {
		return nil, cryptoerr.NewKeyFormatError("public key", fmt.Sprintf("expected %d bytes, got %d", gr.ByteLen(), len(data)))
	}
	y := new(big.Int).SetBytes(data)
	if y.Cmp(bigOne) <= 0 || y.Cmp(gr.P) >= 0 {
		return nil, cryptoerr.NewKeyFormatError("public key", "value out of range (1, p)")
	}
	return &PublicKey{
		G: new(big.Int).Set(gr.G),
		P: new(big.Int).Set(gr.P),
		Y: y,
	}, nil
}
