// Package elgamal implements the multiplicative-group ElGamal primitives used to
// encrypt patient files and delegation keys: group parameters, key generation,
// single-block encryption and the byte/integer block codec.
package elgamal

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/krathor2212/medcrypt/internal/cryptoerr"
)

const (
	// MinModulusBits is the smallest modulus accepted by Validate.
	MinModulusBits = 1024

	// primalityRounds is the number of Miller-Rabin rounds used to check p.
	primalityRounds = 32
)

// Named groups from RFC 3526. Both moduli are safe primes and 2 generates the
// subgroup of order (p-1)/2.
const (
	GroupMODP2048 = "modp2048"
	GroupMODP3072 = "modp3072"
)

var namedGroups = map[string]string{
	GroupMODP2048: "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
		"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
		"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
		"83655D23DCA3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
		"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
		"15728E5A8AACAA68FFFFFFFFFFFFFFFF",
	GroupMODP3072: "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
		"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
		"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
		"83655D23DCA3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
		"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
		"15728E5A8AAAC42DAD33170D04507A33A85521ABDF1CBA64ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
		"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6BF12FFA06D98A0864D87602733EC86A64521F2B18177B200C" +
		"BBE117577A615D6C770988C0BAD946E208E24FA074E5AB3143DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF",
}

// Group holds the ElGamal domain parameters. A Group is immutable once
// validated and safe to share between goroutines.
type Group struct {
	P *big.Int
	G *big.Int

	once     sync.Once
	validErr error
}

// NamedGroup returns one of the RFC 3526 groups by name.
func NamedGroup(name string) (*Group, error) {
	hex, ok := namedGroups[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown group '%s'", cryptoerr.ErrDomainParameter, name)
	}
	p, _ := new(big.Int).SetString(hex, 16)
	return &Group{P: p, G: big.NewInt(2)}, nil
}

// ParseGroup builds a group from a hexadecimal modulus and a generator given in
// decimal or 0x-prefixed hexadecimal.
func ParseGroup(modulusHex, generator string) (*Group, error) {
	p, ok := new(big.Int).SetString(strings.TrimPrefix(modulusHex, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("%w: modulus is not valid hexadecimal", cryptoerr.ErrDomainParameter)
	}
	g, ok := new(big.Int).SetString(generator, 0)
	if !ok {
		return nil, fmt.Errorf("%w: generator '%s' is not a valid integer", cryptoerr.ErrDomainParameter, generator)
	}
	return &Group{P: p, G: g}, nil
}

// Validate checks that p is a large probable prime and that g lies in (1, p-1).
// The result is computed once per Group.
func (gr *Group) Validate() error {
	if gr == nil || gr.P == nil || gr.G == nil {
		return fmt.Errorf("%w: modulus and generator are required", cryptoerr.ErrDomainParameter)
	}
	gr.once.Do(func() { gr.validErr = gr.validate() })
	return gr.validErr
}

func (gr *Group) validate() error {
	if bits := gr.P.BitLen(); bits < MinModulusBits {
		return fmt.Errorf("%w: modulus has %d bits, need at least %d", cryptoerr.ErrDomainParameter, bits, MinModulusBits)
	}
	if !gr.P.ProbablyPrime(primalityRounds) {
		return fmt.Errorf("%w: modulus is not prime", cryptoerr.ErrDomainParameter)
	}
	pMinusOne := new(big.Int).Sub(gr.P, bigOne)
	if gr.G.Cmp(bigOne) <= 0 || gr.G.Cmp(pMinusOne) >= 0 {
		return fmt.Errorf("%w: generator must lie in (1, p-1)", cryptoerr.ErrDomainParameter)
	}
	return nil
}

// MaxBlockBytes is the largest byte string whose big-endian integer value is
// guaranteed to be strictly less than p.
func (gr *Group) MaxBlockBytes() int {
	return (gr.P.BitLen() - 1) / 8
}

// ByteLen is the width of a fixed-size big-endian encoding of any value mod p.
func (gr *Group) ByteLen() int {
	return (gr.P.BitLen() + 7) / 8
}

// Bits returns the bit length of the modulus.
func (gr *Group) Bits() int {
	return gr.P.BitLen()
}

var (
	bigOne = big.NewInt(1)
	bigTwo = big.NewInt(2)
)
