package medcrypt

import (
	"math/big"

	"github.com/krathor2212/medcrypt/internal/elgamal"
)

// DomainParameters are the public ElGamal parameters (p, g) shared by every
// key pair in a deployment. They are validated on construction and never
// change afterwards.
type DomainParameters struct {
	group *elgamal.Group
}

// NewDomainParameters builds parameters from a hexadecimal modulus and a
// generator in decimal or 0x-prefixed hexadecimal. p must be a probable prime
// of at least 1024 bits and 1 < g < p-1, otherwise ErrDomainParameter.
func NewDomainParameters(modulusHex, generator string) (*DomainParameters, error) {
	group, err := elgamal.ParseGroup(modulusHex, generator)
	if err != nil {
		return nil, err
	}
	if err := group.Validate(); err != nil {
		return nil, err
	}
	return &DomainParameters{group: group}, nil
}

// NamedDomainParameters returns the RFC 3526 group "modp2048" or "modp3072".
func NamedDomainParameters(name string) (*DomainParameters, error) {
	group, err := elgamal.NamedGroup(name)
	if err != nil {
		return nil, err
	}
	if err := group.Validate(); err != nil {
		return nil, err
	}
	return &DomainParameters{group: group}, nil
}

// P returns a copy of the modulus.
func (d *DomainParameters) P() *big.Int { return new(big.Int).Set(d.group.P) }

// G returns a copy of the generator.
func (d *DomainParameters) G() *big.Int { return new(big.Int).Set(d.group.G) }

// Bits is the bit length of p.
func (d *DomainParameters) Bits() int { return d.group.Bits() }

// MaxBlockBytes is floor((bitLen(p)-1)/8), the largest chunk that always
// encodes to an integer below p.
func (d *DomainParameters) MaxBlockBytes() int { return d.group.MaxBlockBytes() }

// KeySize is the width of a serialized key in bytes.
func (d *DomainParameters) KeySize() int { return d.group.ByteLen() }
