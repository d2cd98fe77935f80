package medcrypt

import (
	"context"
	"io"
	"math/big"

	"github.com/krathor2212/medcrypt/internal/cryptoerr"
	"github.com/krathor2212/medcrypt/internal/elgamal"
	"github.com/krathor2212/medcrypt/internal/serialization"
)

type (
	// PublicKey is y = g^x mod p together with the domain parameters.
	PublicKey = elgamal.PublicKey
	// PrivateKey embeds its PublicKey and adds the exponent x.
	PrivateKey = elgamal.PrivateKey
	// EncryptedBlock is one ElGamal ciphertext (c1, c2) plus the byte length
	// of the plaintext it carries.
	EncryptedBlock = serialization.Block
)

var one = big.NewInt(1)

// KeyPairGenerator draws ElGamal key pairs under fixed domain parameters.
type KeyPairGenerator struct {
	params *DomainParameters
	random io.Reader
}

// NewKeyPairGenerator creates a generator. A nil reader means crypto/rand.
func NewKeyPairGenerator(params *DomainParameters, random io.Reader) *KeyPairGenerator {
	return &KeyPairGenerator{params: params, random: random}
}

// Generate returns a fresh key pair with x uniform in [1, p-2]. It is CPU
// bound; ctx is checked before and after the exponentiation.
func (g *KeyPairGenerator) Generate(ctx context.Context) (*PrivateKey, error) {
	if g.params == nil {
		return nil, cryptoerr.NewKeyFormatError("domain parameters", "missing")
	}
	return elgamal.GenerateKey(ctx, g.params.group, g.random)
}

// SerializePrivateKey encodes x as a fixed-width big-endian integer.
func (d *DomainParameters) SerializePrivateKey(priv *PrivateKey) ([]byte, error) {
	if priv == nil || priv.X == nil || !d.group.SameGroup(&priv.PublicKey) {
		return nil, cryptoerr.NewKeyFormatError("private key", "not generated under these domain parameters")
	}
	return d.group.MarshalPrivate(priv), nil
}

// ParsePrivateKey reverses SerializePrivateKey, failing with ErrKeyFormat.
func (d *DomainParameters) ParsePrivateKey(data []byte) (*PrivateKey, error) {
	return d.group.ParsePrivate(data)
}

// SerializePublicKey encodes y as a fixed-width big-endian integer.
func (d *DomainParameters) SerializePublicKey(pub *PublicKey) ([]byte, error) {
	if pub == nil || pub.Y == nil || !d.group.SameGroup(pub) {
		return nil, cryptoerr.NewKeyFormatError("public key", "not generated under these domain parameters")
	}
	return d.group.MarshalPublic(pub), nil
}

// ParsePublicKey reverses SerializePublicKey, failing with ErrKeyFormat.
func (d *DomainParameters) ParsePublicKey(data []byte) (*PublicKey, error) {
	return d.group.ParsePublic(data)
}

// ElGamalCipher encrypts single integers or byte blocks that fit below p.
// A fresh ephemeral exponent is drawn for every encryption.
type ElGamalCipher struct {
	params *DomainParameters
	cipher *elgamal.Cipher
	codec  *elgamal.Codec
}

// NewElGamalCipher creates a cipher over params. A nil reader means crypto/rand.
func NewElGamalCipher(params *DomainParameters, random io.Reader) (*ElGamalCipher, error) {
	c, err := elgamal.NewCipher(params.group, random)
	if err != nil {
		return nil, err
	}
	return &ElGamalCipher{
		params: params,
		cipher: c,
		codec:  elgamal.NewCodec(params.group),
	}, nil
}

// Params returns the cipher's domain parameters.
func (c *ElGamalCipher) Params() *DomainParameters { return c.params }

// Encrypt encrypts m in [0, p). Values outside that range fail with
// ErrBlockTooLarge. The block's Length is the minimal byte length of m.
func (c *ElGamalCipher) Encrypt(m *big.Int, pub *PublicKey) (EncryptedBlock, error) {
	ct, err := c.cipher.Encrypt(m, pub)
	if err != nil {
		return EncryptedBlock{}, err
	}
	return EncryptedBlock{C1: ct.C1, C2: ct.C2, Length: (m.BitLen() + 7) / 8}, nil
}

// Decrypt recovers m from a block. It never mutates the block.
func (c *ElGamalCipher) Decrypt(block EncryptedBlock, priv *PrivateKey) (*big.Int, error) {
	return c.cipher.Decrypt(&elgamal.Ciphertext{C1: block.C1, C2: block.C2}, priv)
}

// EncryptBytes encodes b as one block and encrypts it. Inputs longer than
// MaxBlockBytes fail with ErrBlockTooLarge.
//
// The encrypted integer is the encoding of b plus one. An all-zero or empty
// input would otherwise encrypt to c2 = 0 for every k. The offset stays below
// p because 2^(8*MaxBlockBytes) < p.
func (c *ElGamalCipher) EncryptBytes(b []byte, pub *PublicKey) (EncryptedBlock, error) {
	m, length, err := c.codec.Encode(b)
	if err != nil {
		return EncryptedBlock{}, err
	}
	ct, err := c.cipher.Encrypt(m.Add(m, one), pub)
	if err != nil {
		return EncryptedBlock{}, err
	}
	return EncryptedBlock{C1: ct.C1, C2: ct.C2, Length: length}, nil
}

// DecryptBytes decrypts a block produced by EncryptBytes and restores its
// original length, leading zeros included. A wrong key almost always yields
// an integer too wide for the recorded length and fails with ErrIntegrity.
func (c *ElGamalCipher) DecryptBytes(block EncryptedBlock, priv *PrivateKey) ([]byte, error) {
	m, err := c.Decrypt(block, priv)
	if err != nil {
		return nil, err
	}
	if m.Sign() == 0 {
		return nil, cryptoerr.NewIntegrityError(cryptoerr.Decrypt, "block decrypts to zero")
	}
	return c.codec.Decode(m.Sub(m, one), block.Length)
}
