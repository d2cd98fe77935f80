// Package serialization encodes ElGamal block arrays for storage.
package serialization

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/krathor2212/medcrypt/internal/cryptoerr"
)

// blockMagic prefixes every encoded block array.
var blockMagic = [4]byte{'M', 'C', 'B', '1'}

// maxComponentBytes bounds each encoded integer; 8192-bit moduli fit easily.
const maxComponentBytes = 1024

// Block is one ElGamal ciphertext pair plus the byte length of the plaintext it
// encodes. The length restores leading zero bytes on decode.
type Block struct {
	C1     *big.Int
	C2     *big.Int
	Length int
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	out := Block{Length: b.Length}
	if b.C1 != nil {
		out.C1 = new(big.Int).Set(b.C1)
	}
	if b.C2 != nil {
		out.C2 = new(big.Int).Set(b.C2)
	}
	return out
}

type blockJSON struct {
	C1     string `json:"c1"`
	C2     string `json:"c2"`
	Length int    `json:"len"`
}

// MarshalJSON writes c1 and c2 as lowercase hexadecimal strings.
func (b Block) MarshalJSON() ([]byte, error) {
	if b.C1 == nil || b.C2 == nil {
		return nil, fmt.Errorf("%w: block has nil component", cryptoerr.ErrInvalidPayload)
	}
	return json.Marshal(blockJSON{
		C1:     hex.EncodeToString(b.C1.Bytes()),
		C2:     hex.EncodeToString(b.C2.Bytes()),
		Length: b.Length,
	})
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw blockJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", cryptoerr.ErrInvalidPayload, err)
	}
	c1, err := hex.DecodeString(raw.C1)
	if err != nil {
		return fmt.Errorf("%w: c1: %w", cryptoerr.ErrInvalidPayload, err)
	}
	c2, err := hex.DecodeString(raw.C2)
	if err != nil {
		return fmt.Errorf("%w: c2: %w", cryptoerr.ErrInvalidPayload, err)
	}
	if raw.Length < 0 {
		return fmt.Errorf("%w: negative block length", cryptoerr.ErrInvalidPayload)
	}
	b.C1 = new(big.Int).SetBytes(c1)
	b.C2 = new(big.Int).SetBytes(c2)
	b.Length = raw.Length
	return nil
}

// EncodeBlocks writes blocks in the compact binary layout:
//
//	magic "MCB1" | count u32 | per block: length u16 | len(c1) u16 | c1 | len(c2) u16 | c2
//
// All integers are little-endian.
func EncodeBlocks(blocks []Block) ([]byte, error) {
	size := len(blockMagic) + 4
	for i, b := range blocks {
		if b.C1 == nil || b.C2 == nil {
			return nil, fmt.Errorf("%w: block %d has nil component", cryptoerr.ErrInvalidPayload, i)
		}
		if b.Length < 0 || b.Length > 0xffff {
			return nil, fmt.Errorf("%w: block %d length %d out of range", cryptoerr.ErrInvalidPayload, i, b.Length)
		}
		size += 6 + len(b.C1.Bytes()) + len(b.C2.Bytes())
	}

	result := make([]byte, 0, size)
	result = append(result, blockMagic[:]...)
	result = binary.LittleEndian.AppendUint32(result, uint32(len(blocks)))
	for i, b := range blocks {
		c1, c2 := b.C1.Bytes(), b.C2.Bytes()
		if len(c1) > maxComponentBytes || len(c2) > maxComponentBytes {
			return nil, fmt.Errorf("%w: block %d component exceeds %d bytes", cryptoerr.ErrInvalidPayload, i, maxComponentBytes)
		}
		result = binary.LittleEndian.AppendUint16(result, uint16(b.Length))
		result = binary.LittleEndian.AppendUint16(result, uint16(len(c1)))
		result = append(result, c1...)
		result = binary.LittleEndian.AppendUint16(result, uint16(len(c2)))
		result = append(result, c2...)
	}
	return result, nil
}

// DecodeBlocks parses the output of EncodeBlocks. The returned slice is a
// single contiguous allocation indexed by chunk position.
func DecodeBlocks(data []byte) ([]Block, error) {
	if len(data) < len(blockMagic)+4 || [4]byte(data[:4]) != blockMagic {
		return nil, fmt.Errorf("%w: missing block header", cryptoerr.ErrInvalidPayload)
	}
	count := binary.LittleEndian.Uint32(data[4:8])
	rest := data[8:]
	// every block needs at least 6 header bytes
	if uint64(count)*6 > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: block count %d exceeds payload", cryptoerr.ErrInvalidPayload, count)
	}

	blocks := make([]Block, count)
	for i := range blocks {
		length, next, err := readUint16(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d length: %w", cryptoerr.ErrInvalidPayload, i, err)
		}
		c1, next, err := readComponent(next)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d c1: %w", cryptoerr.ErrInvalidPayload, i, err)
		}
		c2, next, err := readComponent(next)
		if err != nil {
			return nil, fmt.Errorf("%w: block %d c2: %w", cryptoerr.ErrInvalidPayload, i, err)
		}
		blocks[i] = Block{C1: c1, C2: c2, Length: int(length)}
		rest = next
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", cryptoerr.ErrInvalidPayload, len(rest))
	}
	return blocks, nil
}

func readUint16(data []byte) (uint16, []byte, error) {
	if len(data) < 2 {
		return 0, nil, fmt.Errorf("truncated")
	}
	return binary.LittleEndian.Uint16(data[:2]), data[2:], nil
}

func readComponent(data []byte) (*big.Int, []byte, error) {
	n, rest, err := readUint16(data)
	if err != nil {
		return nil, nil, err
	}
	if int(n) > len(rest) {
		return nil, nil, fmt.Errorf("truncated: need %d bytes, have %d", n, len(rest))
	}
	return new(big.Int).SetBytes(rest[:n]), rest[n:], nil
}
