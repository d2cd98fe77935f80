package security

import (
	"crypto/subtle"
	"math/big"
	"runtime"
)

// ZeroBytes overwrites data in place. Secrets handled by this module (AES
// wrap keys, serialized private keys) live in []byte so they can be wiped
// once the operation that needed them returns.
func ZeroBytes(data []byte) {
	if len(data) == 0 {
		return
	}
	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}

// ZeroInt clears the limbs backing n and sets it to zero.
func ZeroInt(n *big.Int) {
	if n == nil {
		return
	}
	words := n.Bits()
	for i := range words {
		words[i] = 0
	}
	n.SetInt64(0)
	runtime.KeepAlive(words)
}

// ConstantTimeEq reports whether a and b are equal without leaking where
// they first differ.
func ConstantTimeEq(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// SecureCopy returns an independent copy of src.
func SecureCopy(src []byte) []byte {
	if src == nil {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
