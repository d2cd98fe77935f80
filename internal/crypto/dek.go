package crypto

import (
	"fmt"
	"io"
)

// GenerateKey reads size random bytes for use as a symmetric key.
func GenerateKey(random io.Reader, size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid key size: %d", size)
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(random, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}
