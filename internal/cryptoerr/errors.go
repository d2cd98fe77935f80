package cryptoerr

import (
	"errors"
	"fmt"
)

var (
	// Cryptographic errors
	ErrDomainParameter = errors.New("invalid domain parameters")
	ErrKeyFormat       = errors.New("malformed key")
	ErrBlockTooLarge   = errors.New("block exceeds modulus capacity")
	ErrIntegrity       = errors.New("integrity check failed")

	// Access errors
	ErrAccessDenied = errors.New("access denied")
	ErrNotFound     = errors.New("not found")

	// Supporting errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidPayload       = errors.New("invalid encrypted payload")
	ErrInvariant            = errors.New("internal invariant violated")
	ErrKeyExists            = errors.New("key pair already exists")
	ErrFileExists           = errors.New("file already exists")
	ErrDatabaseUnavailable  = errors.New("database unavailable")
	ErrInvalidArgument      = errors.New("invalid argument")
)

func NewBlockTooLargeError(size, max int, action Action) error {
	return fmt.Errorf("%w: %d bytes exceeds maximum %d bytes for %s", ErrBlockTooLarge, size, max, action)
}

func NewKeyFormatError(what string, details string) error {
	if details != "" {
		return fmt.Errorf("%w: %s: %s", ErrKeyFormat, what, details)
	}
	return fmt.Errorf("%w: %s", ErrKeyFormat, what)
}

func NewIntegrityError(action Action, details string) error {
	return fmt.Errorf("%w: %s: %s", ErrIntegrity, action, details)
}

func NewInvariantError(action Action, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInvariant, action, err)
}
