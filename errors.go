package medcrypt

import (
	"errors"
	"fmt"

	"github.com/krathor2212/medcrypt/internal/cryptoerr"
)

var (
	// Cryptographic errors
	ErrDomainParameter = cryptoerr.ErrDomainParameter
	ErrKeyFormat       = cryptoerr.ErrKeyFormat
	ErrBlockTooLarge   = cryptoerr.ErrBlockTooLarge
	ErrIntegrity       = cryptoerr.ErrIntegrity

	// Access errors
	ErrAccessDenied = cryptoerr.ErrAccessDenied
	ErrNotFound     = cryptoerr.ErrNotFound

	// Supporting errors
	ErrInvalidConfiguration = cryptoerr.ErrInvalidConfiguration
	ErrInvalidPayload       = cryptoerr.ErrInvalidPayload
	ErrInvariant            = cryptoerr.ErrInvariant
	ErrKeyExists            = cryptoerr.ErrKeyExists
	ErrFileExists           = cryptoerr.ErrFileExists
	ErrDatabaseUnavailable  = cryptoerr.ErrDatabaseUnavailable
	ErrInvalidArgument      = cryptoerr.ErrInvalidArgument
)

// DenialReason says why a grant could not be used.
type DenialReason int

const (
	DenialNotFound DenialReason = iota + 1
	DenialRevoked
	DenialExpired
)

func (r DenialReason) String() string {
	switch r {
	case DenialNotFound:
		return "not_found"
	case DenialRevoked:
		return "revoked"
	case DenialExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// AccessDeniedError is returned by Recover when a grant is missing, revoked or
// expired. It matches ErrAccessDenied under errors.Is.
type AccessDeniedError struct {
	Reason    DenialReason
	PatientID string
	DoctorID  string
}

func (e *AccessDeniedError) Error() string {
	if e.PatientID == "" && e.DoctorID == "" {
		return fmt.Sprintf("%s: grant %s", ErrAccessDenied, e.Reason)
	}
	return fmt.Sprintf("%s: grant from '%s' to '%s' %s", ErrAccessDenied, e.PatientID, e.DoctorID, e.Reason)
}

func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}

func newAccessDenied(reason DenialReason, patientID, doctorID string) error {
	return &AccessDeniedError{Reason: reason, PatientID: patientID, DoctorID: doctorID}
}

// DenialReasonOf extracts the reason from an access refusal. ok is false when
// err is not an *AccessDeniedError.
func DenialReasonOf(err error) (reason DenialReason, ok bool) {
	var denied *AccessDeniedError
	if errors.As(err, &denied) {
		return denied.Reason, true
	}
	return 0, false
}

// IsCryptoError returns true if the error comes from a cryptographic primitive.
func IsCryptoError(err error) bool {
	return errors.Is(err, ErrDomainParameter) ||
		errors.Is(err, ErrKeyFormat) ||
		errors.Is(err, ErrBlockTooLarge) ||
		errors.Is(err, ErrIntegrity) ||
		errors.Is(err, ErrInvalidPayload)
}

// IsAccessError returns true if the error is an access refusal or a missing grant.
func IsAccessError(err error) bool {
	return errors.Is(err, ErrAccessDenied) ||
		errors.Is(err, ErrNotFound)
}

// IsConfigurationError returns true if the error represents a configuration problem.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrDomainParameter)
}

// IsRetryableError returns true if the error represents a transient failure that might succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrDatabaseUnavailable)
}
