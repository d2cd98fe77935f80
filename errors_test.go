package medcrypt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"Domain Parameter", ErrDomainParameter},
		{"Key Format", ErrKeyFormat},
		{"Block Too Large", ErrBlockTooLarge},
		{"Integrity", ErrIntegrity},
		{"Access Denied", ErrAccessDenied},
		{"Not Found", ErrNotFound},
		{"Invalid Configuration", ErrInvalidConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("context: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.err)
		})
	}
}

func TestAccessDeniedError(t *testing.T) {
	for _, reason := range []DenialReason{DenialNotFound, DenialRevoked, DenialExpired} {
		t.Run(reason.String(), func(t *testing.T) {
			err := fmt.Errorf("recover: %w", newAccessDenied(reason, "p1", "d1"))

			assert.ErrorIs(t, err, ErrAccessDenied)
			assert.NotErrorIs(t, err, ErrNotFound)

			got, ok := DenialReasonOf(err)
			assert.True(t, ok)
			assert.Equal(t, reason, got)
			assert.Contains(t, err.Error(), reason.String())
		})
	}

	_, ok := DenialReasonOf(errors.New("other"))
	assert.False(t, ok)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		isCrypto    bool
		isAccess    bool
		isConfig    bool
		isRetryable bool
	}{
		{"integrity", ErrIntegrity, true, false, false, false},
		{"key format", ErrKeyFormat, true, false, false, false},
		{"domain parameter", ErrDomainParameter, true, false, true, false},
		{"access denied", newAccessDenied(DenialExpired, "", ""), false, true, false, false},
		{"not found", ErrNotFound, false, true, false, false},
		{"configuration", ErrInvalidConfiguration, false, false, true, false},
		{"database", ErrDatabaseUnavailable, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", tt.err)
			assert.Equal(t, tt.isCrypto, IsCryptoError(err))
			assert.Equal(t, tt.isAccess, IsAccessError(err))
			assert.Equal(t, tt.isConfig, IsConfigurationError(err))
			assert.Equal(t, tt.isRetryable, IsRetryableError(err))
		})
	}
}
