package medcrypt

import (
	"context"
	"errors"
	"time"

	"github.com/krathor2212/medcrypt/internal/monitoring"
)

// Observability types re-exported from the monitoring package.
type (
	ObservabilityHook          = monitoring.ObservabilityHook
	NoOpObservabilityHook      = monitoring.NoOpObservabilityHook
	LoggingObservabilityHook   = monitoring.LoggingObservabilityHook
	CompositeObservabilityHook = monitoring.CompositeObservabilityHook
	StructuredLogger           = monitoring.StructuredLogger
	LoggerConfig               = monitoring.LoggerConfig
)

var (
	NewStructuredLogger           = monitoring.NewStructuredLogger
	NewNopLogger                  = monitoring.NewNopLogger
	NewLoggingObservabilityHook   = monitoring.NewLoggingObservabilityHook
	NewCompositeObservabilityHook = monitoring.NewCompositeObservabilityHook
)

// Operation names reported to hooks and logs.
const (
	OpEncryptFile = "encrypt_file"
	OpDecryptFile = "decrypt_file"
	OpGrant       = "grant"
	OpRecover     = "recover"
	OpRevoke      = "revoke"
	OpRegisterKey = "register_key"
	OpLoadKey     = "load_key"
)

// instrument wraps one operation with start, completion and error events.
type instrument struct {
	logger *monitoring.StructuredLogger
	hook   monitoring.ObservabilityHook
}

func (in instrument) run(ctx context.Context, operation string, metadata map[string]any, fn func() error) error {
	in.hook.OnProcessStart(ctx, operation, metadata)
	start := time.Now()
	err := fn()
	duration := time.Since(start)
	if err != nil {
		in.hook.OnError(ctx, operation, err, metadata)
		if IsAccessError(err) || errors.Is(err, ErrIntegrity) {
			in.logger.LogSecurityEvent(ctx, operation+"_refused", "medium", metadata)
		}
	}
	in.hook.OnProcessComplete(ctx, operation, duration, err, metadata)
	in.logger.LogCryptoOperation(ctx, operation, duration, err, metadata)
	return err
}
