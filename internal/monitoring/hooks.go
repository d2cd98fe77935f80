package monitoring

import (
	"context"
	"sync"
	"time"
)

// ObservabilityHook receives notifications around every file, grant and key
// operation. Metadata carries identifiers and sizes, never key material.
type ObservabilityHook interface {
	OnProcessStart(ctx context.Context, operation string, metadata map[string]any)
	OnProcessComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any)
	OnError(ctx context.Context, operation string, err error, metadata map[string]any)
	OnKeyOperation(ctx context.Context, operation string, ownerID string, metadata map[string]any)
}

// NoOpObservabilityHook is a no-op implementation of ObservabilityHook
type NoOpObservabilityHook struct{}

func (n *NoOpObservabilityHook) OnProcessStart(ctx context.Context, operation string, metadata map[string]any) {
}
func (n *NoOpObservabilityHook) OnProcessComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
}
func (n *NoOpObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
}
func (n *NoOpObservabilityHook) OnKeyOperation(ctx context.Context, operation string, ownerID string, metadata map[string]any) {
}

// LoggingObservabilityHook forwards every event to a StructuredLogger.
type LoggingObservabilityHook struct {
	logger *StructuredLogger
}

// NewLoggingObservabilityHook creates a new logging observability hook
func NewLoggingObservabilityHook(logger *StructuredLogger) *LoggingObservabilityHook {
	if logger == nil {
		logger = NewStructuredLogger(LoggerConfig{Level: LevelInfo, Component: "hooks"})
	}
	return &LoggingObservabilityHook{logger: logger}
}

func (l *LoggingObservabilityHook) OnProcessStart(ctx context.Context, operation string, metadata map[string]any) {
	l.logger.WithFields(metadata).WithFields(map[string]any{"operation": operation}).Debug("operation started")
}

func (l *LoggingObservabilityHook) OnProcessComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	l.logger.LogCryptoOperation(ctx, operation, duration, err, metadata)
}

func (l *LoggingObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	l.logger.WithFields(metadata).WithFields(map[string]any{
		"operation": operation,
		"error":     err.Error(),
	}).Error("operation error")
}

func (l *LoggingObservabilityHook) OnKeyOperation(ctx context.Context, operation string, ownerID string, metadata map[string]any) {
	l.logger.LogKeyOperation(ctx, operation, ownerID, metadata)
}

// CompositeObservabilityHook combines multiple hooks
type CompositeObservabilityHook struct {
	hooks []ObservabilityHook
}

// NewCompositeObservabilityHook creates a new composite hook. Nil hooks are skipped.
func NewCompositeObservabilityHook(hooks ...ObservabilityHook) *CompositeObservabilityHook {
	kept := make([]ObservabilityHook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			kept = append(kept, h)
		}
	}
	return &CompositeObservabilityHook{hooks: kept}
}

func (c *CompositeObservabilityHook) OnProcessStart(ctx context.Context, operation string, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnProcessStart(ctx, operation, metadata)
	}
}

func (c *CompositeObservabilityHook) OnProcessComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnProcessComplete(ctx, operation, duration, err, metadata)
	}
}

func (c *CompositeObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnError(ctx, operation, err, metadata)
	}
}

func (c *CompositeObservabilityHook) OnKeyOperation(ctx context.Context, operation string, ownerID string, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnKeyOperation(ctx, operation, ownerID, metadata)
	}
}

// RecordingObservabilityHook keeps every event in memory for assertions.
type RecordingObservabilityHook struct {
	mu     sync.Mutex
	events []RecordedEvent
}

// RecordedEvent is one call captured by RecordingObservabilityHook.
type RecordedEvent struct {
	Kind      string
	Operation string
	Err       error
	Metadata  map[string]any
}

func (r *RecordingObservabilityHook) record(e RecordedEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *RecordingObservabilityHook) OnProcessStart(ctx context.Context, operation string, metadata map[string]any) {
	r.record(RecordedEvent{Kind: "start", Operation: operation, Metadata: metadata})
}

func (r *RecordingObservabilityHook) OnProcessComplete(ctx context.Context, operation string, duration time.Duration, err error, metadata map[string]any) {
	r.record(RecordedEvent{Kind: "complete", Operation: operation, Err: err, Metadata: metadata})
}

func (r *RecordingObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	r.record(RecordedEvent{Kind: "error", Operation: operation, Err: err, Metadata: metadata})
}

func (r *RecordingObservabilityHook) OnKeyOperation(ctx context.Context, operation string, ownerID string, metadata map[string]any) {
	r.record(RecordedEvent{Kind: "key", Operation: operation, Metadata: metadata})
}

// Snapshot returns a copy of the recorded events.
func (r *RecordingObservabilityHook) Snapshot() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedEvent, len(r.events))
	copy(out, r.events)
	return out
}
