package medcrypt

import (
	"fmt"
	"io"

	"github.com/krathor2212/medcrypt/internal/monitoring"
	"github.com/krathor2212/medcrypt/internal/workerpool"
)

// Option customizes NewCrypto and the component constructors.
type Option func(*settings) error

type settings struct {
	logger    *monitoring.StructuredLogger
	hook      monitoring.ObservabilityHook
	clock     Clock
	random    io.Reader
	pool      *workerpool.Pool
	store     Store
	fileStore FileStore
}

func newSettings(opts []Option) (*settings, error) {
	s := &settings{}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.logger == nil {
		s.logger = monitoring.NewNopLogger()
	}
	if s.hook == nil {
		s.hook = &monitoring.NoOpObservabilityHook{}
	}
	if s.clock == nil {
		s.clock = SystemClock()
	}
	return s, nil
}

func (s *settings) instrument(component string) instrument {
	return instrument{
		logger: s.logger.WithFields(map[string]any{"component": component}),
		hook:   s.hook,
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *StructuredLogger) Option {
	return func(s *settings) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfiguration)
		}
		s.logger = logger
		return nil
	}
}

// WithObservabilityHook sets the hook notified around every operation.
func WithObservabilityHook(hook ObservabilityHook) Option {
	return func(s *settings) error {
		if hook == nil {
			return fmt.Errorf("%w: observability hook cannot be nil", ErrInvalidConfiguration)
		}
		s.hook = hook
		return nil
	}
}

// WithClock sets the clock used for grant timestamps and expiry checks.
func WithClock(clock Clock) Option {
	return func(s *settings) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfiguration)
		}
		s.clock = clock
		return nil
	}
}

// WithRandom replaces crypto/rand as the randomness source. Tests only.
func WithRandom(random io.Reader) Option {
	return func(s *settings) error {
		if random == nil {
			return fmt.Errorf("%w: random source cannot be nil", ErrInvalidConfiguration)
		}
		s.random = random
		return nil
	}
}

// withWorkerPool shares an existing worker pool instead of creating one.
// The caller keeps ownership and closes it.
func withWorkerPool(pool *workerpool.Pool) Option {
	return func(s *settings) error {
		if pool == nil {
			return fmt.Errorf("%w: worker pool cannot be nil", ErrInvalidConfiguration)
		}
		s.pool = pool
		return nil
	}
}

// WithStore sets the persistence backend for grants, audit entries, key
// pairs and files.
func WithStore(store Store) Option {
	return func(s *settings) error {
		if store == nil {
			return fmt.Errorf("%w: store cannot be nil", ErrInvalidConfiguration)
		}
		s.store = store
		return nil
	}
}

// WithFileStore stores encrypted files somewhere other than the main store,
// for example an S3 bucket.
func WithFileStore(store FileStore) Option {
	return func(s *settings) error {
		if store == nil {
			return fmt.Errorf("%w: file store cannot be nil", ErrInvalidConfiguration)
		}
		s.fileStore = store
		return nil
	}
}
