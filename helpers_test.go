package medcrypt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	crypto *Crypto
	clock  *FixedClock
	store  *InMemoryStore
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	clock := NewFixedClock(testEpoch)
	store := NewInMemoryStore()
	all := append([]Option{WithClock(clock), WithStore(store)}, opts...)
	c, err := NewTestCrypto(all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return &testEnv{crypto: c, clock: clock, store: store}
}

func (e *testEnv) generate(t *testing.T) *PrivateKey {
	t.Helper()
	priv, err := e.crypto.NewKeyPairGenerator().Generate(context.Background())
	require.NoError(t, err)
	return priv
}
