package medcrypt

import (
	"context"
	"fmt"

	"github.com/krathor2212/medcrypt/internal/security"
	"github.com/krathor2212/medcrypt/internal/workerpool"
)

// Crypto wires the file engine, access protocol, audit log and key vault
// from one Config.
type Crypto struct {
	params    *DomainParameters
	cipher    *ElGamalCipher
	wrapper   *KeyWrapper
	pool      *workerpool.Pool
	ownsPool  bool
	store     Store
	ownsStore bool
	fileStore FileStore
	logger    *StructuredLogger

	files  *FileCryptoEngine
	access *AccessService
	audit  *AuditLog
	keys   *KeyVault
}

// NewCrypto validates cfg, resolves the master key and builds every component.
// Without WithStore an InMemoryStore is used.
//
// Example usage:
//
//	cfg, err := medcrypt.LoadConfigFromEnvironment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store, err := sqlite.Open(cfg.DatabaseFile())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mc, err := medcrypt.NewCrypto(ctx, cfg, medcrypt.WithStore(store))
func NewCrypto(ctx context.Context, cfg Config, opts ...Option) (*Crypto, error) {
	explicitThreshold := cfg.SingleBlockThreshold != 0
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params, err := cfg.DomainParameters()
	if err != nil {
		return nil, err
	}
	if !explicitThreshold {
		cfg.SingleBlockThreshold = defaultThreshold(params.MaxBlockBytes())
	}
	if cfg.SingleBlockThreshold > params.MaxBlockBytes() {
		return nil, fmt.Errorf("%w: single block threshold %d exceeds %d bytes per block for a %d-bit modulus",
			ErrDomainParameter, cfg.SingleBlockThreshold, params.MaxBlockBytes(), params.Bits())
	}

	s, err := newSettings(append([]Option{WithLogger(cfg.logger())}, opts...))
	if err != nil {
		return nil, err
	}

	masterKey, err := cfg.ResolveMasterKey()
	if err != nil {
		return nil, err
	}
	defer security.ZeroBytes(masterKey)

	wrapper, err := NewKeyWrapper(masterKey, s.random)
	if err != nil {
		return nil, err
	}
	cipher, err := NewElGamalCipher(params, s.random)
	if err != nil {
		return nil, err
	}

	c := &Crypto{
		params:    params,
		cipher:    cipher,
		wrapper:   wrapper,
		pool:      s.pool,
		store:     s.store,
		fileStore: s.fileStore,
		logger:    s.logger,
	}
	if c.pool == nil {
		c.pool = workerpool.New(workerpool.Config{WorkerCount: cfg.Workers})
		c.ownsPool = true
	}
	if c.store == nil {
		c.store = NewInMemoryStore()
		c.ownsStore = true
	}
	if c.fileStore == nil {
		c.fileStore = c.store
	}

	shared := []Option{
		WithLogger(s.logger),
		WithObservabilityHook(s.hook),
		WithClock(s.clock),
		withWorkerPool(c.pool),
	}
	if s.random != nil {
		shared = append(shared, WithRandom(s.random))
	}

	if c.files, err = NewFileCryptoEngine(cipher, cfg.SingleBlockThreshold, shared...); err != nil {
		c.Close()
		return nil, err
	}
	if c.access, err = NewAccessService(cipher, wrapper, c.store, shared...); err != nil {
		c.Close()
		return nil, err
	}
	if c.keys, err = NewKeyVault(params, wrapper, c.store, shared...); err != nil {
		c.Close()
		return nil, err
	}
	c.audit = NewAuditLog(c.store, s.clock)

	s.logger.Info("medcrypt initialised: %d-bit group, %d-byte blocks, threshold %d, %d workers",
		params.Bits(), params.MaxBlockBytes(), cfg.SingleBlockThreshold, c.pool.Workers())
	return c, nil
}

func (c *Crypto) Params() *DomainParameters { return c.params }
func (c *Crypto) Cipher() *ElGamalCipher { return c.cipher }
func (c *Crypto) Wrapper() *KeyWrapper { return c.wrapper }
func (c *Crypto) Files() *FileCryptoEngine { return c.files }
func (c *Crypto) Access() *AccessService { return c.access }
func (c *Crypto) Audit() *AuditLog { return c.audit }
func (c *Crypto) Keys() *KeyVault { return c.keys }
func (c *Crypto) Store() Store { return c.store }

// NewKeyPairGenerator returns a generator under the configured parameters.
func (c *Crypto) NewKeyPairGenerator() *KeyPairGenerator {
	return NewKeyPairGenerator(c.params, nil)
}

// StoreFile encrypts in under pub and persists the result.
func (c *Crypto) StoreFile(ctx context.Context, in FileInput, pub *PublicKey) (*EncryptedFile, error) {
	file, err := c.files.EncryptFile(ctx, in, pub)
	if err != nil {
		return nil, err
	}
	if err := c.fileStore.PutFile(ctx, file); err != nil {
		return nil, fmt.Errorf("failed to store encrypted file: %w", err)
	}
	return file, nil
}

// OpenFile loads a stored file and decrypts it with priv.
func (c *Crypto) OpenFile(ctx context.Context, ownerID, fileID string, priv *PrivateKey) ([]byte, error) {
	file, err := c.fileStore.GetFile(ctx, ownerID, fileID)
	if err != nil {
		return nil, err
	}
	return c.files.DecryptFile(ctx, file, priv)
}

// ListFiles returns the owner's stored files.
func (c *Crypto) ListFiles(ctx context.Context, ownerID string) ([]*EncryptedFile, error) {
	return c.fileStore.ListFiles(ctx, ownerID)
}

// Close wipes the master key and releases resources NewCrypto created.
func (c *Crypto) Close() error {
	c.wrapper.Close()
	if c.ownsPool {
		c.pool.Close()
	}
	if c.ownsStore {
		return c.store.Close()
	}
	return nil
}
