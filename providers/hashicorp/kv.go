package hashicorp

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/krathor2212/medcrypt"
	"github.com/krathor2212/medcrypt/internal/reliability"
)

// MasterKeyPathTemplate is the KV v2 path of a master key. The "/data/"
// segment is required by the KV v2 API.
const MasterKeyPathTemplate = "secret/data/medcrypt/%s/master-key"

// KVStore reads and writes master keys in Vault KV v2. Sealed or unreachable
// Vault errors are retried with backoff.
type KVStore struct {
	client *api.Client
	guard  *reliability.Guard
}

// NewKVStore wraps an authenticated client.
func NewKVStore(client *api.Client) *KVStore {
	return &KVStore{client: client, guard: reliability.NewDefaultGuard("vault:" + client.Address())}
}

// Ping fails unless Vault is initialized and unsealed.
func (k *KVStore) Ping(ctx context.Context) error {
	resp, err := k.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: Vault health check failed: %w", medcrypt.ErrDatabaseUnavailable, err)
	}
	if !resp.Initialized || resp.Sealed {
		return fmt.Errorf("%w: Vault is sealed or uninitialized", medcrypt.ErrDatabaseUnavailable)
	}
	return nil
}

// Breaker exposes the circuit breaker guarding Vault calls.
func (k *KVStore) Breaker() *reliability.CircuitBreaker { return k.guard.Breaker() }

// StoragePath returns the KV path for alias.
func (k *KVStore) StoragePath(alias string) string {
	return fmt.Sprintf(MasterKeyPathTemplate, alias)
}

// StoreMasterKey writes a new version of alias's master key.
func (k *KVStore) StoreMasterKey(ctx context.Context, alias string, key []byte) error {
	return k.writeMasterKey(ctx, alias, key, nil)
}

// errCASConflict reports that another writer created the key first.
var errCASConflict = errors.New("master key already written")

func (k *KVStore) writeMasterKey(ctx context.Context, alias string, key []byte, options map[string]any) error {
	if len(key) != medcrypt.MasterKeySize {
		return fmt.Errorf("%w: master key must be %d bytes, got %d",
			medcrypt.ErrInvalidConfiguration, medcrypt.MasterKeySize, len(key))
	}
	body := map[string]any{
		"data": map[string]any{
			"value": base64.StdEncoding.EncodeToString(key),
		},
	}
	if options != nil {
		body["options"] = options
	}
	return k.guard.Do(ctx, func(ctx context.Context) error {
		_, err := k.client.Logical().WriteWithContext(ctx, k.StoragePath(alias), body)
		if isCASConflict(err) {
			return errCASConflict
		}
		if err != nil {
			return fmt.Errorf("%w: failed to store master key in Vault: %w", medcrypt.ErrDatabaseUnavailable, err)
		}
		return nil
	})
}

func isCASConflict(err error) bool {
	var respErr *api.ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusBadRequest {
		return false
	}
	for _, msg := range respErr.Errors {
		if strings.Contains(msg, "check-and-set") {
			return true
		}
	}
	return false
}

// GetMasterKey reads alias's master key. A missing key wraps ErrNotFound.
func (k *KVStore) GetMasterKey(ctx context.Context, alias string) ([]byte, error) {
	var secret *api.Secret
	err := k.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		if secret, err = k.client.Logical().ReadWithContext(ctx, k.StoragePath(alias)); err != nil {
			return fmt.Errorf("%w: failed to read master key from Vault: %w", medcrypt.ErrDatabaseUnavailable, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: master key for alias '%s'", medcrypt.ErrNotFound, alias)
	}

	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: invalid KV v2 secret format for alias '%s'", medcrypt.ErrInvalidConfiguration, alias)
	}
	encoded, ok := data["value"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: master key value missing for alias '%s'", medcrypt.ErrInvalidConfiguration, alias)
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode master key: %w", medcrypt.ErrInvalidConfiguration, err)
	}
	if len(key) != medcrypt.MasterKeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes, got %d",
			medcrypt.ErrInvalidConfiguration, medcrypt.MasterKeySize, len(key))
	}
	return key, nil
}

// EnsureMasterKey returns alias's master key, generating and storing a
// random one on first use. The first write is check-and-set with cas=0, so
// when two processes race the loser reads back the winner's key.
func (k *KVStore) EnsureMasterKey(ctx context.Context, alias string) ([]byte, error) {
	key, err := k.GetMasterKey(ctx, alias)
	if !errors.Is(err, medcrypt.ErrNotFound) {
		return key, err
	}

	key = make([]byte, medcrypt.MasterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	err = k.writeMasterKey(ctx, alias, key, map[string]any{"cas": 0})
	if errors.Is(err, errCASConflict) {
		return k.GetMasterKey(ctx, alias)
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}
