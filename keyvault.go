package medcrypt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/krathor2212/medcrypt/internal/cryptoerr"
	"github.com/krathor2212/medcrypt/internal/security"
)

// StoredKeyPair is a key pair at rest. The private half is sealed under the
// master key with the owner and role as associated data.
type StoredKeyPair struct {
	OwnerID          string    `json:"owner_id"`
	Role             string    `json:"role"`
	PublicKey        []byte    `json:"public_key"`
	SealedPrivateKey []byte    `json:"sealed_private_key"`
	CreatedAt        time.Time `json:"created_at"`
}

// KeyVault generates key pairs for patients and doctors and keeps them
// sealed at rest. Keys are never regenerated in place.
type KeyVault struct {
	params    *DomainParameters
	generator *KeyPairGenerator
	wrapper   *KeyWrapper
	store     KeyPairStore
	clock     Clock
	instr     instrument
}

// NewKeyVault creates a vault over store.
func NewKeyVault(params *DomainParameters, wrapper *KeyWrapper, store KeyPairStore, opts ...Option) (*KeyVault, error) {
	if params == nil || wrapper == nil || store == nil {
		return nil, fmt.Errorf("%w: parameters, wrapper and store are required", ErrInvalidConfiguration)
	}
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return &KeyVault{
		params:    params,
		generator: NewKeyPairGenerator(params, s.random),
		wrapper:   wrapper,
		store:     store,
		clock:     s.clock,
		instr:     s.instrument("keys"),
	}, nil
}

func sealingAAD(ownerID, role string) []byte {
	return []byte(ownerID + "|" + role)
}

// Register generates and stores a key pair for ownerID. An owner that
// already has a key pair fails with ErrKeyExists.
func (v *KeyVault) Register(ctx context.Context, ownerID, role string) (*PrivateKey, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrInvalidArgument)
	}
	if role != RolePatient && role != RoleDoctor {
		return nil, fmt.Errorf("%w: unknown role '%s'", ErrInvalidArgument, role)
	}

	metadata := map[string]any{"owner_id": ownerID, "role": role}
	var priv *PrivateKey
	err := v.instr.run(ctx, OpRegisterKey, metadata, func() error {
		if _, err := v.store.GetKeyPair(ctx, ownerID); err == nil {
			return fmt.Errorf("%w: owner '%s'", ErrKeyExists, ownerID)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		generated, err := v.generator.Generate(ctx)
		if err != nil {
			return err
		}
		serialized, err := v.params.SerializePrivateKey(generated)
		if err != nil {
			return err
		}
		defer security.ZeroBytes(serialized)

		sealed, err := v.wrapper.Seal(serialized, sealingAAD(ownerID, role))
		if err != nil {
			return err
		}
		public, err := v.params.SerializePublicKey(&generated.PublicKey)
		if err != nil {
			return err
		}
		if err := v.store.PutKeyPair(ctx, &StoredKeyPair{
			OwnerID:          ownerID,
			Role:             role,
			PublicKey:        public,
			SealedPrivateKey: sealed,
			CreatedAt:        v.clock.Now(),
		}); err != nil {
			return err
		}
		priv = generated
		return nil
	})
	if err != nil {
		return nil, err
	}
	v.instr.hook.OnKeyOperation(ctx, OpRegisterKey, ownerID, metadata)
	return priv, nil
}

// Load unseals and returns ownerID's private key.
func (v *KeyVault) Load(ctx context.Context, ownerID string) (*PrivateKey, error) {
	metadata := map[string]any{"owner_id": ownerID}
	var priv *PrivateKey
	err := v.instr.run(ctx, OpLoadKey, metadata, func() error {
		pair, err := v.store.GetKeyPair(ctx, ownerID)
		if err != nil {
			return err
		}
		serialized, err := v.wrapper.Open(pair.SealedPrivateKey, sealingAAD(pair.OwnerID, pair.Role))
		if err != nil {
			return err
		}
		defer security.ZeroBytes(serialized)

		parsed, err := v.params.ParsePrivateKey(serialized)
		if err != nil {
			return err
		}
		public, err := v.params.SerializePublicKey(&parsed.PublicKey)
		if err != nil {
			return err
		}
		if !bytes.Equal(public, pair.PublicKey) {
			return cryptoerr.NewIntegrityError(cryptoerr.KeyGen, "stored public key does not match private key")
		}
		priv = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	v.instr.hook.OnKeyOperation(ctx, OpLoadKey, ownerID, metadata)
	return priv, nil
}

// PublicKey returns ownerID's public key without unsealing anything.
func (v *KeyVault) PublicKey(ctx context.Context, ownerID string) (*PublicKey, error) {
	pair, err := v.store.GetKeyPair(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return v.params.ParsePublicKey(pair.PublicKey)
}

// Role returns the role ownerID registered with.
func (v *KeyVault) Role(ctx context.Context, ownerID string) (string, error) {
	pair, err := v.store.GetKeyPair(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return pair.Role, nil
}
