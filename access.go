package medcrypt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/krathor2212/medcrypt/internal/security"
)

// GrantBundle is the delegation material stored with a grant: the AES wrap
// key encrypted for the doctor, and the patient private key wrapped under it.
type GrantBundle struct {
	EncryptedAESKey     EncryptedBlock    `json:"encrypted_aes_key"`
	IV                  [WrapIVSize]byte  `json:"iv"`
	AuthTag             [WrapTagSize]byte `json:"auth_tag"`
	EncryptedPrivateKey []byte            `json:"encrypted_private_key"`
}

// AuthorizationGrant lets DoctorID recover PatientID's private key. There is
// at most one grant per (patient, doctor) pair.
type AuthorizationGrant struct {
	ID           string      `json:"id"`
	PatientID    string      `json:"patient_id"`
	DoctorID     string      `json:"doctor_id"`
	Bundle       GrantBundle `json:"bundle"`
	IsActive     bool        `json:"is_active"`
	AuthorizedAt time.Time   `json:"authorized_at"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Expired reports whether the grant has an expiry at or before now.
func (g *AuthorizationGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

// Check returns nil when the grant may be used at now, or the
// *AccessDeniedError explaining why not.
func (g *AuthorizationGrant) Check(now time.Time) error {
	switch {
	case g == nil:
		return newAccessDenied(DenialNotFound, "", "")
	case !g.IsActive:
		return newAccessDenied(DenialRevoked, g.PatientID, g.DoctorID)
	case g.Expired(now):
		return newAccessDenied(DenialExpired, g.PatientID, g.DoctorID)
	}
	return nil
}

// GrantRequest describes a delegation from a patient to a doctor.
type GrantRequest struct {
	PatientID  string
	DoctorID   string
	PatientKey *PrivateKey
	DoctorKey  *PublicKey
	// ExpiresInDays of zero means the grant never expires.
	ExpiresInDays int
	PerformedBy   string
}

// AccessService grants, recovers and revokes delegated access to patient
// private keys.
type AccessService struct {
	cipher  *ElGamalCipher
	wrapper *KeyWrapper
	store   GrantStore
	audit   *AuditLog
	clock   Clock
	instr   instrument
}

// NewAccessService wires the grant protocol to a store.
func NewAccessService(cipher *ElGamalCipher, wrapper *KeyWrapper, store GrantStore, opts ...Option) (*AccessService, error) {
	if cipher == nil || wrapper == nil || store == nil {
		return nil, fmt.Errorf("%w: cipher, wrapper and store are required", ErrInvalidConfiguration)
	}
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return &AccessService{
		cipher:  cipher,
		wrapper: wrapper,
		store:   store,
		audit:   NewAuditLog(nil, s.clock),
		clock:   s.clock,
		instr:   s.instrument("access"),
	}, nil
}

// Grant creates or replaces the pair's grant as active and appends a
// "granted" audit entry in the same transaction. The one-time AES key is
// wiped before returning.
func (a *AccessService) Grant(ctx context.Context, req GrantRequest) (*AuthorizationGrant, error) {
	metadata := map[string]any{
		"patient_id":      req.PatientID,
		"doctor_id":       req.DoctorID,
		"expires_in_days": req.ExpiresInDays,
	}
	var grant *AuthorizationGrant
	err := a.instr.run(ctx, OpGrant, metadata, func() error {
		var err error
		grant, err = a.grant(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (a *AccessService) grant(ctx context.Context, req GrantRequest) (*AuthorizationGrant, error) {
	if req.PatientID == "" || req.DoctorID == "" {
		return nil, fmt.Errorf("%w: patient and doctor ids are required", ErrInvalidArgument)
	}
	if req.ExpiresInDays < 0 {
		return nil, fmt.Errorf("%w: expires in days must not be negative, got %d", ErrInvalidArgument, req.ExpiresInDays)
	}
	if req.DoctorKey == nil {
		return nil, fmt.Errorf("%w: doctor public key is required", ErrKeyFormat)
	}

	bundle, err := a.seal(req.PatientKey, req.DoctorKey, grantAAD(req.PatientID, req.DoctorID))
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := now.AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}
	performedBy := req.PerformedBy
	if performedBy == "" {
		performedBy = req.PatientID
	}

	var grant *AuthorizationGrant
	err = a.store.WithinTx(ctx, func(tx GrantTx) error {
		prev, err := tx.GetGrant(ctx, req.PatientID, req.DoctorID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		grant = &AuthorizationGrant{
			ID:           uuid.NewString(),
			PatientID:    req.PatientID,
			DoctorID:     req.DoctorID,
			Bundle:       *bundle,
			IsActive:     true,
			AuthorizedAt: now,
			ExpiresAt:    expiresAt,
			UpdatedAt:    now,
		}
		entry := &AuditEntry{
			PatientID:    req.PatientID,
			DoctorID:     req.DoctorID,
			Action:       AuditGranted,
			PerformedBy:  performedBy,
			NewActive:    true,
			NewExpiresAt: expiresAt,
			Timestamp:    now,
		}
		if prev != nil {
			grant.ID = prev.ID
			entry.OldActive = prev.IsActive
			entry.OldExpiresAt = prev.ExpiresAt
		}
		entry.GrantID = grant.ID

		if err := tx.UpsertGrant(ctx, grant); err != nil {
			return fmt.Errorf("failed to store grant: %w", err)
		}
		return a.audit.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// grantAAD binds a bundle to its (patient, doctor) pair.
func grantAAD(patientID, doctorID string) []byte {
	return []byte(patientID + "|" + doctorID)
}

// seal wraps the serialized patient key and encrypts the wrap key for the doctor.
func (a *AccessService) seal(patientKey *PrivateKey, doctorKey *PublicKey, aad []byte) (*GrantBundle, error) {
	params := a.cipher.Params()
	serialized, err := params.SerializePrivateKey(patientKey)
	if err != nil {
		return nil, err
	}
	defer security.ZeroBytes(serialized)

	wrapped, err := a.wrapper.Wrap(serialized, aad)
	if err != nil {
		return nil, err
	}
	defer wrapped.Wipe()

	aesKey, err := a.cipher.EncryptBytes(wrapped.Key, doctorKey)
	if err != nil {
		return nil, err
	}

	bundle := &GrantBundle{
		EncryptedAESKey:     aesKey,
		EncryptedPrivateKey: wrapped.Ciphertext,
	}
	copy(bundle.IV[:], wrapped.IV)
	copy(bundle.AuthTag[:], wrapped.Tag)
	return bundle, nil
}

// Recover returns the patient private key carried by grant. A nil, revoked
// or expired grant yields an *AccessDeniedError. Expiry is evaluated against
// the service clock at call time. Integrity failures are returned unchanged.
func (a *AccessService) Recover(ctx context.Context, grant *AuthorizationGrant, doctorKey *PrivateKey) (*PrivateKey, error) {
	metadata := map[string]any{}
	if grant != nil {
		metadata["patient_id"] = grant.PatientID
		metadata["doctor_id"] = grant.DoctorID
		metadata["grant_id"] = grant.ID
	}
	var priv *PrivateKey
	err := a.instr.run(ctx, OpRecover, metadata, func() error {
		var err error
		priv, err = a.recover(ctx, grant, doctorKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return priv, nil
}

func (a *AccessService) recover(ctx context.Context, grant *AuthorizationGrant, doctorKey *PrivateKey) (*PrivateKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := grant.Check(a.clock.Now()); err != nil {
		return nil, err
	}

	aesKey, err := a.cipher.DecryptBytes(grant.Bundle.EncryptedAESKey, doctorKey)
	if err != nil {
		return nil, err
	}
	defer security.ZeroBytes(aesKey)

	serialized, err := a.wrapper.Unwrap(WrappedSecret{
		IV:         grant.Bundle.IV[:],
		Ciphertext: grant.Bundle.EncryptedPrivateKey,
		Tag:        grant.Bundle.AuthTag[:],
	}, aesKey, grantAAD(grant.PatientID, grant.DoctorID))
	if err != nil {
		return nil, err
	}
	defer security.ZeroBytes(serialized)

	return a.cipher.Params().ParsePrivateKey(serialized)
}

// RecoverFor looks up the pair's grant and recovers from it. A missing grant
// is reported as access denied, not as ErrNotFound.
func (a *AccessService) RecoverFor(ctx context.Context, patientID, doctorID string, doctorKey *PrivateKey) (*PrivateKey, error) {
	grant, err := a.store.GetGrant(ctx, patientID, doctorID)
	if errors.Is(err, ErrNotFound) {
		denied := newAccessDenied(DenialNotFound, patientID, doctorID)
		a.instr.hook.OnError(ctx, OpRecover, denied, map[string]any{"patient_id": patientID, "doctor_id": doctorID})
		return nil, denied
	}
	if err != nil {
		return nil, err
	}
	return a.Recover(ctx, grant, doctorKey)
}

// Lookup returns the stored grant for the pair, or an error wrapping ErrNotFound.
func (a *AccessService) Lookup(ctx context.Context, patientID, doctorID string) (*AuthorizationGrant, error) {
	return a.store.GetGrant(ctx, patientID, doctorID)
}

// Revoke deactivates the pair's grant and appends a "revoked" audit entry in
// the same transaction. The bundle is kept. A missing grant fails with
// ErrNotFound; revoking an inactive grant is a no-op that writes no audit
// entry. An active grant is revoked even if it has already expired.
func (a *AccessService) Revoke(ctx context.Context, patientID, doctorID, performedBy string) error {
	metadata := map[string]any{"patient_id": patientID, "doctor_id": doctorID}
	return a.instr.run(ctx, OpRevoke, metadata, func() error {
		if performedBy == "" {
			performedBy = patientID
		}
		now := a.clock.Now()
		return a.store.WithinTx(ctx, func(tx GrantTx) error {
			prev, err := tx.GetGrant(ctx, patientID, doctorID)
			if err != nil {
				return err
			}
			if !prev.IsActive {
				metadata["noop"] = true
				return nil
			}

			updated := *prev
			updated.IsActive = false
			updated.UpdatedAt = now
			if err := tx.UpsertGrant(ctx, &updated); err != nil {
				return fmt.Errorf("failed to store grant: %w", err)
			}
			return a.audit.Append(ctx, tx, &AuditEntry{
				GrantID:      prev.ID,
				PatientID:    patientID,
				DoctorID:     doctorID,
				Action:       AuditRevoked,
				PerformedBy:  performedBy,
				OldActive:    true,
				NewActive:    false,
				OldExpiresAt: prev.ExpiresAt,
				NewExpiresAt: prev.ExpiresAt,
				Timestamp:    now,
			})
		})
	})
}
