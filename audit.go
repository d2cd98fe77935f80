package medcrypt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction is the kind of state transition an audit entry records.
type AuditAction string

const (
	AuditGranted AuditAction = AuditActionGranted
	AuditRevoked AuditAction = AuditActionRevoked
)

// AuditEntry records one grant state transition. Entries are append-only.
type AuditEntry struct {
	// Seq is assigned by the store and breaks timestamp ties.
	Seq          int64       `json:"seq"`
	ID           string      `json:"id"`
	GrantID      string      `json:"grant_id"`
	PatientID    string      `json:"patient_id"`
	DoctorID     string      `json:"doctor_id"`
	Action       AuditAction `json:"action"`
	PerformedBy  string      `json:"performed_by"`
	OldActive    bool        `json:"old_active"`
	NewActive    bool        `json:"new_active"`
	OldExpiresAt *time.Time  `json:"old_expires_at,omitempty"`
	NewExpiresAt *time.Time  `json:"new_expires_at,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// AuditLog appends and queries the grant audit trail. It is never consulted
// when deciding whether a grant may be used.
type AuditLog struct {
	reader AuditReader
	clock  Clock
}

// NewAuditLog creates an audit log reading from reader. reader may be nil
// for a log that only appends.
func NewAuditLog(reader AuditReader, clock Clock) *AuditLog {
	if clock == nil {
		clock = SystemClock()
	}
	return &AuditLog{reader: reader, clock: clock}
}

// Append writes entry inside tx. ID and Timestamp are filled when empty.
func (a *AuditLog) Append(ctx context.Context, tx GrantTx, entry *AuditEntry) error {
	if entry.PatientID == "" || entry.DoctorID == "" {
		return fmt.Errorf("%w: audit entry requires patient and doctor ids", ErrInvalidArgument)
	}
	switch entry.Action {
	case AuditGranted, AuditRevoked:
	default:
		return fmt.Errorf("%w: unknown audit action '%s'", ErrInvalidArgument, entry.Action)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.clock.Now()
	}
	if err := tx.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListForPatient returns the patient's entries ordered by timestamp, then insertion.
func (a *AuditLog) ListForPatient(ctx context.Context, patientID string) ([]AuditEntry, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("%w: audit log has no reader", ErrInvalidConfiguration)
	}
	return a.reader.ListAuditByPatient(ctx, patientID)
}

// ListForDoctor returns the doctor's entries ordered by timestamp, then insertion.
func (a *AuditLog) ListForDoctor(ctx context.Context, doctorID string) ([]AuditEntry, error) {
	if a.reader == nil {
		return nil, fmt.Errorf("%w: audit log has no reader", ErrInvalidConfiguration)
	}
	return a.reader.ListAuditByDoctor(ctx, doctorID)
}
