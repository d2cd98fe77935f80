package medcrypt

import "context"

// GrantStore persists authorization grants.
//
// Grant and Revoke read the previous row, write the new one and append an
// audit entry inside a single WithinTx call, so either all three effects are
// visible or none is. Implementations must serialize transactions that touch
// the same (patient, doctor) pair.
//
// Implementations:
//   - InMemoryStore (tests)
//   - github.com/krathor2212/medcrypt/providers/sqlite.Store
type GrantStore interface {
	// GetGrant returns the grant for the pair or an error wrapping ErrNotFound.
	GetGrant(ctx context.Context, patientID, doctorID string) (*AuthorizationGrant, error)

	// WithinTx runs fn in one transaction. A non-nil error from fn rolls
	// everything back and is returned unchanged.
	WithinTx(ctx context.Context, fn func(tx GrantTx) error) error
}

// GrantTx is the transactional view handed to GrantStore.WithinTx callbacks.
type GrantTx interface {
	// GetGrant returns the grant for the pair or an error wrapping ErrNotFound.
	GetGrant(ctx context.Context, patientID, doctorID string) (*AuthorizationGrant, error)

	// UpsertGrant inserts the grant or, when a row for the same
	// (PatientID, DoctorID) exists, overwrites every field except its ID.
	UpsertGrant(ctx context.Context, grant *AuthorizationGrant) error

	// AppendAudit appends an entry. Entries are never updated or deleted.
	AppendAudit(ctx context.Context, entry *AuditEntry) error
}

// AuditReader lists audit entries ordered by timestamp, then insertion order.
type AuditReader interface {
	ListAuditByPatient(ctx context.Context, patientID string) ([]AuditEntry, error)
	ListAuditByDoctor(ctx context.Context, doctorID string) ([]AuditEntry, error)
}

// FileStore persists encrypted files.
//
// Implementations:
//   - InMemoryStore (tests)
//   - github.com/krathor2212/medcrypt/providers/sqlite.Store
//   - github.com/krathor2212/medcrypt/providers/s3.FileStore
type FileStore interface {
	// PutFile inserts a new file. Files are immutable, so an existing ID
	// fails with ErrFileExists.
	PutFile(ctx context.Context, file *EncryptedFile) error

	// GetFile returns the file or an error wrapping ErrNotFound.
	GetFile(ctx context.Context, ownerID, fileID string) (*EncryptedFile, error)

	// ListFiles returns the owner's files, oldest first.
	ListFiles(ctx context.Context, ownerID string) ([]*EncryptedFile, error)
}

// KeyPairStore persists key pairs whose private half is sealed under the
// master key.
type KeyPairStore interface {
	// PutKeyPair inserts a key pair. An existing owner fails with ErrKeyExists.
	PutKeyPair(ctx context.Context, pair *StoredKeyPair) error

	// GetKeyPair returns the key pair or an error wrapping ErrNotFound.
	GetKeyPair(ctx context.Context, ownerID string) (*StoredKeyPair, error)
}

// Store bundles every persistence interface into one backend.
type Store interface {
	GrantStore
	AuditReader
	FileStore
	KeyPairStore
	Close() error
}
