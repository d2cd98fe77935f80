// Package sqlite persists encrypted files, authorization grants, the audit
// log and sealed key pairs in a SQLite database through mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/krathor2212/medcrypt"
	"github.com/krathor2212/medcrypt/internal/reliability"
	"github.com/krathor2212/medcrypt/internal/serialization"
	"github.com/mattn/go-sqlite3"
)

// Store implements medcrypt.Store.
type Store struct {
	db     *sql.DB
	ownsDB bool
	guard  *reliability.Guard
}

var _ medcrypt.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it.
// The parent directory is created with 0700 permissions.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory '%s': %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database at '%s': %w", medcrypt.ErrDatabaseUnavailable, path, err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New wraps an existing connection and creates the schema.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database connection is nil", medcrypt.ErrInvalidConfiguration)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: database connection test failed: %w", medcrypt.ErrDatabaseUnavailable, err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create database schema: %w", err)
	}
	return &Store{db: db, guard: reliability.NewDefaultGuard("sqlite")}, nil
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", medcrypt.ErrDatabaseUnavailable, err)
	}
	return nil
}

// Breaker exposes the circuit breaker guarding transactions.
func (s *Store) Breaker() *reliability.CircuitBreaker { return s.guard.Breaker() }

// Close closes the connection if Open created it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func toUnix(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked)
}

// --- grants ---

const grantColumns = `id, patient_id, doctor_id, encrypted_aes_key, iv, auth_tag,
	encrypted_private_key, is_active, authorized_at, expires_at, updated_at`

func scanGrant(row scanner) (*medcrypt.AuthorizationGrant, error) {
	var (
		g                       medcrypt.AuthorizationGrant
		aesKey, iv, tag         []byte
		authorizedAt, updatedAt int64
		expiresAt               sql.NullInt64
	)
	err := row.Scan(&g.ID, &g.PatientID, &g.DoctorID, &aesKey, &iv, &tag,
		&g.Bundle.EncryptedPrivateKey, &g.IsActive, &authorizedAt, &expiresAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	blocks, err := serialization.DecodeBlocks(aesKey)
	if err != nil {
		return nil, fmt.Errorf("grant '%s' encrypted key: %w", g.ID, err)
	}
	if len(blocks) != 1 || len(iv) != medcrypt.WrapIVSize || len(tag) != medcrypt.WrapTagSize {
		return nil, fmt.Errorf("%w: grant '%s' has a malformed bundle", medcrypt.ErrInvalidPayload, g.ID)
	}
	g.Bundle.EncryptedAESKey = blocks[0]
	copy(g.Bundle.IV[:], iv)
	copy(g.Bundle.AuthTag[:], tag)
	g.AuthorizedAt = fromUnix(authorizedAt)
	g.UpdatedAt = fromUnix(updatedAt)
	g.ExpiresAt = fromNullUnix(expiresAt)
	return &g, nil
}

func getGrant(ctx context.Context, q queryer, patientID, doctorID string) (*medcrypt.AuthorizationGrant, error) {
	row := q.QueryRowContext(ctx, `SELECT `+grantColumns+` FROM authorization_grants
		WHERE patient_id = ? AND doctor_id = ?`, patientID, doctorID)
	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: grant from '%s' to '%s'", medcrypt.ErrNotFound, patientID, doctorID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read grant from '%s' to '%s': %w", patientID, doctorID, err)
	}
	return g, nil
}

// GetGrant returns the grant for the pair.
func (s *Store) GetGrant(ctx context.Context, patientID, doctorID string) (*medcrypt.AuthorizationGrant, error) {
	return getGrant(ctx, s.db, patientID, doctorID)
}

// WithinTx runs fn in an IMMEDIATE transaction. A transaction that fails
// because the database is locked is rolled back and run again.
func (s *Store) WithinTx(ctx context.Context, fn func(tx medcrypt.GrantTx) error) error {
	return s.guard.Do(ctx, func(ctx context.Context) error {
		return s.withinTx(ctx, fn)
	})
}

func (s *Store) withinTx(ctx context.Context, fn func(tx medcrypt.GrantTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", medcrypt.ErrDatabaseUnavailable, err)
	}
	if err := fn(&sqlTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		if isBusy(err) && !errors.Is(err, medcrypt.ErrDatabaseUnavailable) {
			return fmt.Errorf("%w: %w", medcrypt.ErrDatabaseUnavailable, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", medcrypt.ErrDatabaseUnavailable, err)
	}
	return nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) GetGrant(ctx context.Context, patientID, doctorID string) (*medcrypt.AuthorizationGrant, error) {
	return getGrant(ctx, t.tx, patientID, doctorID)
}

func (t *sqlTx) UpsertGrant(ctx context.Context, g *medcrypt.AuthorizationGrant) error {
	aesKey, err := serialization.EncodeBlocks([]serialization.Block{g.Bundle.EncryptedAESKey})
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO authorization_grants (`+grantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (patient_id, doctor_id) DO UPDATE SET
			encrypted_aes_key = excluded.encrypted_aes_key,
			iv = excluded.iv,
			auth_tag = excluded.auth_tag,
			encrypted_private_key = excluded.encrypted_private_key,
			is_active = excluded.is_active,
			authorized_at = excluded.authorized_at,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, g.ID, g.PatientID, g.DoctorID, aesKey, g.Bundle.IV[:], g.Bundle.AuthTag[:],
		g.Bundle.EncryptedPrivateKey, g.IsActive, toUnix(g.AuthorizedAt), toNullUnix(g.ExpiresAt), toUnix(g.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert grant from '%s' to '%s': %w", g.PatientID, g.DoctorID, err)
	}
	return nil
}

func (t *sqlTx) AppendAudit(ctx context.Context, e *medcrypt.AuditEntry) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO audit_log (id, grant_id, patient_id, doctor_id, action, performed_by,
			old_active, new_active, old_expires_at, new_expires_at, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.GrantID, e.PatientID, e.DoctorID, string(e.Action), e.PerformedBy,
		e.OldActive, e.NewActive, toNullUnix(e.OldExpiresAt), toNullUnix(e.NewExpiresAt), toUnix(e.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read audit sequence: %w", err)
	}
	e.Seq = seq
	return nil
}

// --- audit ---

func (s *Store) listAudit(ctx context.Context, column, id string) ([]medcrypt.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, grant_id, patient_id, doctor_id, action, performed_by,
			old_active, new_active, old_expires_at, new_expires_at, timestamp
		FROM audit_log WHERE `+column+` = ?
		ORDER BY timestamp, seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []medcrypt.AuditEntry
	for rows.Next() {
		var (
			e                      medcrypt.AuditEntry
			action                 string
			oldExpires, newExpires sql.NullInt64
			ts                     int64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.GrantID, &e.PatientID, &e.DoctorID, &action, &e.PerformedBy,
			&e.OldActive, &e.NewActive, &oldExpires, &newExpires, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = medcrypt.AuditAction(action)
		e.OldExpiresAt = fromNullUnix(oldExpires)
		e.NewExpiresAt = fromNullUnix(newExpires)
		e.Timestamp = fromUnix(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListAuditByPatient returns the patient's audit entries in order.
func (s *Store) ListAuditByPatient(ctx context.Context, patientID string) ([]medcrypt.AuditEntry, error) {
	return s.listAudit(ctx, "patient_id", patientID)
}

// ListAuditByDoctor returns the doctor's audit entries in order.
func (s *Store) ListAuditByDoctor(ctx context.Context, doctorID string) ([]medcrypt.AuditEntry, error) {
	return s.listAudit(ctx, "doctor_id", doctorID)
}

// --- files ---

const fileColumns = `id, owner_id, mime_type, original_size, kind, blocks, created_at`

func scanFile(row scanner) (*medcrypt.EncryptedFile, error) {
	var (
		f         medcrypt.EncryptedFile
		kind      string
		blocks    []byte
		createdAt int64
	)
	if err := row.Scan(&f.ID, &f.OwnerID, &f.MimeType, &f.OriginalSize, &kind, &blocks, &createdAt); err != nil {
		return nil, err
	}
	if err := f.Payload.Kind.UnmarshalText([]byte(kind)); err != nil {
		return nil, err
	}
	decoded, err := serialization.DecodeBlocks(blocks)
	if err != nil {
		return nil, fmt.Errorf("file '%s': %w", f.ID, err)
	}
	f.Payload.Blocks = decoded
	f.CreatedAt = fromUnix(createdAt)
	return &f, nil
}

// PutFile inserts an encrypted file. An existing ID fails with ErrFileExists.
func (s *Store) PutFile(ctx context.Context, f *medcrypt.EncryptedFile) error {
	if f == nil || f.ID == "" {
		return fmt.Errorf("%w: file must have an id", medcrypt.ErrInvalidArgument)
	}
	kind, err := f.Payload.Kind.MarshalText()
	if err != nil {
		return err
	}
	blocks, err := serialization.EncodeBlocks(f.Payload.Blocks)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO encrypted_files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.OwnerID, f.MimeType, f.OriginalSize, string(kind), blocks, toUnix(f.CreatedAt))
	if isConstraint(err) {
		return fmt.Errorf("%w: file '%s'", medcrypt.ErrFileExists, f.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to store file '%s': %w", f.ID, err)
	}
	return nil
}

// GetFile returns one of the owner's files.
func (s *Store) GetFile(ctx context.Context, ownerID, fileID string) (*medcrypt.EncryptedFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM encrypted_files
		WHERE id = ? AND owner_id = ?`, fileID, ownerID)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: file '%s'", medcrypt.ErrNotFound, fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file '%s': %w", fileID, err)
	}
	return f, nil
}

// ListFiles returns the owner's files, oldest first.
func (s *Store) ListFiles(ctx context.Context, ownerID string) ([]*medcrypt.EncryptedFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM encrypted_files
		WHERE owner_id = ? ORDER BY created_at, rowid`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var out []*medcrypt.EncryptedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read file row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// --- key pairs ---

// PutKeyPair inserts a key pair. An existing owner fails with ErrKeyExists.
func (s *Store) PutKeyPair(ctx context.Context, pair *medcrypt.StoredKeyPair) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO key_pairs (owner_id, role, public_key, sealed_private_key, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, pair.OwnerID, pair.Role, pair.PublicKey, pair.SealedPrivateKey, toUnix(pair.CreatedAt))
	if isConstraint(err) {
		return fmt.Errorf("%w: owner '%s'", medcrypt.ErrKeyExists, pair.OwnerID)
	}
	if err != nil {
		return fmt.Errorf("failed to store key pair for '%s': %w", pair.OwnerID, err)
	}
	return nil
}

// GetKeyPair returns the owner's stored key pair.
func (s *Store) GetKeyPair(ctx context.Context, ownerID string) (*medcrypt.StoredKeyPair, error) {
	var (
		pair      medcrypt.StoredKeyPair
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id, role, public_key, sealed_private_key, created_at
		FROM key_pairs WHERE owner_id = ?
	`, ownerID).Scan(&pair.OwnerID, &pair.Role, &pair.PublicKey, &pair.SealedPrivateKey, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: key pair for '%s'", medcrypt.ErrNotFound, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key pair for '%s': %w", ownerID, err)
	}
	pair.CreatedAt = fromUnix(createdAt)
	return &pair, nil
}
