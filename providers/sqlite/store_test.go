package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/krathor2212/medcrypt"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := New(db)
	require.NoError(t, err)
	return store
}

func newCrypto(t *testing.T, store *Store) (*medcrypt.Crypto, *medcrypt.FixedClock) {
	t.Helper()
	clock := medcrypt.NewFixedClock(epoch)
	c, err := medcrypt.NewTestCrypto(medcrypt.WithStore(store), medcrypt.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, clock
}

func TestNew_SchemaIsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	_, err = New(db)
	require.NoError(t, err)
	_, err = New(db)
	assert.NoError(t, err)

	_, err = New(nil)
	assert.ErrorIs(t, err, medcrypt.ErrInvalidConfiguration)
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "medcrypt.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, reopened.Close())
}

func TestStore_GrantLifecycle(t *testing.T) {
	store := newMemoryStore(t)
	c, clock := newCrypto(t, store)
	ctx := context.Background()
	gen := c.NewKeyPairGenerator()

	patient, err := gen.Generate(ctx)
	require.NoError(t, err)
	doctor, err := gen.Generate(ctx)
	require.NoError(t, err)

	granted, err := c.Access().Grant(ctx, medcrypt.GrantRequest{
		PatientID:     "p1",
		DoctorID:      "d1",
		PatientKey:    patient,
		DoctorKey:     &doctor.PublicKey,
		ExpiresInDays: 7,
	})
	require.NoError(t, err)

	stored, err := store.GetGrant(ctx, "p1", "d1")
	require.NoError(t, err)
	assert.Equal(t, granted.ID, stored.ID)
	assert.True(t, stored.IsActive)
	assert.Equal(t, granted.Bundle.IV, stored.Bundle.IV)
	assert.Equal(t, granted.Bundle.AuthTag, stored.Bundle.AuthTag)
	assert.Equal(t, granted.Bundle.EncryptedPrivateKey, stored.Bundle.EncryptedPrivateKey)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, granted.ExpiresAt.Equal(*stored.ExpiresAt))
	assert.True(t, epoch.Equal(stored.AuthorizedAt))

	recovered, err := c.Access().RecoverFor(ctx, "p1", "d1", doctor)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered.X.Cmp(patient.X))

	clock.Advance(time.Hour)
	require.NoError(t, c.Access().Revoke(ctx, "p1", "d1", "p1"))
	_, err = c.Access().RecoverFor(ctx, "p1", "d1", doctor)
	assert.ErrorIs(t, err, medcrypt.ErrAccessDenied)

	clock.Advance(time.Hour)
	regranted, err := c.Access().Grant(ctx, medcrypt.GrantRequest{
		PatientID:  "p1",
		DoctorID:   "d1",
		PatientKey: patient,
		DoctorKey:  &doctor.PublicKey,
	})
	require.NoError(t, err)
	assert.Equal(t, granted.ID, regranted.ID)

	stored, err = store.GetGrant(ctx, "p1", "d1")
	require.NoError(t, err)
	assert.Nil(t, stored.ExpiresAt)

	entries, err := c.Audit().ListForPatient(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, medcrypt.AuditGranted, entries[0].Action)
	assert.Equal(t, medcrypt.AuditRevoked, entries[1].Action)
	assert.Equal(t, medcrypt.AuditGranted, entries[2].Action)
	assert.False(t, entries[2].OldActive)
	require.NotNil(t, entries[2].OldExpiresAt)
	assert.Nil(t, entries[2].NewExpiresAt)
	assert.True(t, epoch.Add(2*time.Hour).Equal(entries[2].Timestamp))

	byDoctor, err := c.Audit().ListForDoctor(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, entries, byDoctor)
}

func TestStore_GetGrantNotFound(t *testing.T) {
	store := newMemoryStore(t)
	_, err := store.GetGrant(context.Background(), "p1", "d1")
	assert.ErrorIs(t, err, medcrypt.ErrNotFound)
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(tx medcrypt.GrantTx) error {
		if err := tx.AppendAudit(ctx, &medcrypt.AuditEntry{
			ID: "a1", GrantID: "g1", PatientID: "p1", DoctorID: "d1",
			Action: medcrypt.AuditGranted, PerformedBy: "p1", NewActive: true, Timestamp: epoch,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := store.ListAuditByPatient(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_WithinTxRetriesBusy(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	attempts := 0
	err := store.WithinTx(ctx, func(tx medcrypt.GrantTx) error {
		attempts++
		if attempts == 1 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return tx.AppendAudit(ctx, &medcrypt.AuditEntry{
			ID: "a1", GrantID: "g1", PatientID: "p1", DoctorID: "d1",
			Action: medcrypt.AuditGranted, PerformedBy: "p1", NewActive: true, Timestamp: epoch,
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	entries, err := store.ListAuditByPatient(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	attempts = 0
	err = store.WithinTx(ctx, func(medcrypt.GrantTx) error {
		attempts++
		return sqlite3.Error{Code: sqlite3.ErrLocked}
	})
	assert.ErrorIs(t, err, medcrypt.ErrDatabaseUnavailable)
	assert.Equal(t, 3, attempts)
}

func TestStore_AuditIsAppendOnly(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()

	entry := &medcrypt.AuditEntry{
		ID: "a1", GrantID: "g1", PatientID: "p1", DoctorID: "d1",
		Action: medcrypt.AuditGranted, PerformedBy: "p1", NewActive: true, Timestamp: epoch,
	}
	require.NoError(t, store.WithinTx(ctx, func(tx medcrypt.GrantTx) error {
		return tx.AppendAudit(ctx, entry)
	}))
	assert.Equal(t, int64(1), entry.Seq)

	_, err := store.db.ExecContext(ctx, `UPDATE audit_log SET action = 'revoked' WHERE id = 'a1'`)
	assert.ErrorContains(t, err, "append-only")
	_, err = store.db.ExecContext(ctx, `DELETE FROM audit_log WHERE id = 'a1'`)
	assert.ErrorContains(t, err, "append-only")
}

func TestStore_Files(t *testing.T) {
	store := newMemoryStore(t)
	c, clock := newCrypto(t, store)
	ctx := context.Background()

	priv, err := c.NewKeyPairGenerator().Generate(ctx)
	require.NoError(t, err)

	small := []byte("blood panel")
	large := make([]byte, 1500)
	_, err = rand.Read(large)
	require.NoError(t, err)

	first, err := c.StoreFile(ctx, medcrypt.FileInput{OwnerID: "p1", MimeType: "text/plain", Data: small}, &priv.PublicKey)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := c.StoreFile(ctx, medcrypt.FileInput{OwnerID: "p1", MimeType: "application/pdf", Data: large}, &priv.PublicKey)
	require.NoError(t, err)

	files, err := store.ListFiles(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, first.ID, files[0].ID)
	assert.Equal(t, second.ID, files[1].ID)
	assert.Equal(t, medcrypt.PayloadSingle, files[0].Payload.Kind)
	assert.Equal(t, medcrypt.PayloadChunked, files[1].Payload.Kind)
	assert.Equal(t, "application/pdf", files[1].MimeType)

	got, err := c.OpenFile(ctx, "p1", second.ID, priv)
	require.NoError(t, err)
	assert.Equal(t, large, got)

	_, err = store.GetFile(ctx, "p2", first.ID)
	assert.ErrorIs(t, err, medcrypt.ErrNotFound)

	none, err := store.ListFiles(ctx, "p2")
	require.NoError(t, err)
	assert.Empty(t, none)

	err = store.PutFile(ctx, &medcrypt.EncryptedFile{})
	assert.ErrorIs(t, err, medcrypt.ErrInvalidArgument)
}

func TestStore_PutFileRejectsExistingID(t *testing.T) {
	store := newMemoryStore(t)
	c, _ := newCrypto(t, store)
	ctx := context.Background()

	priv, err := c.NewKeyPairGenerator().Generate(ctx)
	require.NoError(t, err)
	original, err := c.StoreFile(ctx, medcrypt.FileInput{OwnerID: "alice", Data: []byte("scan")}, &priv.PublicKey)
	require.NoError(t, err)

	replacement := *original
	replacement.OwnerID = "mallory"
	err = store.PutFile(ctx, &replacement)
	assert.ErrorIs(t, err, medcrypt.ErrFileExists)

	got, err := c.OpenFile(ctx, "alice", original.ID, priv)
	require.NoError(t, err)
	assert.Equal(t, []byte("scan"), got)

	_, err = store.GetFile(ctx, "mallory", original.ID)
	assert.ErrorIs(t, err, medcrypt.ErrNotFound)
}

func TestStore_KeyPairs(t *testing.T) {
	store := newMemoryStore(t)
	c, _ := newCrypto(t, store)
	ctx := context.Background()

	priv, err := c.Keys().Register(ctx, "d1", medcrypt.RoleDoctor)
	require.NoError(t, err)

	_, err = c.Keys().Register(ctx, "d1", medcrypt.RoleDoctor)
	assert.ErrorIs(t, err, medcrypt.ErrKeyExists)

	err = store.PutKeyPair(ctx, &medcrypt.StoredKeyPair{OwnerID: "d1", Role: medcrypt.RoleDoctor, PublicKey: []byte{1}, SealedPrivateKey: []byte{2}})
	assert.ErrorIs(t, err, medcrypt.ErrKeyExists)

	loaded, err := c.Keys().Load(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 0, priv.X.Cmp(loaded.X))

	pair, err := store.GetKeyPair(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, epoch.Equal(pair.CreatedAt))

	_, err = store.GetKeyPair(ctx, "nobody")
	assert.ErrorIs(t, err, medcrypt.ErrNotFound)
}

func TestStore_Ping(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	store, err := New(db)
	require.NoError(t, err)

	require.NoError(t, store.Ping(context.Background()))
	assert.Equal(t, "sqlite", store.Breaker().Name())

	require.NoError(t, db.Close())
	assert.ErrorIs(t, store.Ping(context.Background()), medcrypt.ErrDatabaseUnavailable)
}
