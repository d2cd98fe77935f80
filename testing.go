package medcrypt

// This file provides in-memory backends and helpers for tests and local tooling.

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"
)

type pairKey struct {
	patientID string
	doctorID  string
}

// InMemoryStore implements Store with mutex-guarded maps. A transaction
// holds the lock for its whole duration and is undone if the callback fails.
type InMemoryStore struct {
	mu     sync.Mutex
	grants map[pairKey]*AuthorizationGrant
	audit  []AuditEntry
	seq    int64
	files  map[string]*EncryptedFile
	order  []string
	keys   map[string]*StoredKeyPair
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		grants: make(map[pairKey]*AuthorizationGrant),
		files:  make(map[string]*EncryptedFile),
		keys:   make(map[string]*StoredKeyPair),
	}
}

func cloneGrant(g *AuthorizationGrant) *AuthorizationGrant {
	c := *g
	c.Bundle.EncryptedAESKey = g.Bundle.EncryptedAESKey.Clone()
	c.Bundle.EncryptedPrivateKey = append([]byte(nil), g.Bundle.EncryptedPrivateKey...)
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func cloneFile(f *EncryptedFile) *EncryptedFile {
	c := *f
	c.Payload.Blocks = make([]EncryptedBlock, len(f.Payload.Blocks))
	for i, b := range f.Payload.Blocks {
		c.Payload.Blocks[i] = b.Clone()
	}
	return &c
}

func (s *InMemoryStore) getGrantLocked(patientID, doctorID string) (*AuthorizationGrant, error) {
	g, ok := s.grants[pairKey{patientID, doctorID}]
	if !ok {
		return nil, fmt.Errorf("%w: grant from '%s' to '%s'", ErrNotFound, patientID, doctorID)
	}
	return cloneGrant(g), nil
}

// GetGrant returns a copy of the pair's grant.
func (s *InMemoryStore) GetGrant(ctx context.Context, patientID, doctorID string) (*AuthorizationGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getGrantLocked(patientID, doctorID)
}

// WithinTx runs fn under the store lock and rolls back on error.
func (s *InMemoryStore) WithinTx(ctx context.Context, fn func(tx GrantTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	grants := make(map[pairKey]*AuthorizationGrant, len(s.grants))
	for k, v := range s.grants {
		grants[k] = v
	}
	auditLen, seq := len(s.audit), s.seq

	if err := fn(&memTx{store: s}); err != nil {
		s.grants = grants
		s.audit = s.audit[:auditLen]
		s.seq = seq
		return err
	}
	return nil
}

type memTx struct {
	store *InMemoryStore
}

func (t *memTx) GetGrant(ctx context.Context, patientID, doctorID string) (*AuthorizationGrant, error) {
	return t.store.getGrantLocked(patientID, doctorID)
}

func (t *memTx) UpsertGrant(ctx context.Context, grant *AuthorizationGrant) error {
	key := pairKey{grant.PatientID, grant.DoctorID}
	stored := cloneGrant(grant)
	if prev, ok := t.store.grants[key]; ok {
		stored.ID = prev.ID
	}
	t.store.grants[key] = stored
	return nil
}

func (t *memTx) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	t.store.seq++
	entry.Seq = t.store.seq
	t.store.audit = append(t.store.audit, *entry)
	return nil
}

func (s *InMemoryStore) listAudit(match func(AuditEntry) bool) []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEntry
	for _, e := range s.audit {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

func (s *InMemoryStore) ListAuditByPatient(ctx context.Context, patientID string) ([]AuditEntry, error) {
	return s.listAudit(func(e AuditEntry) bool { return e.PatientID == patientID }), nil
}

func (s *InMemoryStore) ListAuditByDoctor(ctx context.Context, doctorID string) ([]AuditEntry, error) {
	return s.listAudit(func(e AuditEntry) bool { return e.DoctorID == doctorID }), nil
}

func (s *InMemoryStore) PutFile(ctx context.Context, file *EncryptedFile) error {
	if file == nil || file.ID == "" {
		return fmt.Errorf("%w: file must have an id", ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[file.ID]; ok {
		return fmt.Errorf("%w: file '%s'", ErrFileExists, file.ID)
	}
	s.order = append(s.order, file.ID)
	s.files[file.ID] = cloneFile(file)
	return nil
}

func (s *InMemoryStore) GetFile(ctx context.Context, ownerID, fileID string) (*EncryptedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[fileID]
	if !ok || f.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: file '%s'", ErrNotFound, fileID)
	}
	return cloneFile(f), nil
}

func (s *InMemoryStore) ListFiles(ctx context.Context, ownerID string) ([]*EncryptedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*EncryptedFile
	for _, id := range s.order {
		if f := s.files[id]; f.OwnerID == ownerID {
			out = append(out, cloneFile(f))
		}
	}
	return out, nil
}

func (s *InMemoryStore) PutKeyPair(ctx context.Context, pair *StoredKeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[pair.OwnerID]; ok {
		return fmt.Errorf("%w: owner '%s'", ErrKeyExists, pair.OwnerID)
	}
	c := *pair
	s.keys[pair.OwnerID] = &c
	return nil
}

func (s *InMemoryStore) GetKeyPair(ctx context.Context, ownerID string) (*StoredKeyPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, ok := s.keys[ownerID]
	if !ok {
		return nil, fmt.Errorf("%w: key pair for '%s'", ErrNotFound, ownerID)
	}
	c := *pair
	return &c, nil
}

func (s *InMemoryStore) Close() error { return nil }

// FixedClock is a Clock that only moves when told to.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock returns a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// NewTestCrypto creates a Crypto over the default group with a random master
// key and an in-memory store.
func NewTestCrypto(opts ...Option) (*Crypto, error) {
	key := make([]byte, MasterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate test master key: %w", err)
	}
	cfg := Config{MasterKeyHex: hex.EncodeToString(key), LogLevel: "error"}
	opts = append([]Option{WithLogger(NewNopLogger())}, opts...)
	crypto, err := NewCrypto(context.Background(), cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create test crypto: %w", err)
	}
	return crypto, nil
}
