package medcrypt

import (
	"context"
	"testing"
	"time"

	"github.com/krathor2212/medcrypt/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCrypto_RejectsThresholdAboveBlockSize(t *testing.T) {
	cfg := Config{MasterKeyHex: testMasterKeyHex, SingleBlockThreshold: 256, LogLevel: "error"}
	_, err := NewCrypto(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrDomainParameter)
	assert.True(t, IsConfigurationError(err))
}

// oakley1024 is the 1024-bit MODP group from RFC 2409.
const oakley1024 = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE65381FFFFFFFFFFFFFFFF"

func TestNewCrypto_SmallModulusCapsDefaultThreshold(t *testing.T) {
	ctx := context.Background()
	c, err := NewCrypto(ctx, Config{ModulusHex: oakley1024, MasterKeyHex: testMasterKeyHex, LogLevel: "error"})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, 1024, c.Params().Bits())
	assert.Equal(t, 127, c.Params().MaxBlockBytes())
	assert.Equal(t, 127, c.Files().SingleBlockThreshold())

	priv, err := c.NewKeyPairGenerator().Generate(ctx)
	require.NoError(t, err)
	for _, size := range []int{127, 128, 400} {
		data := make([]byte, size)
		file, err := c.Files().EncryptFile(ctx, FileInput{OwnerID: "p1", Data: data}, &priv.PublicKey)
		require.NoError(t, err)
		got, err := c.Files().DecryptFile(ctx, file, priv)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}

	_, err = NewCrypto(ctx, Config{ModulusHex: oakley1024, SingleBlockThreshold: 200, MasterKeyHex: testMasterKeyHex, LogLevel: "error"})
	assert.ErrorIs(t, err, ErrDomainParameter)
}

func TestNewCrypto_InvalidConfig(t *testing.T) {
	_, err := NewCrypto(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestNewCrypto_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCrypto(ctx, Config{MasterKeyHex: testMasterKeyHex, LogLevel: "error"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCrypto_PatientDoctorScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keys := env.crypto.Keys()

	patient, err := keys.Register(ctx, "patient-1", RolePatient)
	require.NoError(t, err)
	_, err = keys.Register(ctx, "doctor-1", RoleDoctor)
	require.NoError(t, err)

	data := randomBytes(t, 1500)
	file, err := env.crypto.StoreFile(ctx, FileInput{OwnerID: "patient-1", MimeType: "application/pdf", Data: data}, &patient.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, PayloadChunked, file.Payload.Kind)
	assert.Len(t, file.Payload.Blocks, 6)

	doctorPub, err := keys.PublicKey(ctx, "doctor-1")
	require.NoError(t, err)
	_, err = env.crypto.Access().Grant(ctx, GrantRequest{
		PatientID:     "patient-1",
		DoctorID:      "doctor-1",
		PatientKey:    patient,
		DoctorKey:     doctorPub,
		ExpiresInDays: 7,
	})
	require.NoError(t, err)

	env.clock.Advance(6 * 24 * time.Hour)
	doctor, err := keys.Load(ctx, "doctor-1")
	require.NoError(t, err)
	recovered, err := env.crypto.Access().RecoverFor(ctx, "patient-1", "doctor-1", doctor)
	require.NoError(t, err)

	stored, err := env.crypto.ListFiles(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	got, err := env.crypto.OpenFile(ctx, "patient-1", stored[0].ID, recovered)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	env.clock.Advance(24 * time.Hour)
	_, err = env.crypto.Access().RecoverFor(ctx, "patient-1", "doctor-1", doctor)
	requireDenied(t, err, DenialExpired)
}

func TestCrypto_OpenFileErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	priv := env.generate(t)

	file, err := env.crypto.StoreFile(ctx, FileInput{OwnerID: "p1", Data: []byte("lab results")}, &priv.PublicKey)
	require.NoError(t, err)

	_, err = env.crypto.OpenFile(ctx, "p2", file.ID, priv)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.crypto.OpenFile(ctx, "p1", "missing", priv)
	assert.ErrorIs(t, err, ErrNotFound)

	other := env.generate(t)
	_, err = env.crypto.OpenFile(ctx, "p1", file.ID, other)
	assert.ErrorIs(t, err, ErrIntegrity)
}

func TestInMemoryStore_PutFileRejectsExistingID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	priv := env.generate(t)

	file, err := env.crypto.StoreFile(ctx, FileInput{OwnerID: "alice", Data: []byte("scan")}, &priv.PublicKey)
	require.NoError(t, err)

	replacement := *file
	replacement.OwnerID = "mallory"
	assert.ErrorIs(t, env.store.PutFile(ctx, &replacement), ErrFileExists)

	got, err := env.crypto.OpenFile(ctx, "alice", file.ID, priv)
	require.NoError(t, err)
	assert.Equal(t, []byte("scan"), got)

	_, err = env.store.GetFile(ctx, "mallory", file.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	files, err := env.store.ListFiles(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestCrypto_ObservabilityHook(t *testing.T) {
	hook := &monitoring.RecordingObservabilityHook{}
	env := newTestEnv(t, WithObservabilityHook(hook))
	ctx := context.Background()
	patient, doctor := env.generate(t), env.generate(t)

	_, err := env.crypto.Access().Grant(ctx, GrantRequest{PatientID: "p1", DoctorID: "d1", PatientKey: patient, DoctorKey: &doctor.PublicKey})
	require.NoError(t, err)
	require.NoError(t, env.crypto.Access().Revoke(ctx, "p1", "d1", ""))
	_, err = env.crypto.Access().RecoverFor(ctx, "p1", "d1", doctor)
	require.Error(t, err)

	events := hook.Snapshot()
	var kinds []string
	for _, e := range events {
		kinds = append(kinds, e.Kind+":"+e.Operation)
	}
	assert.Equal(t, []string{
		"start:grant", "complete:grant",
		"start:revoke", "complete:revoke",
		"start:recover", "error:recover", "complete:recover",
	}, kinds)
	assert.ErrorIs(t, events[5].Err, ErrAccessDenied)
}

func TestCrypto_KeyOperationHook(t *testing.T) {
	hook := &monitoring.RecordingObservabilityHook{}
	env := newTestEnv(t, WithObservabilityHook(hook))
	ctx := context.Background()

	_, err := env.crypto.Keys().Register(ctx, "p1", RolePatient)
	require.NoError(t, err)
	_, err = env.crypto.Keys().Load(ctx, "p1")
	require.NoError(t, err)

	var keyOps []string
	for _, e := range hook.Snapshot() {
		if e.Kind == "key" {
			keyOps = append(keyOps, e.Operation)
		}
	}
	assert.Equal(t, []string{OpRegisterKey, OpLoadKey}, keyOps)
}

func TestWithOptions_RejectNil(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"logger", WithLogger(nil)},
		{"hook", WithObservabilityHook(nil)},
		{"clock", WithClock(nil)},
		{"random", WithRandom(nil)},
		{"store", WithStore(nil)},
		{"file store", WithFileStore(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTestCrypto(tt.opt)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}
}

func TestWithFileStore_SeparatesFiles(t *testing.T) {
	files := NewInMemoryStore()
	env := newTestEnv(t, WithFileStore(files))
	ctx := context.Background()
	priv := env.generate(t)

	file, err := env.crypto.StoreFile(ctx, FileInput{OwnerID: "p1", Data: []byte("x-ray")}, &priv.PublicKey)
	require.NoError(t, err)

	_, err = files.GetFile(ctx, "p1", file.ID)
	assert.NoError(t, err)
	_, err = env.store.GetFile(ctx, "p1", file.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
