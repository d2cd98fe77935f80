package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/krathor2212/medcrypt"
	"github.com/krathor2212/medcrypt/internal/health"
)

// session holds the flags every store-backed command shares.
type session struct {
	configPath string
	envFile    string
}

func newFlagSet(a *app, name string) (*flag.FlagSet, *session) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	s := &session{}
	fs.StringVar(&s.configPath, "config", "medcrypt.yaml", "Path to configuration file")
	fs.StringVar(&s.envFile, "env", ".env", "Path to .env file")
	return fs, s
}

func (s *session) open(ctx context.Context) (*medcrypt.Crypto, func(), error) {
	fc, err := loadConfig(s.configPath, s.envFile)
	if err != nil {
		return nil, nil, err
	}
	return open(ctx, fc)
}

func (s *session) openBackends(ctx context.Context) (*backends, error) {
	fc, err := loadConfig(s.configPath, s.envFile)
	if err != nil {
		return nil, err
	}
	return openBackends(ctx, fc)
}

func required(fs *flag.FlagSet, names ...string) error {
	for _, name := range names {
		if fs.Lookup(name).Value.String() == "" {
			return fmt.Errorf("-%s is required", name)
		}
	}
	return nil
}

func paramsCommand(ctx context.Context, a *app, args []string) error {
	fs, s := newFlagSet(a, "params")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, closeFn, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	p := c.Params()
	fmt.Fprintf(a.stdout, "modulus bits:           %d\n", p.Bits())
	fmt.Fprintf(a.stdout, "generator:              %s\n", p.G())
	fmt.Fprintf(a.stdout, "max block bytes:        %d\n", p.MaxBlockBytes())
	fmt.Fprintf(a.stdout, "key size:               %d\n", p.KeySize())
	fmt.Fprintf(a.stdout, "single block threshold: %d\n", c.Files().SingleBlockThreshold())
	return nil
}

func keygenCommand(ctx context.Context, a *app, args []string) error {
	fs, s := newFlagSet(a, "keygen")
	owner := fs.String("owner", "", "Owner ID")
	role := fs.String("role", medcrypt.RolePatient, "Role: patient or doctor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "owner"); err != nil {
		return err
	}
	c, closeFn, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	priv, err := c.Keys().Register(ctx, *owner, *role)
	if err != nil {
		return err
	}
	pub, err := c.Params().SerializePublicKey(&priv.PublicKey)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "registered %s %s\n", *role, *owner)
	fmt.Fprintf(a.stdout, "public key: %s\n", hex.EncodeToString(pub))
	return nil
}

func encryptCommand(ctx context.Context, a *app, args []string) error {
	fs, s := newFlagSet(a, "encrypt")
	owner := fs.String("owner", "", "Patient ID owning the file")
	in := fs.String("in", "", "Plaintext file to encrypt")
	mime := fs.String("mime", "application/octet-stream", "MIME type recorded with the file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "owner", "in"); err != nil {
		return err
	}
	data, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	c, closeFn, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	pub, err := c.Keys().PublicKey(ctx, *owner)
	if err != nil {
		return err
	}
	file, err := c.StoreFile(ctx, medcrypt.FileInput{OwnerID: *owner, MimeType: *mime, Data: data}, pub)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "%s\n", file.ID)
	return nil
}

func decryptCommand(ctx context.Context, a *app, args []string) error {
	fs, s := newFlagSet(a, "decrypt")
	owner := fs.String("owner", "", "Patient ID owning the file")
	fileID := fs.String("file", "", "File ID")
	doctor := fs.String("as", "", "Decrypt as this doctor through their grant")
	out := fs.String("out", "", "Output path (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "owner", "file"); err != nil {
		return err
	}
	c, closeFn, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	var priv *medcrypt.PrivateKey
	if *doctor != "" {
		doctorKey, err := c.Keys().Load(ctx, *doctor)
		if err != nil {
			return err
		}
		if priv, err = c.Access().RecoverFor(ctx, *owner, *doctor, doctorKey); err != nil {
			return err
		}
	} else if priv, err = c.Keys().Load(ctx, *owner); err != nil {
		return err
	}

	data, err := c.OpenFile(ctx, *owner, *fileID, priv)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = a.stdout.Write(data)
		return err
	}
	return os.WriteFile(*out, data, 0600)
}

func listCommand(ctx context.Context, a *app, args []string) error {
	fs, s := newFlagSet(a, "list")
	owner := fs.String("owner", "", "Patient ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "owner"); err != nil {
		return err
	}
	c, closeFn, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	files, err := c.ListFiles(ctx, *owner)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Fprintf(a.stdout, "%s\t%s\t%d\t%s\t%s\n",
			f.ID, f.Payload.Kind, f.OriginalSize, f.MimeType, f.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func grantCommand(ctx context.Context, a *app, args []string) error {
	fs, s := newFlagSet(a, "grant")
	patient := fs.String("patient", "", "Patient ID")
	doctor := fs.String("doctor", "", "Doctor ID")
	days := fs.Int("days", 0, "Days until the grant expires (0 never expires)")
	by := fs.String("by", "", "Actor recorded in the audit log (default the patient)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "patient", "doctor"); err != nil {
		return err
	}
	c, closeFn, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	patientKey, err := c.Keys().Load(ctx, *patient)
	if err != nil {
		return err
	}
	doctorKey, err := c.Keys().PublicKey(ctx, *doctor)
	if err != nil {
		return err
	}
	g, err := c.Access().Grant(ctx, medcrypt.GrantRequest{
		PatientID:     *patient,
		DoctorID:      *doctor,
		PatientKey:    patientKey,
		DoctorKey:     doctorKey,
		ExpiresInDays: *days,
		PerformedBy:   *by,
	})
	if err != nil {
		return err
	}
	expires := "never"
	if g.ExpiresAt != nil {
		expires = g.ExpiresAt.Format(time.RFC3339)
	}
	fmt.Fprintf(a.stdout, "granted %s access to %s (grant %s, expires %s)\n", *doctor, *patient, g.ID, expires)
	return nil
}

func recoverCommand(ctx context.Context, a *app, args []string) error {
	fs, s := newFlagSet(a, "recover")
	patient := fs.String("patient", "", "Patient ID")
	doctor := fs.String("doctor", "", "Doctor ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "patient", "doctor"); err != nil {
		return err
	}
	c, closeFn, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	doctorKey, err := c.Keys().Load(ctx, *doctor)
	if err != nil {
		return err
	}
	priv, err := c.Access().RecoverFor(ctx, *patient, *doctor, doctorKey)
	if err != nil {
		return err
	}
	stored, err := c.Keys().PublicKey(ctx, *patient)
	if err != nil {
		return err
	}
	if priv.Y.Cmp(stored.Y) != 0 {
		return fmt.Errorf("%w: recovered key does not match %s's public key", medcrypt.ErrIntegrity, *patient)
	}
	fmt.Fprintf(a.stdout, "%s can recover %s's private key\n", *doctor, *patient)
	return nil
}

func revokeCommand(ctx context.Context, a *app, args []string) error {
	fs, s := newFlagSet(a, "revoke")
	patient := fs.String("patient", "", "Patient ID")
	doctor := fs.String("doctor", "", "Doctor ID")
	by := fs.String("by", "", "Actor recorded in the audit log (default the patient)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(fs, "patient", "doctor"); err != nil {
		return err
	}
	c, closeFn, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := c.Access().Revoke(ctx, *patient, *doctor, *by); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "revoked %s's access to %s\n", *doctor, *patient)
	return nil
}

func auditCommand(ctx context.Context, a *app, args []string) error {
	fs, s := newFlagSet(a, "audit")
	patient := fs.String("patient", "", "List entries for this patient")
	doctor := fs.String("doctor", "", "List entries for this doctor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*patient == "") == (*doctor == "") {
		return fmt.Errorf("exactly one of -patient or -doctor is required")
	}
	c, closeFn, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	var entries []medcrypt.AuditEntry
	if *patient != "" {
		entries, err = c.Audit().ListForPatient(ctx, *patient)
	} else {
		entries, err = c.Audit().ListForDoctor(ctx, *doctor)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.stdout)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func healthCommand(ctx context.Context, a *app, args []string) error {
	fs, s := newFlagSet(a, "health")
	if err := fs.Parse(args); err != nil {
		return err
	}
	b, err := s.openBackends(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	checker := health.NewChecker("medcrypt", medcrypt.Version)
	checks := []*health.Check{
		health.PingCheck("sqlite", true, b.store.Ping),
		health.BreakerCheck(b.store.Breaker()),
	}
	if b.files != nil {
		checks = append(checks, health.PingCheck("s3", true, b.files.Ping), health.BreakerCheck(b.files.Breaker()))
	}
	if b.vault != nil {
		checks = append(checks, health.PingCheck("vault", false, b.vault.Ping), health.BreakerCheck(b.vault.Breaker()))
	}
	for _, check := range checks {
		if err := checker.Register(check); err != nil {
			return err
		}
	}

	report := checker.Run(ctx)
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Status == health.StatusUnhealthy {
		return fmt.Errorf("%w: backends are unhealthy", medcrypt.ErrDatabaseUnavailable)
	}
	return nil
}

func versionCommand(ctx context.Context, a *app, args []string) error {
	fmt.Fprintln(a.stdout, medcrypt.VersionInfo())
	fmt.Fprintln(a.stdout, "ElGamal file encryption with AES-256-GCM key delegation")
	return nil
}
