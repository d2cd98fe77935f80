// Package medcrypt encrypts patient medical files with ElGamal and lets a
// patient delegate decryption to a doctor through time-limited, revocable
// access grants backed by an append-only audit trail.
//
// # Architecture
//
// Files are encrypted directly with ElGamal over an RFC 3526 group. Small
// files (up to SingleBlockThreshold bytes) become one ciphertext block; larger
// files are split into chunks of at most MaxBlockBytes bytes that are encrypted
// independently and stored in order.
//
// Delegation is hybrid: the patient's serialized private key is wrapped with a
// fresh AES-256-GCM key, and that AES key is ElGamal-encrypted under the
// doctor's public key. The resulting bundle is stored as an AuthorizationGrant.
// A doctor recovers the patient key by decrypting the AES key and unwrapping.
// This is not proxy re-encryption: the doctor's process holds the patient key
// while it decrypts.
//
// # Quick Start
//
//	cfg := medcrypt.Config{MasterKeyHex: os.Getenv("MEDCRYPT_MASTER_KEY")}
//	mc, err := medcrypt.NewCrypto(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer mc.Close()
//
//	patient, _ := mc.Keys().Register(ctx, "patient-1", medcrypt.RolePatient)
//	doctor, _ := mc.Keys().Register(ctx, "doctor-7", medcrypt.RoleDoctor)
//
//	file, _ := mc.Files().EncryptFile(ctx, medcrypt.FileInput{
//	    OwnerID:  "patient-1",
//	    MimeType: "application/pdf",
//	    Data:     report,
//	}, &patient.PublicKey)
//
//	_, _ = mc.Access().Grant(ctx, medcrypt.GrantRequest{
//	    PatientID:     "patient-1",
//	    DoctorID:      "doctor-7",
//	    PatientKey:    patient,
//	    DoctorKey:     &doctor.PublicKey,
//	    ExpiresInDays: 30,
//	    PerformedBy:   "patient-1",
//	})
//
//	recovered, err := mc.Access().RecoverFor(ctx, "patient-1", "doctor-7", doctor)
//	plaintext, err := mc.Files().DecryptFile(ctx, file, recovered)
//
// # Errors
//
// Every failure wraps one of the sentinel errors (ErrDomainParameter,
// ErrKeyFormat, ErrBlockTooLarge, ErrIntegrity, ErrAccessDenied, ErrNotFound
// and the supporting ones) and can be tested with errors.Is. Access refusals
// are *AccessDeniedError values carrying a DenialReason.
//
// # Storage
//
// Grants, audit entries, key pairs and encrypted files are persisted through
// the interfaces in interfaces.go. InMemoryStore serves tests; the sqlite and
// s3 packages under providers/ serve deployments.
package medcrypt
