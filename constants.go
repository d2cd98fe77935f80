package medcrypt

import "github.com/krathor2212/medcrypt/internal/elgamal"

// Environment variable names
const (
	// EnvGroup selects a named group ("modp2048" or "modp3072").
	EnvGroup = "MEDCRYPT_GROUP"

	// EnvModulusHex and EnvGenerator describe a custom group. They take
	// precedence over EnvGroup when EnvModulusHex is set.
	EnvModulusHex = "MEDCRYPT_MODULUS_HEX"
	EnvGenerator  = "MEDCRYPT_GENERATOR"

	// EnvSingleBlockThreshold is the largest file size, in bytes, stored as one block.
	EnvSingleBlockThreshold = "MEDCRYPT_SINGLE_BLOCK_THRESHOLD"

	// EnvMasterKey is the hex-encoded 32-byte master key sealing private keys at rest.
	EnvMasterKey = "MEDCRYPT_MASTER_KEY"

	// EnvMasterPassphrase and EnvMasterSalt derive the master key with Argon2id
	// when EnvMasterKey is not set. The salt is hex-encoded.
	EnvMasterPassphrase = "MEDCRYPT_MASTER_PASSPHRASE"
	EnvMasterSalt       = "MEDCRYPT_MASTER_SALT"

	EnvDBPath     = "MEDCRYPT_DB_PATH"
	EnvDBFilename = "MEDCRYPT_DB_FILENAME"
	EnvWorkers    = "MEDCRYPT_WORKERS"
	EnvLogLevel   = "MEDCRYPT_LOG_LEVEL"
	EnvLogFormat  = "MEDCRYPT_LOG_FORMAT"
)

// Default values
const (
	// DefaultGroup is RFC 3526 group 14 (2048-bit MODP).
	DefaultGroup = elgamal.GroupMODP2048

	// DefaultSingleBlockThreshold keeps small files in a single ciphertext block.
	DefaultSingleBlockThreshold = 200

	DefaultDBPath     = ".medcrypt"
	DefaultDBFilename = "medcrypt.db"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
)

// MasterKeySize is the required master key length in bytes.
const MasterKeySize = 32

// Roles a stored key pair can hold.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

// Audit actions
const (
	AuditActionGranted = "granted"
	AuditActionRevoked = "revoked"
)
