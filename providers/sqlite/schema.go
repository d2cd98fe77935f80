package sqlite

// Timestamps are stored as UTC unix nanoseconds so ordering is numeric.
const schema = `
	CREATE TABLE IF NOT EXISTS encrypted_files (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		original_size INTEGER NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('single', 'chunked')),
		blocks BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_encrypted_files_owner ON encrypted_files(owner_id, created_at);

	CREATE TABLE IF NOT EXISTS authorization_grants (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		doctor_id TEXT NOT NULL,
		encrypted_aes_key BLOB NOT NULL,
		iv BLOB NOT NULL,
		auth_tag BLOB NOT NULL,
		encrypted_private_key BLOB NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		authorized_at INTEGER NOT NULL,
		expires_at INTEGER,
		updated_at INTEGER NOT NULL,
		UNIQUE (patient_id, doctor_id)
	);

	CREATE INDEX IF NOT EXISTS idx_authorization_grants_doctor ON authorization_grants(doctor_id);

	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		grant_id TEXT NOT NULL,
		patient_id TEXT NOT NULL,
		doctor_id TEXT NOT NULL,
		action TEXT NOT NULL CHECK (action IN ('granted', 'revoked')),
		performed_by TEXT NOT NULL,
		old_active BOOLEAN NOT NULL,
		new_active BOOLEAN NOT NULL,
		old_expires_at INTEGER,
		new_expires_at INTEGER,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_patient ON audit_log(patient_id, timestamp, seq);
	CREATE INDEX IF NOT EXISTS idx_audit_log_doctor ON audit_log(doctor_id, timestamp, seq);

	CREATE TRIGGER IF NOT EXISTS audit_log_no_update BEFORE UPDATE ON audit_log
	BEGIN
		SELECT RAISE(ABORT, 'audit_log is append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS audit_log_no_delete BEFORE DELETE ON audit_log
	BEGIN
		SELECT RAISE(ABORT, 'audit_log is append-only');
	END;

	CREATE TABLE IF NOT EXISTS key_pairs (
		owner_id TEXT PRIMARY KEY,
		role TEXT NOT NULL CHECK (role IN ('patient', 'doctor')),
		public_key BLOB NOT NULL,
		sealed_private_key BLOB NOT NULL,
		created_at INTEGER NOT NULL
	);
`
