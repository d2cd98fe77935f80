package cryptoerr

// Action labels the operation an error was raised from.
type Action int8

const (
	Unknown Action = iota
	Encrypt
	Decrypt
	Wrap
	Unwrap
	KeyGen
	Grant
	Recover
	Revoke
)

func (a Action) String() string {
	actions := map[Action]string{
		Unknown: "unknown",
		Encrypt: "encrypt",
		Decrypt: "decrypt",
		Wrap:    "wrap",
		Unwrap:  "unwrap",
		KeyGen:  "key generation",
		Grant:   "grant",
		Recover: "recover",
		Revoke:  "revoke",
	}

	if str, ok := actions[a]; ok {
		return str
	}
	return "unknown"
}
