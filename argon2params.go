package medcrypt

import (
	"fmt"

	"github.com/hengadev/errsx"
)

// Argon2Params defines the Argon2id parameters used to derive the master key
// from a passphrase.
type Argon2Params struct {
	Memory      uint32 `yaml:"memory"`
	Iterations  uint32 `yaml:"iterations"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length"`
}

// DefaultArgon2Params returns recommended parameters for Argon2id
func DefaultArgon2Params() *Argon2Params {
	return &Argon2Params{
		Memory:      64 * 1024, // 64MB
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   MasterKeySize,
	}
}

func (a *Argon2Params) GetMemory() uint32     { return a.Memory }
func (a *Argon2Params) GetIterations() uint32 { return a.Iterations }
func (a *Argon2Params) GetParallelism() uint8 { return a.Parallelism }
func (a *Argon2Params) GetKeyLength() uint32  { return a.KeyLength }

// Validate checks if the Argon2 parameters are within acceptable ranges
func (a *Argon2Params) Validate() error {
	errs := errsx.Map{}

	if a.Memory < 8192 {
		errs.Set("memory", fmt.Errorf("memory must be at least 8192 KiB, got %d", a.Memory))
	}
	if a.Iterations < 2 {
		errs.Set("iterations", fmt.Errorf("iterations must be at least 2, got %d", a.Iterations))
	}
	if a.Parallelism < 1 {
		errs.Set("parallelism", fmt.Errorf("parallelism must be at least 1, got %d", a.Parallelism))
	}
	if a.SaltLength < 16 {
		errs.Set("saltLength", fmt.Errorf("salt length must be at least 16 bytes, got %d", a.SaltLength))
	}
	if a.KeyLength != MasterKeySize {
		errs.Set("keyLength", fmt.Errorf("key length must be %d bytes, got %d", MasterKeySize, a.KeyLength))
	}

	return errs.AsError()
}
