package medcrypt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hengadev/errsx"
	"github.com/krathor2212/medcrypt/internal/monitoring"
)

// Config holds the configuration for creating a Crypto instance.
//
// The struct only carries data. It can be filled from code, from the
// environment (LoadConfigFromEnvironment) or from a YAML file (LoadConfigFile)
// and is passed explicitly to NewCrypto.
//
// Exactly one master key source is required:
//   - MasterKey: raw 32 bytes, typically loaded from Vault by the caller
//   - MasterKeyHex: the same key hex-encoded
//   - MasterPassphrase + MasterSaltHex: derived with Argon2id
//
// Example usage:
//
//	cfg := medcrypt.Config{
//	    Group:        "modp2048",
//	    MasterKeyHex: os.Getenv("MEDCRYPT_MASTER_KEY"),
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// Group names an RFC 3526 group. Ignored when ModulusHex is set.
	// Default: modp2048
	Group string `yaml:"group"`

	// ModulusHex and Generator define a custom group. Generator accepts
	// decimal or 0x-prefixed hexadecimal; it defaults to 2.
	ModulusHex string `yaml:"modulus_hex"`
	Generator  string `yaml:"generator"`

	// SingleBlockThreshold is the largest file stored as one ciphertext
	// block. It must not exceed the group's MaxBlockBytes.
	// Default: 200, capped at the group's MaxBlockBytes
	SingleBlockThreshold int `yaml:"single_block_threshold"`

	MasterKey        []byte        `yaml:"-"`
	MasterKeyHex     string        `yaml:"master_key_hex"`
	MasterPassphrase string        `yaml:"master_passphrase"`
	MasterSaltHex    string        `yaml:"master_salt_hex"`
	Argon2Params     *Argon2Params `yaml:"argon2"`

	// DBPath and DBFilename locate the sqlite database used by the CLI and
	// by callers that open providers/sqlite from this config.
	DBPath     string `yaml:"db_path"`
	DBFilename string `yaml:"db_filename"`

	// Workers sizes the encryption worker pool. Zero means runtime.NumCPU().
	Workers int `yaml:"workers"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Validate checks the configuration and applies defaults to optional fields.
// Field problems are collected and reported together, wrapped in
// ErrInvalidConfiguration.
func (c *Config) Validate() error {
	c.applyDefaults()

	errs := errsx.Map{}

	if c.ModulusHex == "" {
		switch strings.ToLower(c.Group) {
		case "modp2048", "modp3072":
		default:
			errs.Set("group", fmt.Errorf("unknown group '%s'", c.Group))
		}
	}
	if c.SingleBlockThreshold < 0 {
		errs.Set("single_block_threshold", fmt.Errorf("single_block_threshold must not be negative, got %d", c.SingleBlockThreshold))
	}
	if c.Workers < 0 {
		errs.Set("workers", fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}

	sources := 0
	if len(c.MasterKey) > 0 {
		sources++
		if len(c.MasterKey) != MasterKeySize {
			errs.Set("master_key", fmt.Errorf("master_key must be %d bytes, got %d", MasterKeySize, len(c.MasterKey)))
		}
	}
	if c.MasterKeyHex != "" {
		sources++
	}
	if c.MasterPassphrase != "" {
		sources++
		if c.MasterSaltHex == "" {
			errs.Set("master_salt_hex", fmt.Errorf("master_salt_hex is required with master_passphrase"))
		}
		if err := c.Argon2Params.Validate(); err != nil {
			errs.Set("argon2", err)
		}
	}
	switch {
	case sources == 0:
		errs.Set("master_key", fmt.Errorf("one of master_key, master_key_hex or master_passphrase is required"))
	case sources > 1:
		errs.Set("master_key", fmt.Errorf("only one master key source may be set, got %d", sources))
	}

	if _, err := monitoring.ParseLevel(c.LogLevel); err != nil {
		errs.Set("log_level", err)
	}
	if _, err := monitoring.ParseFormat(c.LogFormat); err != nil {
		errs.Set("log_format", err)
	}

	if err := errs.AsError(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.Generator == "" {
		c.Generator = "2"
	}
	if c.SingleBlockThreshold == 0 {
		c.SingleBlockThreshold = DefaultSingleBlockThreshold
	}
	if c.Argon2Params == nil {
		c.Argon2Params = DefaultArgon2Params()
	}
	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	if c.DBFilename == "" {
		c.DBFilename = DefaultDBFilename
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

// DomainParameters builds and validates the group described by the config.
func (c *Config) DomainParameters() (*DomainParameters, error) {
	if c.ModulusHex != "" {
		generator := c.Generator
		if generator == "" {
			generator = "2"
		}
		return NewDomainParameters(c.ModulusHex, generator)
	}
	group := c.Group
	if group == "" {
		group = DefaultGroup
	}
	return NamedDomainParameters(group)
}

// DatabaseFile returns the sqlite file path.
func (c *Config) DatabaseFile() string {
	return filepath.Join(c.DBPath, c.DBFilename)
}

// logger builds the structured logger described by LogLevel and LogFormat,
// writing to stderr. Invalid values fall back to defaults; Validate reports them.
func (c *Config) logger() *monitoring.StructuredLogger {
	level, _ := monitoring.ParseLevel(c.LogLevel)
	format, _ := monitoring.ParseFormat(c.LogFormat)
	return monitoring.NewStructuredLogger(monitoring.LoggerConfig{
		Level:     level,
		Format:    format,
		Output:    os.Stderr,
		Component: "medcrypt",
	})
}
