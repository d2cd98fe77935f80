package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/krathor2212/medcrypt"
	"github.com/krathor2212/medcrypt/providers/hashicorp"
	s3bucket "github.com/krathor2212/medcrypt/providers/s3"
	"github.com/krathor2212/medcrypt/providers/sqlite"
)

// fileConfig is the medcrypt.yaml layout: the library config plus optional
// S3 and Vault sections.
type fileConfig struct {
	medcrypt.Config `yaml:",inline"`

	S3    *s3bucket.Config `yaml:"s3"`
	Vault *vaultConfig     `yaml:"vault"`
}

// vaultConfig loads the master key from Vault KV v2 under Alias. Credentials
// come from VAULT_TOKEN or VAULT_ROLE_ID/VAULT_SECRET_ID.
type vaultConfig struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
	Alias     string `yaml:"alias"`
}

// loadConfig reads envFile (if present) into the environment, then the YAML
// file at path (if present). Without a file the MEDCRYPT_* variables are used.
func loadConfig(path, envFile string) (*fileConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err := medcrypt.ConfigFromEnvironment()
		if err != nil {
			return nil, err
		}
		return &fileConfig{Config: cfg}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	fc := &fileConfig{}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config file: %v", medcrypt.ErrInvalidConfiguration, err)
	}
	if fc.MasterKeyHex == "" && fc.MasterPassphrase == "" {
		fc.MasterKeyHex = os.Getenv(medcrypt.EnvMasterKey)
	}
	if fc.DBPath == "" {
		fc.DBPath = medcrypt.DefaultDBPath
	}
	if fc.DBFilename == "" {
		fc.DBFilename = medcrypt.DefaultDBFilename
	}
	return fc, nil
}

// backends is everything a command may talk to. files and vault are nil
// when their sections are absent from the config.
type backends struct {
	crypto *medcrypt.Crypto
	store  *sqlite.Store
	files  *s3bucket.FileStore
	vault  *hashicorp.KVStore
}

func (b *backends) Close() {
	b.crypto.Close()
	b.store.Close()
}

// open builds a Crypto backed by sqlite, with S3 file storage and a Vault
// master key when configured. The returned func releases everything.
func open(ctx context.Context, fc *fileConfig) (*medcrypt.Crypto, func(), error) {
	b, err := openBackends(ctx, fc)
	if err != nil {
		return nil, nil, err
	}
	return b.crypto, b.Close, nil
}

func openBackends(ctx context.Context, fc *fileConfig) (*backends, error) {
	b := &backends{}
	cfg := fc.Config
	if fc.Vault != nil && fc.Vault.Alias != "" {
		clientCfg := hashicorp.ClientConfigFromEnvironment()
		if fc.Vault.Address != "" {
			clientCfg.Address = fc.Vault.Address
		}
		if fc.Vault.Namespace != "" {
			clientCfg.Namespace = fc.Vault.Namespace
		}
		client, err := hashicorp.NewClient(ctx, clientCfg)
		if err != nil {
			return nil, err
		}
		b.vault = hashicorp.NewKVStore(client)
		key, err := b.vault.EnsureMasterKey(ctx, fc.Vault.Alias)
		if err != nil {
			return nil, err
		}
		cfg.MasterKey = key
		cfg.MasterKeyHex = ""
		cfg.MasterPassphrase = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, err := sqlite.Open(cfg.DatabaseFile())
	if err != nil {
		return nil, err
	}
	b.store = store

	opts := []medcrypt.Option{medcrypt.WithStore(store)}
	if fc.S3 != nil && fc.S3.Bucket != "" {
		if b.files, err = s3bucket.New(ctx, *fc.S3); err != nil {
			store.Close()
			return nil, err
		}
		opts = append(opts, medcrypt.WithFileStore(b.files))
	}

	if b.crypto, err = medcrypt.NewCrypto(ctx, cfg, opts...); err != nil {
		store.Close()
		return nil, err
	}
	return b, nil
}
