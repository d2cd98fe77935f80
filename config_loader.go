package medcrypt

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LoadConfigFromEnvironment loads configuration from MEDCRYPT_* environment
// variables and returns a validated Config.
//
// Recognised variables:
//   - MEDCRYPT_GROUP, MEDCRYPT_MODULUS_HEX, MEDCRYPT_GENERATOR
//   - MEDCRYPT_SINGLE_BLOCK_THRESHOLD
//   - MEDCRYPT_MASTER_KEY, or MEDCRYPT_MASTER_PASSPHRASE with MEDCRYPT_MASTER_SALT
//   - MEDCRYPT_DB_PATH, MEDCRYPT_DB_FILENAME, MEDCRYPT_WORKERS
//   - MEDCRYPT_LOG_LEVEL, MEDCRYPT_LOG_FORMAT
func LoadConfigFromEnvironment() (Config, error) {
	cfg, err := ConfigFromEnvironment()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ConfigFromEnvironment reads the same variables as LoadConfigFromEnvironment
// without validating, for callers that fill the master key from elsewhere.
func ConfigFromEnvironment() (Config, error) {
	cfg := Config{
		Group:            os.Getenv(EnvGroup),
		ModulusHex:       os.Getenv(EnvModulusHex),
		Generator:        os.Getenv(EnvGenerator),
		MasterKeyHex:     os.Getenv(EnvMasterKey),
		MasterPassphrase: os.Getenv(EnvMasterPassphrase),
		MasterSaltHex:    os.Getenv(EnvMasterSalt),
		DBPath:           getEnvOrDefault(EnvDBPath, DefaultDBPath),
		DBFilename:       getEnvOrDefault(EnvDBFilename, DefaultDBFilename),
		LogLevel:         getEnvOrDefault(EnvLogLevel, DefaultLogLevel),
		LogFormat:        getEnvOrDefault(EnvLogFormat, DefaultLogFormat),
	}

	var err error
	if cfg.SingleBlockThreshold, err = getEnvInt(EnvSingleBlockThreshold); err != nil {
		return Config{}, err
	}
	if cfg.Workers, err = getEnvInt(EnvWorkers); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML configuration file and validates it.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: failed to parse config file: %v", ErrInvalidConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// getEnvOrDefault returns the value of an environment variable, or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got '%s'", ErrInvalidConfiguration, key, value)
	}
	return n, nil
}
