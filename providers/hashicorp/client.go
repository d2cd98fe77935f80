package hashicorp

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/vault/api"
	"github.com/krathor2212/medcrypt"
)

// ClientConfig selects the Vault server and credentials.
type ClientConfig struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
	Token     string `yaml:"-"`
	RoleID    string `yaml:"role_id"`
	SecretID  string `yaml:"-"`
}

// ClientConfigFromEnvironment reads the standard VAULT_* variables.
func ClientConfigFromEnvironment() ClientConfig {
	return ClientConfig{
		Address:   os.Getenv("VAULT_ADDR"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Token:     os.Getenv("VAULT_TOKEN"),
		RoleID:    os.Getenv("VAULT_ROLE_ID"),
		SecretID:  os.Getenv("VAULT_SECRET_ID"),
	}
}

// NewClient creates an authenticated Vault client. A token is used directly;
// otherwise RoleID and SecretID are exchanged for one through AppRole.
func NewClient(ctx context.Context, cfg ClientConfig) (*api.Client, error) {
	config := api.DefaultConfig()
	if cfg.Address != "" {
		config.Address = cfg.Address
	}
	if config.Address == "" {
		return nil, fmt.Errorf("%w: vault address is required", medcrypt.ErrInvalidConfiguration)
	}
	config.HttpClient.Transport = &http.Transport{Proxy: http.ProxyFromEnvironment}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Vault client: %w", medcrypt.ErrInvalidConfiguration, err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if cfg.Token != "" {
		client.SetToken(cfg.Token)
		return client, nil
	}

	if cfg.RoleID != "" && cfg.SecretID != "" {
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]any{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: AppRole login failed: %w", medcrypt.ErrDatabaseUnavailable, err)
		}
		if resp == nil || resp.Auth == nil {
			return nil, fmt.Errorf("%w: AppRole login returned no token", medcrypt.ErrInvalidConfiguration)
		}
		client.SetToken(resp.Auth.ClientToken)
		return client, nil
	}

	return nil, fmt.Errorf("%w: no Vault authentication configured (set VAULT_TOKEN or VAULT_ROLE_ID and VAULT_SECRET_ID)",
		medcrypt.ErrInvalidConfiguration)
}
