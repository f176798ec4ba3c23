// Package vault loads the venue API credentials from HashiCorp Vault so
// they never have to live in the config file.
package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"

	"upbit-trading-bot/config"
)

// Credentials is the venue key pair stored in Vault.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Client wraps the Vault API client for the KV v2 secrets engine.
type Client struct {
	client *api.Client
	config config.VaultConfig
}

// NewClient creates a Vault client. A disabled config yields a client
// whose LoadCredentials always fails, so callers can wire it
// unconditionally and fall back to config-file keys.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// IsEnabled returns whether Vault is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// LoadCredentials reads the venue key pair from the configured KV v2 path.
func (c *Client) LoadCredentials(ctx context.Context) (Credentials, error) {
	if !c.config.Enabled {
		return Credentials{}, fmt.Errorf("vault is disabled")
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return Credentials{}, fmt.Errorf("no credentials at vault path %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return Credentials{}, fmt.Errorf("invalid secret format at vault path %s", path)
	}

	creds := Credentials{
		AccessKey: getString(data, "access_key"),
		SecretKey: getString(data, "secret_key"),
	}
	if creds.AccessKey == "" || creds.SecretKey == "" {
		return Credentials{}, fmt.Errorf("incomplete credentials at vault path %s", path)
	}
	return creds, nil
}

// Health checks the Vault connection.
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
