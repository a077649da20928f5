// Package dotenv provides a dotenv-based vault implementation.
package dotenv

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/unifiedui/mongo-odm/internal/core/vault"
)

// Vault implements the vault.Vault interface using environment variables,
// falling back to the values of a dotenv file.
type Vault struct {
	// values holds the entries read from the secrets file
	values map[string]string
}

// NewVault creates a Vault. An empty file means environment variables only.
func NewVault(file string) (*Vault, error) {
	values := map[string]string{}
	if file != "" {
		var err error
		if values, err = godotenv.Read(file); err != nil {
			return nil, fmt.Errorf("failed to read secrets file: %w", err)
		}
	}
	return &Vault{values: values}, nil
}

// GetSecret resolves "vault://KEY" (or a bare KEY) from the environment, then
// from the secrets file.
func (v *Vault) GetSecret(ctx context.Context, uri string) (string, error) {
	key := strings.TrimPrefix(uri, vault.ReferencePrefix)
	if key == "" {
		return "", fmt.Errorf("empty secret reference")
	}

	// First check environment variables
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	// Then check the secrets file
	if value, ok := v.values[key]; ok {
		return value, nil
	}

	return "", fmt.Errorf("secret not found: %s", key)
}

// Ping checks if the vault is available (always returns nil for dotenv).
func (v *Vault) Ping(ctx context.Context) error {
	return nil
}

// Close closes the vault (no-op for dotenv).
func (v *Vault) Close() error {
	return nil
}
