// Package vault defines the secret store used to resolve connection credentials.
package vault

import (
	"context"
	"strings"
)

// ReferencePrefix marks a configuration value as a secret reference.
const ReferencePrefix = "vault://"

// Type represents the type of vault.
type Type string

const (
	// TypeDotEnv reads secrets from the environment and an optional dotenv file.
	TypeDotEnv Type = "dotenv"
	// TypeNone disables secret resolution.
	TypeNone Type = "none"
)

// Vault defines the read side of a secret store.
type Vault interface {
	// GetSecret retrieves a secret by reference.
	GetSecret(ctx context.Context, uri string) (string, error)

	// Ping checks if the vault is reachable.
	Ping(ctx context.Context) error

	// Close closes the vault.
	Close() error
}

// IsReference reports whether value names a secret instead of holding one.
func IsReference(value string) bool {
	return strings.HasPrefix(value, ReferencePrefix)
}

// Resolve returns value unchanged unless it is a secret reference, in which
// case the secret is read from v.
func Resolve(ctx context.Context, v Vault, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	return v.GetSecret(ctx, value)
}
