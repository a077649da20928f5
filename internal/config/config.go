// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server ServerConfig
	Cache  CacheConfig
	DocDB  DocDBConfig
	Log    LogConfig
	Vault  VaultConfig
}

// VaultConfig holds secret store configuration. Values of MONGODB_URI and
// REDIS_PASSWORD written as "vault://NAME" are read from the vault.
type VaultConfig struct {
	Type string
	File string
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host        string
	Port        int
	GinMode     string
	CORSOrigins []string
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig holds query cache configuration.
type CacheConfig struct {
	Type      string
	Host      string
	Port      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// DocDBConfig holds document database and ODM configuration.
type DocDBConfig struct {
	Type     string
	URI      string
	Database string

	WriteConcernW       string
	WriteConcernJournal bool
	WriteConcernTimeout time.Duration

	EnableProfiling bool
	// QueryCacheDuration enables result caching for every query when positive.
	QueryCacheDuration time.Duration

	// Collections exposed through the HTTP API.
	Collections []string
	// VersionedCollections use optimistic concurrency on update.
	VersionedCollections []string
	// UniqueAttributes lists "collection.attribute" pairs validated as unique.
	UniqueAttributes []string
	// FileBucket is the GridFS bucket prefix.
	FileBucket string
}

// IsVersioned reports whether collection is configured as versioned.
func (c DocDBConfig) IsVersioned(collection string) bool {
	for _, name := range c.VersionedCollections {
		if name == collection {
			return true
		}
	}
	return false
}

// UniqueFields returns the attributes of collection that must be unique.
func (c DocDBConfig) UniqueFields(collection string) []string {
	var fields []string
	for _, entry := range c.UniqueAttributes {
		name, attr, ok := strings.Cut(entry, ".")
		if ok && name == collection && attr != "" {
			fields = append(fields, attr)
		}
	}
	return fields
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
	// Collection, when set, also stores log entries in this collection.
	Collection string
	// BatchSize is the number of log entries stored per insert.
	BatchSize int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvAsInt("SERVER_PORT", 8080),
			GinMode:     getEnv("GIN_MODE", "debug"),
			CORSOrigins: getEnvAsList("CORS_ALLOW_ORIGINS", []string{"http://localhost:3000"}),
		},
		Cache: CacheConfig{
			Type:      getEnv("CACHE_TYPE", "redis"),
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnv("REDIS_PORT", "6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			TTL:       time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 180)) * time.Second,
			KeyPrefix: getEnv("CACHE_KEY_PREFIX", ""),
		},
		DocDB: DocDBConfig{
			Type:                 getEnv("DOCDB_TYPE", "mongodb"),
			URI:                  getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:             getEnv("MONGODB_DATABASE", "odm"),
			WriteConcernW:        getEnv("MONGODB_WRITE_CONCERN_W", ""),
			WriteConcernJournal:  getEnvAsBool("MONGODB_WRITE_CONCERN_J", false),
			WriteConcernTimeout:  time.Duration(getEnvAsInt("MONGODB_WRITE_CONCERN_TIMEOUT_MS", 0)) * time.Millisecond,
			EnableProfiling:      getEnvAsBool("DOCDB_ENABLE_PROFILING", false),
			QueryCacheDuration:   time.Duration(getEnvAsInt("DOCDB_QUERY_CACHE_SECONDS", 0)) * time.Second,
			Collections:          getEnvAsList("DOCDB_COLLECTIONS", nil),
			VersionedCollections: getEnvAsList("DOCDB_VERSIONED_COLLECTIONS", nil),
			UniqueAttributes:     getEnvAsList("DOCDB_UNIQUE_ATTRIBUTES", nil),
			FileBucket:           getEnv("DOCDB_FILE_BUCKET", "fs"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Collection: getEnv("LOG_COLLECTION", ""),
			BatchSize:  getEnvAsInt("LOG_BATCH_SIZE", 1),
		},
		Vault: VaultConfig{
			Type: getEnv("VAULT_TYPE", "dotenv"),
			File: getEnv("VAULT_SECRETS_FILE", ""),
		},
	}

	switch cfg.Cache.Type {
	case "redis", "none":
	default:
		return nil, fmt.Errorf("unsupported CACHE_TYPE %q", cfg.Cache.Type)
	}
	switch cfg.DocDB.Type {
	case "mongodb", "cosmosdb":
	default:
		return nil, fmt.Errorf("unsupported DOCDB_TYPE %q", cfg.DocDB.Type)
	}
	switch cfg.Vault.Type {
	case "dotenv", "none":
	default:
		return nil, fmt.Errorf("unsupported VAULT_TYPE %q", cfg.Vault.Type)
	}

	return cfg, nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated environment variable.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
