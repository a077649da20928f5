package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, 180*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "mongodb", cfg.DocDB.Type)
	assert.Equal(t, "odm", cfg.DocDB.Database)
	assert.Equal(t, "fs", cfg.DocDB.FileBucket)
	assert.Zero(t, cfg.DocDB.QueryCacheDuration)
	assert.Empty(t, cfg.DocDB.Collections)
	assert.Equal(t, 1, cfg.Log.BatchSize)
	assert.Equal(t, VaultConfig{Type: "dotenv"}, cfg.Vault)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CACHE_TYPE", "none")
	t.Setenv("MONGODB_DATABASE", "shop")
	t.Setenv("MONGODB_WRITE_CONCERN_W", "majority")
	t.Setenv("MONGODB_WRITE_CONCERN_J", "true")
	t.Setenv("MONGODB_WRITE_CONCERN_TIMEOUT_MS", "1500")
	t.Setenv("DOCDB_QUERY_CACHE_SECONDS", "30")
	t.Setenv("DOCDB_ENABLE_PROFILING", "true")
	t.Setenv("DOCDB_COLLECTIONS", "users, orders,,")
	t.Setenv("DOCDB_VERSIONED_COLLECTIONS", "orders")
	t.Setenv("DOCDB_UNIQUE_ATTRIBUTES", "users.email,users.login,orders.number,bad")
	t.Setenv("LOG_COLLECTION", "log")
	t.Setenv("LOG_BATCH_SIZE", "20")
	t.Setenv("VAULT_TYPE", "none")
	t.Setenv("VAULT_SECRETS_FILE", "/run/secrets/odm.env")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "none", cfg.Cache.Type)
	assert.Equal(t, "shop", cfg.DocDB.Database)
	assert.Equal(t, "majority", cfg.DocDB.WriteConcernW)
	assert.True(t, cfg.DocDB.WriteConcernJournal)
	assert.Equal(t, 1500*time.Millisecond, cfg.DocDB.WriteConcernTimeout)
	assert.Equal(t, 30*time.Second, cfg.DocDB.QueryCacheDuration)
	assert.True(t, cfg.DocDB.EnableProfiling)
	assert.Equal(t, VaultConfig{Type: "none", File: "/run/secrets/odm.env"}, cfg.Vault)
	assert.Equal(t, []string{"users", "orders"}, cfg.DocDB.Collections)
	assert.Equal(t, "log", cfg.Log.Collection)
	assert.Equal(t, 20, cfg.Log.BatchSize)

	assert.True(t, cfg.DocDB.IsVersioned("orders"))
	assert.False(t, cfg.DocDB.IsVersioned("users"))

	assert.Equal(t, []string{"email", "login"}, cfg.DocDB.UniqueFields("users"))
	assert.Equal(t, []string{"number"}, cfg.DocDB.UniqueFields("orders"))
	assert.Nil(t, cfg.DocDB.UniqueFields("bad"))
}

func TestLoad_InvalidTypes(t *testing.T) {
	t.Run("cache", func(t *testing.T) {
		t.Setenv("CACHE_TYPE", "memcached")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("docdb", func(t *testing.T) {
		t.Setenv("DOCDB_TYPE", "dynamo")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("vault", func(t *testing.T) {
		t.Setenv("VAULT_TYPE", "azure")
		_, err := Load()
		assert.Error(t, err)
	})
}
