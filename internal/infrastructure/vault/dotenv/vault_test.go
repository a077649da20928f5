package dotenv_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/mongo-odm/internal/core/vault"
	"github.com/unifiedui/mongo-odm/internal/infrastructure/vault/dotenv"
)

func writeSecrets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVault_GetSecret(t *testing.T) {
	path := writeSecrets(t, "MONGO_PASSWORD_SECRET=from-file\nREDIS_SECRET=file-redis\n")
	t.Setenv("REDIS_SECRET", "from-env")

	v, err := dotenv.NewVault(path)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("file value", func(t *testing.T) {
		value, err := v.GetSecret(ctx, "vault://MONGO_PASSWORD_SECRET")
		require.NoError(t, err)
		assert.Equal(t, "from-file", value)
	})

	t.Run("environment wins over file", func(t *testing.T) {
		value, err := v.GetSecret(ctx, "vault://REDIS_SECRET")
		require.NoError(t, err)
		assert.Equal(t, "from-env", value)
	})

	t.Run("bare key", func(t *testing.T) {
		value, err := v.GetSecret(ctx, "MONGO_PASSWORD_SECRET")
		require.NoError(t, err)
		assert.Equal(t, "from-file", value)
	})

	t.Run("missing", func(t *testing.T) {
		value, err := v.GetSecret(ctx, "vault://NOT_THERE")
		assert.Error(t, err)
		assert.Empty(t, value)
		assert.Contains(t, err.Error(), "secret not found")
	})

	t.Run("empty reference", func(t *testing.T) {
		_, err := v.GetSecret(ctx, vault.ReferencePrefix)
		assert.Error(t, err)
	})

	assert.NoError(t, v.Ping(ctx))
	assert.NoError(t, v.Close())
}

func TestNewVault_MissingFile(t *testing.T) {
	_, err := dotenv.NewVault(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	t.Setenv("ODM_TEST_URI", "mongodb://user:secret@db:27017")
	v, err := dotenv.NewVault("")
	require.NoError(t, err)
	ctx := context.Background()

	value, err := vault.Resolve(ctx, v, "vault://ODM_TEST_URI")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://user:secret@db:27017", value)

	value, err = vault.Resolve(ctx, v, "mongodb://localhost:27017")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://localhost:27017", value)
}
