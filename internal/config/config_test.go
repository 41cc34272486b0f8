package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PROCGUARD_DATABASE_URL",
		"PROCGUARD_IDENTITY_JWT_SECRET",
		"PROCGUARD_CHECKPOINT_MASTER_SECRET",
		"PROCGUARD_ENVIRONMENT",
	} {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_MissingDatabaseURLFails(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_SucceedsWithMandatoryFieldsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROCGUARD_DATABASE_URL", "postgres://localhost/procguard")
	t.Setenv("PROCGUARD_IDENTITY_JWT_SECRET", "secret")
	t.Setenv("PROCGUARD_CHECKPOINT_MASTER_SECRET", "master-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/procguard", cfg.Database.URL)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, uint32(5), cfg.Resilience.Availability.FailureThreshold)
}
