package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gourdian25/gourdianguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Run("Rotates The File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "auth.yaml")
		content := "access:\n  secret_key: old-access-secret-that-is-long-enough-1234\n" +
			"refresh:\n  secret_key: old-refresh-secret-that-is-long-enough-123\n" +
			"guards:\n  user:\n    identity_field: id\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		assert.Equal(t, 0, run([]string{"-config", path}))

		cfg, err := gourdianguard.LoadConfig(path)
		require.NoError(t, err)
		assert.Len(t, cfg.AccessToken.SecretKey, gourdianguard.GeneratedSecretLength)
		assert.NotEqual(t, cfg.AccessToken.SecretKey, cfg.RefreshToken.SecretKey)
	})

	t.Run("Missing File", func(t *testing.T) {
		assert.Equal(t, 1, run([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}))
	})

	t.Run("Unknown Flag", func(t *testing.T) {
		assert.Equal(t, 1, run([]string{"-bogus"}))
	})
}
