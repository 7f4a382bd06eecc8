package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInit(t *testing.T) {
	t.Run("writes default config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "skillscout.json")
		out, err := runCommand(t, "config", "init", path)
		require.NoError(t, err)
		assert.Contains(t, out, path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "embedding_model")
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "skillscout.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

		_, err := runCommand(t, "config", "init", path)
		require.Error(t, err)

		_, err = runCommand(t, "config", "init", path, "--force")
		assert.NoError(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "skillscout.json")
		_, err := runCommand(t, "config", "init", path)
		require.NoError(t, err)

		out, err := runCommand(t, "config", "validate", path)
		require.NoError(t, err)
		assert.Contains(t, out, "is valid")
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "skillscout.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"default_top_k": 0}`), 0o644))

		_, err := runCommand(t, "config", "validate", path)
		assert.Error(t, err)
	})
}
