package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDefaultParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault("proj-1")))
	require.NoError(t, err)
	assert.Equal(t, "proj-1", cfg.Project.ID)
	assert.Contains(t, cfg.Deliverables.Catalog, "design")
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingConfigHint(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rd project config init")
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reviewdesk.yml")
	require.NoError(t, os.WriteFile(path, []byte(GenerateDefault("proj-2")), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "proj-2", cfg.Project.ID)

	same, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Project.ID, same.Project.ID)
}
