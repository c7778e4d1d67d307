package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"git.fiblab.net/sim/ptal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, "Lelylijn_sc1", cfg.Layers.SAPs[0].Name)
	assert.Equal(t, 3000.0, cfg.Layers.SAPs[0].Radius)
	assert.Equal(t, 80.0, cfg.Access.WalkSpeed)
}

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "ptal.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := config.Load(writeFile(t, `
layers:
  saps:
    - name: bushaltes
      radius: 800
    - name: Lelylijn_sc1
      radius: 3000
access:
  walkSpeed: 75
`))
	require.NoError(t, err)
	require.Len(t, cfg.Layers.SAPs, 2)
	assert.Equal(t, "bushaltes", cfg.Layers.SAPs[0].Name)
	assert.Equal(t, 75.0, cfg.Access.WalkSpeed)
	// 未覆盖的保持默认值
	assert.Equal(t, 300.0, cfg.Access.CycleSpeed)
	assert.Equal(t, "POI", cfg.Layers.POI)
}

func TestLoadInvalid(t *testing.T) {
	_, err := config.Load(writeFile(t, `
layers:
  saps:
    - name: x
      radius: 0
`))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, "access: [1, 2"))
	assert.Error(t, err)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
