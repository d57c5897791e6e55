package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveHomeWins(t *testing.T) {
	root := t.TempDir()
	t.Setenv("LIVE_HOME", root)
	t.Setenv("XDG_CONFIG_HOME", "/ignored")

	assert.Equal(t, filepath.Join(root, "config"), ConfigDir())
	assert.Equal(t, filepath.Join(root, "state", "logs"), LogDir())
	assert.Equal(t, filepath.Join(root, "state", "hub.pid"), PidFilePath())
	assert.Equal(t, filepath.Join(root, "data", "hub"), HubDataDir())
}

func TestXDGOverrides(t *testing.T) {
	t.Setenv("LIVE_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg/config")
	t.Setenv("XDG_STATE_HOME", "/xdg/state")

	assert.Equal(t, "/xdg/config/live", ConfigDir())
	assert.Equal(t, "/xdg/state/live", StateDir())
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	t.Setenv("LIVE_HOME", root)

	require.NoError(t, EnsureDirs())
	for _, dir := range []string{ConfigDir(), DataDir(), StateDir(), CacheDir(), LogDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
