package configwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectify/live/config"
)

func writeConfig(t *testing.T, path, apiURL string) {
	t.Helper()
	data := []byte("version: \"1.0\"\napi_url: " + apiURL + "\n")
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestReloadOnChange(t *testing.T) {
	t.Setenv("LIVE_LOG_LEVEL", "error")
	dir := t.TempDir()
	path := filepath.Join(dir, "live.yml")
	writeConfig(t, path, "http://one.test")

	reloaded := make(chan *config.Config, 4)
	w, err := New(path, 20*time.Millisecond, func(cfg *config.Config) { reloaded <- cfg })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	writeConfig(t, path, "http://two.test")

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "http://two.test", cfg.APIURL)
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestInvalidChangeIsIgnored(t *testing.T) {
	t.Setenv("LIVE_LOG_LEVEL", "error")
	path := filepath.Join(t.TempDir(), "live.yml")
	writeConfig(t, path, "http://one.test")

	called := false
	w, err := New(path, time.Millisecond, func(*config.Config) { called = true })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("api_url: [unclosed"), 0644))
	w.reload()
	assert.False(t, called)
}
