package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectify/live/errors"
)

func TestLoadFromBytes(t *testing.T) {
	t.Setenv("LIVE_TEST_HOST", "api.example.com")

	cfg, err := LoadFromBytes([]byte(`
version: "1.0"
api_url: https://${LIVE_TEST_HOST}
ws_path: /ws
connection:
  ping_interval: 15s
  request_timeout: 2s
retry:
  initial_interval: 250ms
  max_elapsed_time: 1m
logging:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.APIURL)
	assert.Equal(t, 15*time.Second, cfg.Connection.PingInterval.Std())
	assert.Equal(t, 2*time.Second, cfg.Connection.RequestTimeout.Std())
	assert.Equal(t, DefaultWriteTimeout, cfg.Connection.WriteTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialInterval.Std())
	assert.Equal(t, time.Minute, cfg.Retry.MaxElapsedTime.Std())
	assert.True(t, cfg.IsInteractive())
	assert.Contains(t, cfg.Extensions, "logging")
}

func TestLoadFromTOML(t *testing.T) {
	cfg, err := LoadFromTOML([]byte(`
version = "1.0"
api_url = "http://localhost:9000"
interactive = false

[retry]
multiplier = 2.0

[logging]
level = "warn"
`))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.APIURL)
	assert.False(t, cfg.IsInteractive())
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, DefaultWSPath, cfg.WSPath)

	var logCfg struct {
		Level string `yaml:"level"`
	}
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	assert.Equal(t, "warn", logCfg.Level)
}

func TestLoadFromBytesRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		code errors.ErrorCode
	}{
		{name: "not yaml", data: "version: [", code: errors.ErrCodeConfigInvalid},
		{name: "bad duration", data: "connection:\n  write_timeout: soon\n", code: errors.ErrCodeConfigInvalid},
		{name: "bad scheme", data: "api_url: ftp://host\n", code: errors.ErrCodeConfigValidation},
		{name: "relative ws path", data: "ws_path: ws\n", code: errors.ErrCodeConfigValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.data))
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
		})
	}
}

func TestLoadFromMergesGlobalAndProject(t *testing.T) {
	home := t.TempDir()
	t.Setenv("LIVE_HOME", home)

	globalDir := filepath.Join(home, "config")
	require.NoError(t, os.MkdirAll(globalDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "live.yml"), []byte(`
api_url: http://global:8000
retry:
  multiplier: 3
logging:
  level: error
`), 0644))

	project := t.TempDir()
	nested := filepath.Join(project, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(project, "live.yml"), []byte(`
api_url: http://project:8000
interactive: false
`), 0644))

	cfg, err := LoadFrom(nested)
	require.NoError(t, err)

	assert.Equal(t, "http://project:8000", cfg.APIURL)
	assert.Equal(t, 3.0, cfg.Retry.Multiplier)
	assert.False(t, cfg.IsInteractive())
	assert.Contains(t, cfg.Extensions, "logging")
}

func TestFindConfigFileNotFound(t *testing.T) {
	t.Setenv("LIVE_HOME", t.TempDir())
	_, err := FindConfigFile(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, DefaultVersion, cfg.Version)
	assert.Equal(t, DefaultAPIURL, cfg.APIURL)
	assert.Equal(t, DefaultWSPath, cfg.WSPath)
	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultPingInterval, cfg.Connection.PingInterval)
	assert.Equal(t, Duration(0), cfg.Connection.RequestTimeout)
	assert.True(t, cfg.IsInteractive())
}

func TestUnmarshalExtensionMissingKey(t *testing.T) {
	cfg := &Config{}
	var target struct {
		Level string `yaml:"level"`
	}
	assert.NoError(t, cfg.UnmarshalExtension("logging", &target))
	assert.Empty(t, target.Level)
}
