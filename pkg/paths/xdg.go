// Package paths resolves the XDG directories used by the live tool.
//
// Resolution order:
// 1. LIVE_HOME (portable root) → $LIVE_HOME/{config,data,state,cache}
// 2. XDG env vars → $XDG_*_HOME/live
// 3. Platform defaults → ~/.config/live, ~/.local/share/live, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "live"

// base resolves one XDG base directory. sub is the LIVE_HOME subdirectory,
// xdgVar the XDG override and fallback the path below the home directory.
func base(sub, xdgVar string, fallback ...string) string {
	if home := os.Getenv("LIVE_HOME"); home != "" {
		return filepath.Join(home, sub)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append(append([]string{homeDir}, fallback...), appName)...)
}

// ConfigDir holds the global live.yml.
func ConfigDir() string {
	return base("config", "XDG_CONFIG_HOME", ".config")
}

// DataDir holds persistent data such as the hub's leveldb store.
func DataDir() string {
	return base("data", "XDG_DATA_HOME", ".local", "share")
}

// StateDir holds runtime state: logs and the hub pid file.
func StateDir() string {
	return base("state", "XDG_STATE_HOME", ".local", "state")
}

// CacheDir holds regenerable data.
func CacheDir() string {
	return base("cache", "XDG_CACHE_HOME", ".cache")
}

// LogDir is where per-component log files are written by default.
func LogDir() string {
	state := StateDir()
	if state == "" {
		return ""
	}
	return filepath.Join(state, "logs")
}

// HubDataDir is the default leveldb location for `live serve`.
func HubDataDir() string {
	data := DataDir()
	if data == "" {
		return ""
	}
	return filepath.Join(data, "hub")
}

// PidFilePath returns the path to the hub PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "hub.pid")
}

// EnsureDirs creates all live directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), DataDir(), StateDir(), CacheDir(), LogDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
