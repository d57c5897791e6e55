// Package pidfile records the pid of a running `live serve` hub.
package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/pkg/process"
)

// Acquire writes the current pid to path. It fails when the file names a
// process that is still alive; a stale file is replaced.
func Acquire(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create pid directory").WithDetail("path", path)
	}

	if pid, err := Read(path); err == nil {
		if process.IsProcessAlive(pid) && pid != os.Getpid() {
			return errors.New(errors.ErrCodeInvalidInput, "hub already running").WithDetail("pid", pid)
		}
		_ = os.Remove(path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write pid file").WithDetail("path", path)
	}
	return nil
}

// Release removes the pid file. A missing file is not an error.
func Release(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Read returns the pid stored in path.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(content)))
}

// IsRunning reports whether the process named by the pid file is alive.
func IsRunning(path string) (bool, int, error) {
	pid, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return process.IsProcessAlive(pid), pid, nil
}
