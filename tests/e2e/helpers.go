package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/grovetools/tend/pkg/fs"
	"github.com/grovetools/tend/pkg/harness"
)

// findLiveBinary finds the live binary under test.
// It relies on the Makefile putting the local ./bin directory on PATH.
func findLiveBinary() (string, error) {
	path, err := exec.LookPath("live")
	if err != nil {
		return "", fmt.Errorf("could not find 'live' binary in PATH. Ensure 'make test-e2e' is used")
	}
	return path, nil
}

// freeAddr reserves a loopback port and releases it for the hub to bind.
func freeAddr() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	addr := ln.Addr().String()
	return addr, ln.Close()
}

// hubProcess is a `live serve --memory --seed` running for one scenario.
type hubProcess struct {
	cmd    *exec.Cmd
	seeded map[string][]string
	done   chan error
}

// startHub writes a project live.yml pointing at a fresh port, starts the
// hub in projectDir and waits until it has printed its seeded resources.
// The harness only runs long-lived processes inside tmux, so the hub is
// driven through os/exec.
func startHub(ctx *harness.Context, projectDir string) (*hubProcess, error) {
	bin, err := findLiveBinary()
	if err != nil {
		return nil, err
	}
	addr, err := freeAddr()
	if err != nil {
		return nil, err
	}
	if err := fs.CreateDir(projectDir); err != nil {
		return nil, err
	}
	liveYAML := fmt.Sprintf("version: \"1.0\"\napi_url: http://%s\n", addr)
	if err := fs.WriteString(filepath.Join(projectDir, "live.yml"), liveYAML); err != nil {
		return nil, err
	}

	cmd := exec.Command(bin, "serve", "--memory", "--seed", "--listen", addr)
	cmd.Dir = projectDir
	cmd.Env = append(os.Environ(), "HOME="+ctx.HomeDir())
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting hub: %w", err)
	}

	h := &hubProcess{cmd: cmd, seeded: make(map[string][]string), done: make(chan error, 1)}
	ready := make(chan struct{})
	go func(ready chan struct{}) {
		scanner := bufio.NewScanner(stdout)
		want := -1
		for scanner.Scan() {
			line := scanner.Text()
			if i := strings.Index(line, "Seeded "); i >= 0 {
				fmt.Sscanf(line[i:], "Seeded %d resources", &want)
				continue
			}
			fields := strings.Fields(line)
			if want > 0 && len(fields) == 2 && strings.HasSuffix(fields[0], ":") {
				kind := strings.TrimSuffix(fields[0], ":")
				h.seeded[kind] = append(h.seeded[kind], fields[1])
				if want--; want == 0 {
					close(ready)
					ready = nil
				}
			}
		}
		if ready != nil {
			close(ready)
		}
		h.done <- cmd.Wait()
	}(ready)

	select {
	case <-ready:
	case <-time.After(10 * time.Second):
		h.stop()
		return nil, fmt.Errorf("hub did not print its seeded resources within 10s")
	}
	if len(h.seeded) == 0 {
		h.stop()
		return nil, fmt.Errorf("hub exited before seeding")
	}
	return h, nil
}

// first returns the first seeded uuid of a resource type.
func (h *hubProcess) first(kind string) (string, error) {
	uuids := h.seeded[kind]
	if len(uuids) == 0 {
		return "", fmt.Errorf("hub seeded no %s", kind)
	}
	return uuids[0], nil
}

// stop interrupts the hub and waits for its graceful shutdown.
func (h *hubProcess) stop() error {
	if h.cmd.Process == nil {
		return nil
	}
	_ = h.cmd.Process.Signal(syscall.SIGINT)
	select {
	case <-h.done:
		return nil
	case <-time.After(10 * time.Second):
		_ = h.cmd.Process.Kill()
		return fmt.Errorf("hub ignored SIGINT for 10s")
	}
}
