// Package daemon provides helpers for running the agent as a
// background process: PID file bookkeeping, the shared log file, and
// process control.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/capydeploy/agent/internal/config"
)

// PIDPath returns the path to the PID file.
func PIDPath() string {
	return filepath.Join(config.Dir(), "agent.pid")
}

// LogPath returns the path to the background daemon's log file.
func LogPath() string {
	return filepath.Join(config.Dir(), "agent.log")
}

// WritePID writes the given PID to the PID file.
func WritePID(pid int) error {
	return writePID(PIDPath(), pid)
}

func writePID(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o600)
}

// ReadPID reads the PID from the PID file. Returns 0 when no PID file
// exists.
func ReadPID() (int, error) {
	return readPID(PIDPath())
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// RemovePID removes the PID file. A missing file is not an error.
func RemovePID() error {
	err := os.Remove(PIDPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// OpenLogFile opens or creates the daemon log file for appending.
func OpenLogFile() (*os.File, error) {
	path := LogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}
