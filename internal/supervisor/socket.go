package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
)

// SocketConfig describes where and how the per-child control-channel
// Unix domain sockets are created: one socket per child engine
// process, named by child index.
type SocketConfig struct {
	Dir         string `mapstructure:"dir"`
	Prefix      string `mapstructure:"prefix"`
	Permissions uint32 `mapstructure:"permissions"`
}

// SocketManager manages the control-channel socket files.
type SocketManager struct {
	dir         string
	prefix      string
	permissions os.FileMode
}

// NewSocketManager creates a new socket manager.
func NewSocketManager(cfg SocketConfig) *SocketManager {
	return &SocketManager{
		dir:         cfg.Dir,
		prefix:      cfg.Prefix,
		permissions: os.FileMode(cfg.Permissions),
	}
}

// PathForChild generates the control-channel socket path for a child
// index, per SPEC_FULL §3.1: <socket-dir>/<prefix>-<child_num>.sock.
func (sm *SocketManager) PathForChild(childIndex int) string {
	filename := fmt.Sprintf("%s-%d.sock", sm.prefix, childIndex)
	return filepath.Join(sm.dir, filename)
}

// CleanupSocket removes a socket file if it exists.
func (sm *SocketManager) CleanupSocket(socketPath string) error {
	if _, err := os.Stat(socketPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat socket file: %w", err)
	}
	if err := os.Remove(socketPath); err != nil {
		return fmt.Errorf("failed to remove socket file: %w", err)
	}
	return nil
}

// CleanupAllSockets removes every socket file matching this manager's
// prefix, called by the supervisor on startup to clear stale sockets
// from a prior crashed run.
func (sm *SocketManager) CleanupAllSockets() error {
	pattern := filepath.Join(sm.dir, fmt.Sprintf("%s-*.sock", sm.prefix))

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("failed to glob socket files: %w", err)
	}

	var lastErr error
	for _, socketPath := range matches {
		if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
			lastErr = fmt.Errorf("failed to remove socket %s: %w", socketPath, err)
		}
	}
	return lastErr
}

// EnsureSocketDir ensures the socket directory exists with proper
// permissions.
func (sm *SocketManager) EnsureSocketDir() error {
	if err := os.MkdirAll(sm.dir, 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	return nil
}
