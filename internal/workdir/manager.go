// Package workdir provisions an isolated working directory per task so
// concurrent agent processes can't see each other's files.
package workdir

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Manager creates and removes per-task directories under a fixed root.
type Manager struct {
	root string
}

// NewManager ensures root exists and returns a manager over it.
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workdir root %s: %w", root, err)
	}
	return &Manager{root: root}, nil
}

// Create makes a fresh directory for taskID and returns its path. An
// existing directory from a crashed previous run is wiped first.
func (m *Manager) Create(taskID string) (string, error) {
	dir := filepath.Join(m.root, taskID)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear stale workdir %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workdir %s: %w", dir, err)
	}
	return dir, nil
}

// Remove deletes the task's directory. Failures are logged, not returned;
// a leaked directory must never fail the task it belonged to.
func (m *Manager) Remove(taskID string) {
	dir := filepath.Join(m.root, taskID)
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("[Workdir] failed to remove %s: %v", dir, err)
	}
}
