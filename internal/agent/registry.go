// Package agent runs the worker side of the system: instance registration,
// the poll/claim/execute loop, and prompt assembly for the external runner.
package agent

import (
	"database/sql"
	"sync"

	"github.com/dotcommander/taskbrew/internal/clock"
	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

// InstanceManager tracks registered agent instances. Persistent state lives
// in the store; the administrative pause flag is in-memory only and resets
// on restart.
type InstanceManager struct {
	store *store.Store
	clock clock.Clock

	mu          sync.RWMutex
	pausedRoles map[string]bool
}

// NewInstanceManager wires an instance manager.
func NewInstanceManager(st *store.Store, clk clock.Clock) *InstanceManager {
	if clk == nil {
		clk = clock.Real{}
	}
	return &InstanceManager{
		store:       st,
		clock:       clk,
		pausedRoles: make(map[string]bool),
	}
}

func (m *InstanceManager) now() string {
	return store.FormatTime(m.clock.Now())
}

// Register inserts (or resets) an instance as idle.
func (m *InstanceManager) Register(instanceID, role string, autoSpawned bool) error {
	return m.store.Transact(func(tx *sql.Tx) error {
		return store.RegisterInstanceTx(tx, instanceID, role, m.now(), autoSpawned)
	})
}

// Heartbeat refreshes an instance's liveness timestamp.
func (m *InstanceManager) Heartbeat(instanceID string) error {
	return m.store.Transact(func(tx *sql.Tx) error {
		return store.HeartbeatInstanceTx(tx, instanceID, m.now())
	})
}

// UpdateStatus sets an instance's status and current task.
func (m *InstanceManager) UpdateStatus(instanceID string, status models.InstanceStatus, currentTask string) error {
	return m.store.Transact(func(tx *sql.Tx) error {
		return store.UpdateInstanceStatusTx(tx, instanceID, status, currentTask, m.now())
	})
}

// Remove deletes an instance registration.
func (m *InstanceManager) Remove(instanceID string) error {
	return m.store.Transact(func(tx *sql.Tx) error {
		return store.RemoveInstanceTx(tx, instanceID)
	})
}

// List returns instances, optionally filtered by role.
func (m *InstanceManager) List(role string) ([]*models.AgentInstance, error) {
	return store.ListInstances(m.store.Reader(), role)
}

// Get returns one instance.
func (m *InstanceManager) Get(instanceID string) (*models.AgentInstance, error) {
	return store.GetInstance(m.store.Reader(), instanceID)
}

// PauseRole pauses claiming for every instance of a role.
func (m *InstanceManager) PauseRole(role string) {
	m.mu.Lock()
	m.pausedRoles[role] = true
	m.mu.Unlock()
}

// ResumeRole lifts an administrative pause.
func (m *InstanceManager) ResumeRole(role string) {
	m.mu.Lock()
	delete(m.pausedRoles, role)
	m.mu.Unlock()
}

// IsRolePaused reports whether a role is administratively paused.
func (m *InstanceManager) IsRolePaused(role string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pausedRoles[role]
}

// PausedRoles returns the currently paused role names.
func (m *InstanceManager) PausedRoles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.pausedRoles))
	for role := range m.pausedRoles {
		out = append(out, role)
	}
	return out
}

// CountByRole returns the number of non-stopped instances of a role.
func (m *InstanceManager) CountByRole(role string) (int, error) {
	var count int
	err := m.store.Transact(func(tx *sql.Tx) error {
		n, err := store.CountInstancesByRoleTx(tx, role)
		count = n
		return err
	})
	return count, err
}
