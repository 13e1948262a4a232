package models

import (
	"encoding/json"
	"time"
)

// ID Strategy:
// - Groups and Tasks use sequence-backed string IDs ("PREFIX-NNN"); the
//   prefix identifies the owning role (or group type) and the integer part
//   is monotonic per prefix with no gaps below the high-water mark.
// - Events and usage rows use int64 auto-increment (append-only logs).

// TaskStatus represents the current state of a task.
type TaskStatus string

// Task status constants.
const (
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusRejected   TaskStatus = "rejected"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsTerminal returns true when no further transitions are possible
// without an explicit retry.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusRejected, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the status allows an explicit retry back to pending.
func (s TaskStatus) IsRetryable() bool {
	switch s {
	case TaskStatusFailed, TaskStatusRejected, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusBlocked, TaskStatusPending, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusRejected, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// AllTaskStatuses lists every task status in board-display order.
func AllTaskStatuses() []TaskStatus {
	return []TaskStatus{
		TaskStatusBlocked, TaskStatusPending, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusRejected, TaskStatusCancelled,
	}
}

// Priority is the scheduling priority of a task. Lower rank wins.
type Priority string

// Priority constants, highest first.
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank maps a priority to its integer order (critical=0 ... low=3).
// Unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() < 4
}

// GroupStatus represents the lifecycle state of a group.
type GroupStatus string

// Group status constants.
const (
	GroupStatusActive    GroupStatus = "active"
	GroupStatusCompleted GroupStatus = "completed"
)

// Group is a coordination unit tying together all tasks derived from one goal.
type Group struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Origin      string      `json:"origin"`
	Status      GroupStatus `json:"status"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// Task represents a unit of agent work.
type Task struct {
	ID              string     `json:"id"`
	GroupID         string     `json:"group_id,omitempty"`
	ParentID        string     `json:"parent_id,omitempty"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	TaskType        string     `json:"task_type"`
	Priority        Priority   `json:"priority"`
	AssignedTo      string     `json:"assigned_to"`
	ClaimedBy       string     `json:"claimed_by,omitempty"`
	Status          TaskStatus `json:"status"`
	CreatedBy       string     `json:"created_by"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	RevisionOf      string     `json:"revision_of,omitempty"`
	OutputText      string     `json:"output_text,omitempty"`
	BlockedBy       []string   `json:"blocked_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// IsClaimed returns true if the task has been claimed by an agent instance.
func (t *Task) IsClaimed() bool {
	return t.ClaimedBy != ""
}

// Dependency is an edge in the task DAG: Task is blocked by BlockedBy.
type Dependency struct {
	TaskID     string     `json:"task_id"`
	BlockedBy  string     `json:"blocked_by"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// InstanceStatus represents the runtime state of an agent worker instance.
type InstanceStatus string

// Instance status constants.
const (
	InstanceStatusIdle    InstanceStatus = "idle"
	InstanceStatusWorking InstanceStatus = "working"
	InstanceStatusPaused  InstanceStatus = "paused"
	InstanceStatusStopped InstanceStatus = "stopped"
)

// AgentInstance is a registered worker belonging to a role ("role-N").
type AgentInstance struct {
	InstanceID    string         `json:"instance_id"`
	Role          string         `json:"role"`
	Status        InstanceStatus `json:"status"`
	CurrentTask   string         `json:"current_task,omitempty"`
	AutoSpawned   bool           `json:"auto_spawned,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	LastHeartbeat time.Time      `json:"last_heartbeat"`
}

// Event is one append-only lifecycle record. Events are also fanned out
// in-memory via the bus; the persisted rows provide replay and audit.
type Event struct {
	ID        int64           `json:"id,omitempty"`
	Type      string          `json:"type"`
	TaskID    string          `json:"task_id,omitempty"`
	GroupID   string          `json:"group_id,omitempty"`
	AgentID   string          `json:"agent_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Usage holds per-task execution metrics reported by the LLM-CLI runner.
type Usage struct {
	ID           int64     `json:"id,omitempty"`
	TaskID       string    `json:"task_id"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	DurationSec  float64   `json:"duration_sec"`
	Turns        int       `json:"turns"`
	Model        string    `json:"model,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// WorkflowStep is one step of a stored workflow definition. Steps are
// created in order, each blocked by the previous one.
type WorkflowStep struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	TaskType    string   `json:"task_type"`
	AssignedTo  string   `json:"assigned_to"`
	Priority    Priority `json:"priority,omitempty"`
}

// Workflow is a stored, JSON-encoded sequence of steps.
type Workflow struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Steps     []WorkflowStep `json:"steps"`
	CreatedAt time.Time      `json:"created_at"`
}

// TaskTemplate is a reusable task skeleton with {key} placeholders in
// title and description.
type TaskTemplate struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	TaskType    string   `json:"task_type"`
	AssignedTo  string   `json:"assigned_to"`
	Priority    Priority `json:"priority,omitempty"`
}
