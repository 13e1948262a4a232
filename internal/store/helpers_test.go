package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/taskbrew/internal/models"
)

// newTestDB opens an isolated in-memory database with migrations applied.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDBWithPath(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// seedTask inserts a task with sensible defaults, overridable via mutate.
func seedTask(t *testing.T, db *sql.DB, id string, mutate func(*InsertTaskParams)) *models.Task {
	t.Helper()
	p := InsertTaskParams{
		ID:         id,
		Title:      "task " + id,
		TaskType:   "implementation",
		Priority:   models.PriorityMedium,
		AssignedTo: "developer",
		CreatedBy:  "coordinator",
		Status:     models.TaskStatusPending,
	}
	if mutate != nil {
		mutate(&p)
	}
	var task *models.Task
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		created, err := InsertTaskTx(tx, p)
		if err != nil {
			return err
		}
		task = created
		return nil
	}))
	return task
}

// seedGroup inserts an active group.
func seedGroup(t *testing.T, db *sql.DB, id, title string) *models.Group {
	t.Helper()
	var group *models.Group
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		g, err := InsertGroupTx(tx, id, title, "goal: "+title, "coordinator")
		if err != nil {
			return err
		}
		group = g
		return nil
	}))
	return group
}

// addDep records that taskID is blocked by blockerID.
func addDep(t *testing.T, db *sql.DB, taskID, blockerID string) {
	t.Helper()
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		return InsertDependencyTx(tx, taskID, blockerID, "2026-01-02 10:00:00")
	}))
}

// setCreatedAt backdates a task's created_at for ordering tests.
func setCreatedAt(t *testing.T, db *sql.DB, taskID, ts string) {
	t.Helper()
	_, err := db.Exec(`UPDATE tasks SET created_at = ? WHERE id = ?`, ts, taskID)
	require.NoError(t, err)
}

// claimNext claims the next task for role as instanceID.
func claimNext(t *testing.T, db *sql.DB, role, instanceID string) *models.Task {
	t.Helper()
	var claimed *models.Task
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		task, err := ClaimNextTaskTx(tx, role, instanceID, "2026-01-02 10:00:00")
		if err != nil {
			return err
		}
		claimed = task
		return nil
	}))
	return claimed
}

// mustStatus reads a task's current status directly.
func mustStatus(t *testing.T, db *sql.DB, taskID string) models.TaskStatus {
	t.Helper()
	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM tasks WHERE id = ?`, taskID).Scan(&status))
	return models.TaskStatus(status)
}
