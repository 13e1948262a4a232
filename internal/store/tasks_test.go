package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/taskbrew/internal/models"
)

func TestInsertTaskTx_Validation(t *testing.T) {
	db := newTestDB(t)

	err := Transact(db, func(tx *sql.Tx) error {
		_, err := InsertTaskTx(tx, InsertTaskParams{ID: "DEV-001", AssignedTo: "developer", Status: models.TaskStatusPending})
		return err
	})
	require.ErrorContains(t, err, "title is required")

	err = Transact(db, func(tx *sql.Tx) error {
		_, err := InsertTaskTx(tx, InsertTaskParams{ID: "DEV-001", Title: "x", AssignedTo: "developer", Status: models.TaskStatusInProgress})
		return err
	})
	require.ErrorContains(t, err, "must be pending or blocked")
}

func TestInsertTaskTx_DefaultsPriorityToMedium(t *testing.T) {
	db := newTestDB(t)
	task := seedTask(t, db, "DEV-001", func(p *InsertTaskParams) { p.Priority = "" })
	assert.Equal(t, models.PriorityMedium, task.Priority)
}

func TestGetTask_LoadsDependencies(t *testing.T) {
	db := newTestDB(t)
	seedTask(t, db, "DEV-001", nil)
	seedTask(t, db, "DEV-002", nil)
	seedTask(t, db, "QA-001", func(p *InsertTaskParams) {
		p.AssignedTo = "qa"
		p.Status = models.TaskStatusBlocked
	})
	addDep(t, db, "QA-001", "DEV-001")
	addDep(t, db, "QA-001", "DEV-002")

	task, err := GetTask(db, "QA-001")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"DEV-001", "DEV-002"}, task.BlockedBy)
}

func TestGetTask_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := GetTask(db, "DEV-999")
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindTaskNotFound))
}

func TestCompleteTaskTx_OnlyFromInProgress(t *testing.T) {
	db := newTestDB(t)
	seedTask(t, db, "DEV-001", nil)

	// Pending task cannot be completed.
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		ok, err := CompleteTaskTx(tx, "DEV-001", "out", "2026-01-02 10:00:00")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	require.NotNil(t, claimNext(t, db, "developer", "developer-1"))

	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		ok, err := CompleteTaskTx(tx, "DEV-001", "out", "2026-01-02 10:05:00")
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	}))

	// Duplicate completion is a no-op.
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		ok, err := CompleteTaskTx(tx, "DEV-001", "other", "2026-01-02 10:06:00")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	task, err := GetTask(db, "DEV-001")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
	assert.Equal(t, "out", task.OutputText)
	require.NotNil(t, task.CompletedAt)
}

func TestRejectTaskTx_RecordsReason(t *testing.T) {
	db := newTestDB(t)
	seedTask(t, db, "DEV-001", nil)

	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		ok, err := RejectTaskTx(tx, "DEV-001", "missing error handling", "2026-01-02 10:00:00")
		require.NoError(t, err)
		require.True(t, ok)
		return nil
	}))

	task, err := GetTask(db, "DEV-001")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusRejected, task.Status)
	assert.Equal(t, "missing error handling", task.RejectionReason)
}

func TestRetryTaskTx_ClearsClaim(t *testing.T) {
	db := newTestDB(t)
	seedTask(t, db, "DEV-001", nil)

	require.NotNil(t, claimNext(t, db, "developer", "developer-1"))
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		ok, err := FailTaskTx(tx, "DEV-001", "2026-01-02 10:05:00")
		require.True(t, ok)
		return err
	}))

	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		ok, err := RetryTaskTx(tx, "DEV-001")
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	}))

	task, err := GetTask(db, "DEV-001")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Empty(t, task.ClaimedBy)
	assert.Nil(t, task.CompletedAt)
}

func TestRetryTaskTx_RefusesCompleted(t *testing.T) {
	db := newTestDB(t)
	seedTask(t, db, "DEV-001", nil)

	require.NotNil(t, claimNext(t, db, "developer", "developer-1"))
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		_, err := CompleteTaskTx(tx, "DEV-001", "", "2026-01-02 10:05:00")
		return err
	}))

	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		ok, err := RetryTaskTx(tx, "DEV-001")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestReassignTaskTx_PendingOnly(t *testing.T) {
	db := newTestDB(t)
	seedTask(t, db, "DEV-001", nil)
	seedTask(t, db, "DEV-002", nil)

	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		ok, err := ReassignTaskTx(tx, "DEV-001", "qa")
		require.NoError(t, err)
		assert.True(t, ok)
		return nil
	}))

	claimed := claimNext(t, db, "developer", "developer-1")
	require.NotNil(t, claimed)
	require.Equal(t, "DEV-002", claimed.ID)

	// In-progress tasks cannot be reassigned.
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		ok, err := ReassignTaskTx(tx, "DEV-002", "qa")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestCancelPendingChildrenTx(t *testing.T) {
	db := newTestDB(t)
	seedTask(t, db, "DEV-001", nil)
	seedTask(t, db, "QA-001", func(p *InsertTaskParams) {
		p.AssignedTo = "qa"
		p.ParentID = "DEV-001"
	})
	seedTask(t, db, "QA-002", func(p *InsertTaskParams) {
		p.AssignedTo = "qa"
		p.ParentID = "DEV-001"
		p.Status = models.TaskStatusBlocked
	})

	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		cancelled, err := CancelPendingChildrenTx(tx, "DEV-001", "2026-01-02 10:00:00")
		require.NoError(t, err)
		assert.Equal(t, []string{"QA-001"}, cancelled)
		return nil
	}))

	assert.Equal(t, models.TaskStatusCancelled, mustStatus(t, db, "QA-001"))
	assert.Equal(t, models.TaskStatusBlocked, mustStatus(t, db, "QA-002"))
}

func TestParentChainTx(t *testing.T) {
	db := newTestDB(t)
	seedTask(t, db, "GOAL-001", func(p *InsertTaskParams) { p.AssignedTo = "coordinator" })
	seedTask(t, db, "DEV-001", func(p *InsertTaskParams) { p.ParentID = "GOAL-001" })
	seedTask(t, db, "QA-001", func(p *InsertTaskParams) {
		p.AssignedTo = "qa"
		p.ParentID = "DEV-001"
	})

	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		chain, err := ParentChainTx(tx, "QA-001")
		require.NoError(t, err)
		require.Len(t, chain, 2)
		assert.Equal(t, "DEV-001", chain[0].ID)
		assert.Equal(t, "GOAL-001", chain[1].ID)
		return nil
	}))
}
