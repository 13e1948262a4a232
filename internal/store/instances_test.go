package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/taskbrew/internal/models"
)

func registerInstance(t *testing.T, db *sql.DB, instanceID, role, now string) {
	t.Helper()
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		return RegisterInstanceTx(tx, instanceID, role, now, false)
	}))
}

func TestRegisterInstanceTx_Upsert(t *testing.T) {
	db := newTestDB(t)

	registerInstance(t, db, "developer-1", "developer", "2026-01-02 10:00:00")

	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		return UpdateInstanceStatusTx(tx, "developer-1", models.InstanceStatusWorking, "DEV-001", "2026-01-02 10:01:00")
	}))

	// Re-registration resets to idle and clears the current task.
	registerInstance(t, db, "developer-1", "developer", "2026-01-02 10:02:00")

	inst, err := GetInstance(db, "developer-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusIdle, inst.Status)
	assert.Empty(t, inst.CurrentTask)
}

func TestListInstances_ByRole(t *testing.T) {
	db := newTestDB(t)

	registerInstance(t, db, "developer-1", "developer", "2026-01-02 10:00:00")
	registerInstance(t, db, "developer-2", "developer", "2026-01-02 10:00:00")
	registerInstance(t, db, "qa-1", "qa", "2026-01-02 10:00:00")

	devs, err := ListInstances(db, "developer")
	require.NoError(t, err)
	require.Len(t, devs, 2)
	assert.Equal(t, "developer-1", devs[0].InstanceID)

	all, err := ListInstances(db, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHeartbeatInstanceTx(t *testing.T) {
	db := newTestDB(t)

	registerInstance(t, db, "developer-1", "developer", "2026-01-02 10:00:00")
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		return HeartbeatInstanceTx(tx, "developer-1", "2026-01-02 10:05:00")
	}))

	inst, err := GetInstance(db, "developer-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-02 10:05:00", FormatTime(inst.LastHeartbeat))
}

func TestCountInstancesByRoleTx_IgnoresStopped(t *testing.T) {
	db := newTestDB(t)

	registerInstance(t, db, "developer-1", "developer", "2026-01-02 10:00:00")
	registerInstance(t, db, "developer-2", "developer", "2026-01-02 10:00:00")
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		return UpdateInstanceStatusTx(tx, "developer-2", models.InstanceStatusStopped, "", "2026-01-02 10:01:00")
	}))

	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		n, err := CountInstancesByRoleTx(tx, "developer")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return nil
	}))
}

func TestRemoveInstanceTx(t *testing.T) {
	db := newTestDB(t)

	registerInstance(t, db, "developer-1", "developer", "2026-01-02 10:00:00")
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		return RemoveInstanceTx(tx, "developer-1")
	}))

	_, err := GetInstance(db, "developer-1")
	require.ErrorContains(t, err, "instance not found")
}
