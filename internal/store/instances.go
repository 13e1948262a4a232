package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dotcommander/taskbrew/internal/models"
)

// RegisterInstanceTx upserts an agent instance row as idle with a fresh
// heartbeat. Re-registering an existing instance resets its status and
// heartbeat without losing started_at.
func RegisterInstanceTx(tx *sql.Tx, instanceID, role, now string, autoSpawned bool) error {
	auto := 0
	if autoSpawned {
		auto = 1
	}
	_, err := tx.Exec(`
		INSERT INTO agent_instances (instance_id, role, status, auto_spawned, started_at, last_heartbeat)
		VALUES (?, ?, 'idle', ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			status = 'idle',
			current_task = NULL,
			last_heartbeat = excluded.last_heartbeat
	`, instanceID, role, auto, now, now)
	if err != nil {
		return fmt.Errorf("failed to register instance %s: %w", instanceID, err)
	}
	return nil
}

// HeartbeatInstanceTx refreshes an instance's last_heartbeat.
func HeartbeatInstanceTx(tx *sql.Tx, instanceID, now string) error {
	_, err := tx.Exec(`
		UPDATE agent_instances SET last_heartbeat = ? WHERE instance_id = ?
	`, now, instanceID)
	if err != nil {
		return fmt.Errorf("failed to heartbeat instance %s: %w", instanceID, err)
	}
	return nil
}

// UpdateInstanceStatusTx sets an instance's status and current task.
// currentTask is cleared when empty.
func UpdateInstanceStatusTx(tx *sql.Tx, instanceID string, status models.InstanceStatus, currentTask, now string) error {
	_, err := tx.Exec(`
		UPDATE agent_instances
		SET status = ?, current_task = ?, last_heartbeat = ?
		WHERE instance_id = ?
	`, string(status), nullable(currentTask), now, instanceID)
	if err != nil {
		return fmt.Errorf("failed to update instance %s: %w", instanceID, err)
	}
	return nil
}

// RemoveInstanceTx deletes an instance row.
func RemoveInstanceTx(tx *sql.Tx, instanceID string) error {
	_, err := tx.Exec(`DELETE FROM agent_instances WHERE instance_id = ?`, instanceID)
	if err != nil {
		return fmt.Errorf("failed to remove instance %s: %w", instanceID, err)
	}
	return nil
}

const instanceColumns = `instance_id, role, status, current_task, auto_spawned, started_at, last_heartbeat`

func scanInstance(r rowScanner) (*models.AgentInstance, error) {
	var (
		inst        models.AgentInstance
		currentTask sql.NullString
		auto        int
		startedAt   string
		heartbeat   string
	)
	if err := r.Scan(&inst.InstanceID, &inst.Role, &inst.Status, &currentTask, &auto, &startedAt, &heartbeat); err != nil {
		return nil, err
	}
	inst.CurrentTask = currentTask.String
	inst.AutoSpawned = auto != 0
	inst.StartedAt = ParseTime(startedAt)
	inst.LastHeartbeat = ParseTime(heartbeat)
	return &inst, nil
}

// GetInstance retrieves one instance row.
func GetInstance(q Querier, instanceID string) (*models.AgentInstance, error) {
	row := q.QueryRow(`SELECT `+instanceColumns+` FROM agent_instances WHERE instance_id = ?`, instanceID)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("instance not found: %s", instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query instance: %w", err)
	}
	return inst, nil
}

// ListInstances returns instances, optionally filtered by role, ordered by
// instance_id.
func ListInstances(q Querier, role string) ([]*models.AgentInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM agent_instances`
	var args []any
	if role != "" {
		query += ` WHERE role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY instance_id`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.AgentInstance
	for rows.Next() {
		inst, scanErr := scanInstance(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan instance row: %w", scanErr)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// StaleInstancesTx returns instances whose last heartbeat is older than
// cutoff. Stopped and paused instances are expected to be silent and are
// excluded.
func StaleInstancesTx(tx *sql.Tx, cutoff time.Time) ([]string, error) {
	return queryStringColumn(tx, `
		SELECT instance_id FROM agent_instances
		WHERE status NOT IN ('stopped', 'paused') AND last_heartbeat < ?
		ORDER BY instance_id
	`, FormatTime(cutoff))
}

// CountInstancesByRoleTx returns the number of non-stopped instances of a role.
func CountInstancesByRoleTx(tx *sql.Tx, role string) (int, error) {
	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM agent_instances WHERE role = ? AND status != 'stopped'
	`, role).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count instances for role %s: %w", role, err)
	}
	return count, nil
}
