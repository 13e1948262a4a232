package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dotcommander/taskbrew/internal/models"
)

// priorityRank orders critical before high before medium before low.
// Unknown values sort last.
const priorityRank = `CASE priority
	WHEN 'critical' THEN 0
	WHEN 'high' THEN 1
	WHEN 'medium' THEN 2
	WHEN 'low' THEN 3
	ELSE 4
END`

// ClaimNextTaskTx atomically claims the highest-priority pending task assigned
// to role. Selection order is priority rank, then created_at, then id.
// Returns (nil, nil) when nothing is claimable. The UPDATE re-checks the
// pending/unclaimed condition so two racing claimers can never take the same
// row.
func ClaimNextTaskTx(tx *sql.Tx, role, instanceID, now string) (*models.Task, error) {
	var taskID string
	err := tx.QueryRow(`
		SELECT id FROM tasks
		WHERE assigned_to = ? AND status = 'pending' AND claimed_by IS NULL
		ORDER BY `+priorityRank+` ASC, created_at ASC, id ASC
		LIMIT 1
	`, role).Scan(&taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select claimable task: %w", err)
	}

	res, err := tx.Exec(`
		UPDATE tasks
		SET status = 'in_progress', claimed_by = ?, started_at = ?
		WHERE id = ? AND status = 'pending' AND claimed_by IS NULL
	`, instanceID, now, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task %s: %w", taskID, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check claim rows: %w", err)
	}
	if ra == 0 {
		return nil, nil
	}

	return getTaskByQuerier(tx, taskID)
}

// ClaimTaskByIDTx claims a specific pending task for an instance. Returns
// false when the task is not pending or already claimed.
func ClaimTaskByIDTx(tx *sql.Tx, taskID, instanceID, now string) (bool, error) {
	res, err := tx.Exec(`
		UPDATE tasks
		SET status = 'in_progress', claimed_by = ?, started_at = ?
		WHERE id = ? AND status = 'pending' AND claimed_by IS NULL
	`, instanceID, now, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to claim task %s: %w", taskID, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check claim rows: %w", err)
	}
	return ra > 0, nil
}

// CountClaimableTx returns the number of pending unclaimed tasks for role.
// The auto-scaler uses this as its backlog signal.
func CountClaimableTx(tx *sql.Tx, role string) (int, error) {
	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM tasks
		WHERE assigned_to = ? AND status = 'pending' AND claimed_by IS NULL
	`, role).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count claimable tasks: %w", err)
	}
	return count, nil
}
