package store

import (
	"database/sql"
	"fmt"
)

// RecoverOrphanedTasksTx resets every in_progress task back to pending with
// the claim cleared. Run at startup, before any worker registers, so tasks
// stranded by a crash become claimable again. Returns the recovered IDs.
func RecoverOrphanedTasksTx(tx *sql.Tx) ([]string, error) {
	ids, err := queryStringColumn(tx, `
		SELECT id FROM tasks WHERE status = 'in_progress' ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to find orphaned tasks: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	_, err = tx.Exec(`
		UPDATE tasks
		SET status = 'pending', claimed_by = NULL, started_at = NULL
		WHERE status = 'in_progress'
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to recover orphaned tasks: %w", err)
	}
	return ids, nil
}

// ReclaimTasksClaimedByTx resets in_progress tasks claimed by any of the
// given instances. Used when stale-heartbeat instances are pruned. Returns
// the reclaimed task IDs.
func ReclaimTasksClaimedByTx(tx *sql.Tx, instanceIDs []string) ([]string, error) {
	if len(instanceIDs) == 0 {
		return nil, nil
	}

	placeholders := ""
	args := make([]any, 0, len(instanceIDs))
	for i, id := range instanceIDs {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, id)
	}

	ids, err := queryStringColumn(tx, `
		SELECT id FROM tasks
		WHERE status = 'in_progress' AND claimed_by IN (`+placeholders+`)
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find tasks for stale instances: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	_, err = tx.Exec(`
		UPDATE tasks
		SET status = 'pending', claimed_by = NULL, started_at = NULL
		WHERE status = 'in_progress' AND claimed_by IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to reclaim tasks: %w", err)
	}
	return ids, nil
}

// FindStuckBlockedTx returns blocked tasks whose blockers are all terminal
// but which were never unblocked or cascade-failed. These indicate a missed
// resolution pass, usually after a crash mid-transaction.
func FindStuckBlockedTx(tx *sql.Tx) ([]string, error) {
	return queryStringColumn(tx, `
		SELECT t.id FROM tasks t
		WHERE t.status = 'blocked'
		  AND NOT EXISTS (
			SELECT 1 FROM task_dependencies d
			JOIN tasks b ON b.id = d.blocked_by_task_id
			WHERE d.task_id = t.id
			  AND b.status NOT IN ('completed', 'failed', 'rejected', 'cancelled')
		  )
		ORDER BY t.id
	`)
}

// BlockersSucceededTx reports whether every blocker of taskID completed
// successfully. Used to decide whether a stuck blocked task should be
// unblocked (all completed) or failed (some blocker failed).
func BlockersSucceededTx(tx *sql.Tx, taskID string) (bool, error) {
	var unsuccessful int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM task_dependencies d
		JOIN tasks b ON b.id = d.blocked_by_task_id
		WHERE d.task_id = ? AND b.status != 'completed'
	`, taskID).Scan(&unsuccessful)
	if err != nil {
		return false, fmt.Errorf("failed to check blocker outcomes: %w", err)
	}
	return unsuccessful == 0, nil
}
