package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dotcommander/taskbrew/internal/models"
)

// InsertGroupTx inserts a new active group and returns the stored row.
func InsertGroupTx(tx *sql.Tx, id, title, origin, createdBy string) (*models.Group, error) {
	if title == "" {
		return nil, errors.New("group title is required")
	}
	_, err := tx.Exec(`
		INSERT INTO groups (id, title, origin, status, created_by)
		VALUES (?, ?, ?, 'active', ?)
	`, id, title, origin, createdBy)
	if err != nil {
		return nil, fmt.Errorf("failed to insert group: %w", err)
	}
	return getGroupByQuerier(tx, id)
}

// GetGroup retrieves a group by ID.
func GetGroup(q Querier, groupID string) (*models.Group, error) {
	return getGroupByQuerier(q, groupID)
}

func getGroupByQuerier(q Querier, groupID string) (*models.Group, error) {
	row := q.QueryRow(`SELECT `+groupColumns+` FROM groups WHERE id = ?`, groupID)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrGroupNotFound(groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query group: %w", err)
	}
	return g, nil
}

// ListGroups returns groups, optionally filtered by status, newest first.
func ListGroups(q Querier, statusFilter string) ([]*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups`
	var args []any
	if statusFilter != "" {
		query += ` WHERE status = ?`
		args = append(args, statusFilter)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []*models.Group
	for rows.Next() {
		g, scanErr := scanGroup(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", scanErr)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// CompleteGroupTx marks a group completed if it is not already.
// Idempotent: repeated calls are no-ops.
func CompleteGroupTx(tx *sql.Tx, groupID, now string) (bool, error) {
	res, err := tx.Exec(`
		UPDATE groups
		SET status = 'completed', completed_at = ?
		WHERE id = ? AND status = 'active'
	`, now, groupID)
	if err != nil {
		return false, fmt.Errorf("failed to complete group: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check completed group rows: %w", err)
	}
	return ra > 0, nil
}

// ReactivateGroupTx flips a completed group back to active. Used when a new
// task lands in a group that was already marked completed.
func ReactivateGroupTx(tx *sql.Tx, groupID string) error {
	_, err := tx.Exec(`
		UPDATE groups
		SET status = 'active', completed_at = NULL
		WHERE id = ? AND status = 'completed'
	`, groupID)
	if err != nil {
		return fmt.Errorf("failed to reactivate group: %w", err)
	}
	return nil
}

// GroupHasOpenTasksTx reports whether any task in the group is non-terminal.
func GroupHasOpenTasksTx(tx *sql.Tx, groupID string) (bool, error) {
	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM tasks
		WHERE group_id = ?
		  AND status NOT IN ('completed', 'failed', 'rejected', 'cancelled')
	`, groupID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count open group tasks: %w", err)
	}
	return count > 0, nil
}

// CountGroupTasksTx returns the number of tasks in a group.
func CountGroupTasksTx(tx *sql.Tx, groupID string) (int, error) {
	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM tasks WHERE group_id = ?`, groupID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count group tasks: %w", err)
	}
	return count, nil
}
