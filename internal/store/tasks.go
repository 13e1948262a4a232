package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dotcommander/taskbrew/internal/models"
)

// InsertTaskParams groups the inputs for InsertTaskTx.
type InsertTaskParams struct {
	ID          string
	GroupID     string
	ParentID    string
	Title       string
	Description string
	TaskType    string
	Priority    models.Priority
	AssignedTo  string
	CreatedBy   string
	RevisionOf  string
	Status      models.TaskStatus
}

// InsertTaskTx inserts a task row and returns the stored task.
// Status must be pending or blocked; dependency rows are inserted separately.
func InsertTaskTx(tx *sql.Tx, p InsertTaskParams) (*models.Task, error) {
	if p.Title == "" {
		return nil, errors.New("task title is required")
	}
	if p.AssignedTo == "" {
		return nil, errors.New("task assigned_to is required")
	}
	if p.Status != models.TaskStatusPending && p.Status != models.TaskStatusBlocked {
		return nil, fmt.Errorf("initial task status must be pending or blocked, got: %s", p.Status)
	}
	if p.Priority == "" {
		p.Priority = models.PriorityMedium
	}
	if !p.Priority.Valid() {
		return nil, fmt.Errorf("unknown priority: %s", p.Priority)
	}

	_, err := tx.Exec(`
		INSERT INTO tasks (id, group_id, parent_id, title, description, task_type,
			priority, assigned_to, status, created_by, revision_of)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, nullable(p.GroupID), nullable(p.ParentID), p.Title, p.Description, p.TaskType,
		string(p.Priority), p.AssignedTo, string(p.Status), p.CreatedBy, nullable(p.RevisionOf))
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	return getTaskByQuerier(tx, p.ID)
}

// GetTask retrieves a task by ID with its dependency edges populated.
func GetTask(q Querier, taskID string) (*models.Task, error) {
	return getTaskByQuerier(q, taskID)
}

func getTaskByQuerier(q Querier, taskID string) (*models.Task, error) {
	row := q.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTaskNotFound(taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	deps, err := queryStringColumn(q, `
		SELECT blocked_by_task_id
		FROM task_dependencies
		WHERE task_id = ?
		ORDER BY created_at ASC, blocked_by_task_id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task dependencies: %w", err)
	}
	task.BlockedBy = deps
	return task, nil
}

// GetTaskStatusTx loads only the status column.
func GetTaskStatusTx(tx *sql.Tx, taskID string) (models.TaskStatus, error) {
	var status string
	err := tx.QueryRow(`SELECT status FROM tasks WHERE id = ?`, taskID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrTaskNotFound(taskID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get task status: %w", err)
	}
	return models.TaskStatus(status), nil
}

// TaskExistsTx reports whether a task row exists.
func TaskExistsTx(tx *sql.Tx, taskID string) (bool, error) {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM tasks WHERE id = ?`, taskID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check task existence: %w", err)
	}
	return true, nil
}

// CompleteTaskTx moves an in_progress task to completed, recording the
// (pre-truncated) output. Returns false without error when the task was not
// in_progress — callers treat duplicate terminal transitions as no-ops.
func CompleteTaskTx(tx *sql.Tx, taskID, output, now string) (bool, error) {
	res, err := tx.Exec(`
		UPDATE tasks
		SET status = 'completed', completed_at = ?, output_text = ?
		WHERE id = ? AND status = 'in_progress'
	`, now, nullable(output), taskID)
	if err != nil {
		return false, fmt.Errorf("failed to complete task: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check completed rows: %w", err)
	}
	return ra > 0, nil
}

// FailTaskTx moves an in_progress task to failed. Same no-op contract as
// CompleteTaskTx.
func FailTaskTx(tx *sql.Tx, taskID, now string) (bool, error) {
	res, err := tx.Exec(`
		UPDATE tasks
		SET status = 'failed', completed_at = ?
		WHERE id = ? AND status = 'in_progress'
	`, now, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to fail task: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check failed rows: %w", err)
	}
	return ra > 0, nil
}

// RejectTaskTx moves a task (any non-terminal status) to rejected with a reason.
func RejectTaskTx(tx *sql.Tx, taskID, reason, now string) (bool, error) {
	res, err := tx.Exec(`
		UPDATE tasks
		SET status = 'rejected', rejection_reason = ?, completed_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed', 'rejected', 'cancelled')
	`, reason, now, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to reject task: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rejected rows: %w", err)
	}
	return ra > 0, nil
}

// CancelTaskTx moves a non-terminal task to cancelled.
func CancelTaskTx(tx *sql.Tx, taskID, now string) (bool, error) {
	res, err := tx.Exec(`
		UPDATE tasks
		SET status = 'cancelled', completed_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed', 'rejected', 'cancelled')
	`, now, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel task: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check cancelled rows: %w", err)
	}
	return ra > 0, nil
}

// RetryTaskTx resets a failed/rejected/cancelled task to pending,
// clearing the claim and completion timestamp.
func RetryTaskTx(tx *sql.Tx, taskID string) (bool, error) {
	res, err := tx.Exec(`
		UPDATE tasks
		SET status = 'pending', claimed_by = NULL, completed_at = NULL
		WHERE id = ? AND status IN ('failed', 'rejected', 'cancelled')
	`, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to retry task: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check retried rows: %w", err)
	}
	return ra > 0, nil
}

// ReassignTaskTx moves a pending or blocked task to a different role.
func ReassignTaskTx(tx *sql.Tx, taskID, newRole string) (bool, error) {
	res, err := tx.Exec(`
		UPDATE tasks
		SET assigned_to = ?
		WHERE id = ? AND status IN ('pending', 'blocked')
	`, newRole, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to reassign task: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check reassigned rows: %w", err)
	}
	return ra > 0, nil
}

// UpdateTaskPriorityTx changes the priority of a non-terminal task.
func UpdateTaskPriorityTx(tx *sql.Tx, taskID string, priority models.Priority) (bool, error) {
	if !priority.Valid() {
		return false, fmt.Errorf("unknown priority: %s", priority)
	}
	res, err := tx.Exec(`
		UPDATE tasks
		SET priority = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed', 'rejected', 'cancelled')
	`, string(priority), taskID)
	if err != nil {
		return false, fmt.Errorf("failed to update task priority: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check priority rows: %w", err)
	}
	return ra > 0, nil
}

// CancelPendingChildrenTx cancels pending direct children of a failed or
// cancelled parent. Returns the cancelled task IDs.
func CancelPendingChildrenTx(tx *sql.Tx, parentID, now string) ([]string, error) {
	ids, err := queryStringColumn(tx, `
		SELECT id FROM tasks WHERE parent_id = ? AND status = 'pending' ORDER BY id
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending children: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	for _, id := range ids {
		if _, err := tx.Exec(`
			UPDATE tasks SET status = 'cancelled', completed_at = ? WHERE id = ? AND status = 'pending'
		`, now, id); err != nil {
			return nil, fmt.Errorf("failed to cancel child %s: %w", id, err)
		}
	}
	return ids, nil
}

// ParentChainTx walks parent_id links from taskID upward, returning the chain
// of ancestor tasks (nearest first). Bounded to avoid runaway walks on
// corrupted data.
func ParentChainTx(tx *sql.Tx, taskID string) ([]*models.Task, error) {
	const maxDepth = 100

	var chain []*models.Task
	current := taskID
	for i := 0; i < maxDepth; i++ {
		var parentID sql.NullString
		err := tx.QueryRow(`SELECT parent_id FROM tasks WHERE id = ?`, current).Scan(&parentID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrTaskNotFound(current)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to walk parent chain: %w", err)
		}
		if !parentID.Valid || parentID.String == "" {
			return chain, nil
		}
		parent, err := getTaskByQuerier(tx, parentID.String)
		if err != nil {
			return nil, err
		}
		chain = append(chain, parent)
		current = parent.ID
	}
	return chain, nil
}
