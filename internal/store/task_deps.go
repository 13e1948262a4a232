package store

import (
	"database/sql"
	"fmt"

	"github.com/dotcommander/taskbrew/internal/models"
)

// maxCycleCheckNodes bounds the BFS in wouldCreateCycleTx.
const maxCycleCheckNodes = 10000

// InsertDependencyTx records that taskID is blocked by blockedByID. If the
// blocker is already terminal-successful the edge is inserted pre-resolved.
// Self-edges and edges that would close a cycle are rejected.
func InsertDependencyTx(tx *sql.Tx, taskID, blockedByID, now string) error {
	if taskID == blockedByID {
		return models.NewPreconditionError(models.KindCycleInDependency,
			fmt.Sprintf("task %s cannot depend on itself", taskID), nil)
	}

	blockerStatus, err := GetTaskStatusTx(tx, blockedByID)
	if err != nil {
		return err
	}

	cyclic, err := wouldCreateCycleTx(tx, taskID, blockedByID)
	if err != nil {
		return err
	}
	if cyclic {
		return models.NewPreconditionError(models.KindCycleInDependency,
			fmt.Sprintf("dependency %s -> %s would create a cycle", taskID, blockedByID),
			map[string]string{"task_id": taskID, "blocked_by": blockedByID})
	}

	resolved := 0
	var resolvedAt any
	if blockerStatus == models.TaskStatusCompleted {
		resolved = 1
		resolvedAt = now
	}
	_, err = tx.Exec(`
		INSERT OR IGNORE INTO task_dependencies (task_id, blocked_by_task_id, resolved, resolved_at)
		VALUES (?, ?, ?, ?)
	`, taskID, blockedByID, resolved, resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to insert dependency: %w", err)
	}
	return nil
}

// wouldCreateCycleTx walks upstream from blockedByID through existing
// dependency edges. If the walk reaches taskID, adding the new edge would
// close a cycle.
func wouldCreateCycleTx(tx *sql.Tx, taskID, blockedByID string) (bool, error) {
	visited := map[string]bool{blockedByID: true}
	frontier := []string{blockedByID}

	for len(frontier) > 0 {
		if len(visited) > maxCycleCheckNodes {
			return false, fmt.Errorf("cycle check exceeded %d nodes", maxCycleCheckNodes)
		}
		current := frontier[0]
		frontier = frontier[1:]
		if current == taskID {
			return true, nil
		}

		upstream, err := queryStringColumn(tx, `
			SELECT blocked_by_task_id FROM task_dependencies WHERE task_id = ?
		`, current)
		if err != nil {
			return false, fmt.Errorf("failed to walk dependencies: %w", err)
		}
		for _, up := range upstream {
			if !visited[up] {
				visited[up] = true
				frontier = append(frontier, up)
			}
		}
	}
	return false, nil
}

// UnresolvedDependencyCountTx counts unresolved blockers of a task.
func UnresolvedDependencyCountTx(tx *sql.Tx, taskID string) (int, error) {
	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM task_dependencies WHERE task_id = ? AND resolved = 0
	`, taskID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved dependencies: %w", err)
	}
	return count, nil
}

// ResolveDependenciesTx marks every edge blocked by completedID as resolved,
// then flips blocked dependents with no remaining unresolved blockers to
// pending. Returns the IDs of the unblocked tasks.
func ResolveDependenciesTx(tx *sql.Tx, completedID, now string) ([]string, error) {
	dependents, err := queryStringColumn(tx, `
		SELECT task_id FROM task_dependencies
		WHERE blocked_by_task_id = ? AND resolved = 0
		ORDER BY task_id
	`, completedID)
	if err != nil {
		return nil, fmt.Errorf("failed to find dependents: %w", err)
	}
	if len(dependents) == 0 {
		return nil, nil
	}

	_, err = tx.Exec(`
		UPDATE task_dependencies SET resolved = 1, resolved_at = ?
		WHERE blocked_by_task_id = ? AND resolved = 0
	`, now, completedID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dependencies: %w", err)
	}

	var unblocked []string
	for _, dep := range dependents {
		remaining, err := UnresolvedDependencyCountTx(tx, dep)
		if err != nil {
			return nil, err
		}
		if remaining > 0 {
			continue
		}
		res, err := tx.Exec(`
			UPDATE tasks SET status = 'pending' WHERE id = ? AND status = 'blocked'
		`, dep)
		if err != nil {
			return nil, fmt.Errorf("failed to unblock task %s: %w", dep, err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to check unblock rows: %w", err)
		}
		if ra > 0 {
			unblocked = append(unblocked, dep)
		}
	}
	return unblocked, nil
}

// CascadeFailBlockedTx fails every blocked task transitively downstream of
// failedID. BFS over dependency edges; only tasks still in blocked status are
// touched. Returns the IDs of the cascaded tasks.
func CascadeFailBlockedTx(tx *sql.Tx, failedID, now string) ([]string, error) {
	visited := map[string]bool{failedID: true}
	frontier := []string{failedID}
	var cascaded []string

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		downstream, err := queryStringColumn(tx, `
			SELECT task_id FROM task_dependencies
			WHERE blocked_by_task_id = ?
			ORDER BY task_id
		`, current)
		if err != nil {
			return nil, fmt.Errorf("failed to walk downstream dependencies: %w", err)
		}
		for _, down := range downstream {
			if visited[down] {
				continue
			}
			visited[down] = true

			res, err := tx.Exec(`
				UPDATE tasks SET status = 'failed', completed_at = ?
				WHERE id = ? AND status = 'blocked'
			`, now, down)
			if err != nil {
				return nil, fmt.Errorf("failed to cascade-fail task %s: %w", down, err)
			}
			ra, err := res.RowsAffected()
			if err != nil {
				return nil, fmt.Errorf("failed to check cascade rows: %w", err)
			}
			if ra > 0 {
				cascaded = append(cascaded, down)
				frontier = append(frontier, down)
			}
		}
	}
	return cascaded, nil
}

// ResolveEdgesOfTaskTx marks every unresolved edge pointing INTO taskID as
// resolved, regardless of blocker outcome. Used by stuck-blocked recovery
// after the blockers are known to be terminal.
func ResolveEdgesOfTaskTx(tx *sql.Tx, taskID, now string) error {
	_, err := tx.Exec(`
		UPDATE task_dependencies SET resolved = 1, resolved_at = ?
		WHERE task_id = ? AND resolved = 0
	`, now, taskID)
	if err != nil {
		return fmt.Errorf("failed to resolve edges of task %s: %w", taskID, err)
	}
	return nil
}

// UnblockTaskTx flips a blocked task to pending. Returns false when the task
// was not blocked.
func UnblockTaskTx(tx *sql.Tx, taskID string) (bool, error) {
	res, err := tx.Exec(`UPDATE tasks SET status = 'pending' WHERE id = ? AND status = 'blocked'`, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to unblock task %s: %w", taskID, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check unblock rows: %w", err)
	}
	return ra > 0, nil
}

// FailBlockedTaskTx fails a blocked task directly (stuck-blocked recovery
// path). Returns false when the task was not blocked.
func FailBlockedTaskTx(tx *sql.Tx, taskID, now string) (bool, error) {
	res, err := tx.Exec(`
		UPDATE tasks SET status = 'failed', completed_at = ? WHERE id = ? AND status = 'blocked'
	`, now, taskID)
	if err != nil {
		return false, fmt.Errorf("failed to fail blocked task %s: %w", taskID, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check fail rows: %w", err)
	}
	return ra > 0, nil
}

// ListGroupDependencies returns every dependency edge whose dependent task
// belongs to the group.
func ListGroupDependencies(q Querier, groupID string) ([]*models.Dependency, error) {
	rows, err := q.Query(`
		SELECT d.task_id, d.blocked_by_task_id, d.resolved, d.resolved_at
		FROM task_dependencies d
		JOIN tasks t ON t.id = d.task_id
		WHERE t.group_id = ?
		ORDER BY d.task_id, d.blocked_by_task_id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []*models.Dependency
	for rows.Next() {
		var d models.Dependency
		var resolved int
		var resolvedAt sql.NullString
		if scanErr := rows.Scan(&d.TaskID, &d.BlockedBy, &resolved, &resolvedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan dependency row: %w", scanErr)
		}
		d.Resolved = resolved != 0
		d.ResolvedAt = parseNullTime(resolvedAt)
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}

// DependentsTx returns the direct dependents of a task (tasks blocked by it).
func DependentsTx(tx *sql.Tx, taskID string) ([]string, error) {
	return queryStringColumn(tx, `
		SELECT task_id FROM task_dependencies
		WHERE blocked_by_task_id = ?
		ORDER BY task_id
	`, taskID)
}
