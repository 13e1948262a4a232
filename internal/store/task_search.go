package store

import (
	"fmt"
	"strings"

	"github.com/dotcommander/taskbrew/internal/models"
)

// TaskFilter narrows ListTasks / SearchTasks results. Zero values mean
// "no filter".
type TaskFilter struct {
	Status     models.TaskStatus
	GroupID    string
	AssignedTo string
	ClaimedBy  string
	TaskType   string
	Priority   models.Priority
	CreatedBy  string
}

func (f TaskFilter) whereClauses() ([]string, []any) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.GroupID != "" {
		clauses = append(clauses, "group_id = ?")
		args = append(args, f.GroupID)
	}
	if f.AssignedTo != "" {
		clauses = append(clauses, "assigned_to = ?")
		args = append(args, f.AssignedTo)
	}
	if f.ClaimedBy != "" {
		clauses = append(clauses, "claimed_by = ?")
		args = append(args, f.ClaimedBy)
	}
	if f.TaskType != "" {
		clauses = append(clauses, "task_type = ?")
		args = append(args, f.TaskType)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by = ?")
		args = append(args, f.CreatedBy)
	}
	return clauses, args
}

// ListTasks returns tasks matching the filter, newest first.
func ListTasks(q Querier, filter TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	clauses, args := filter.whereClauses()
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`
	return queryTasks(q, query, args...)
}

// ListGroupTasks returns every task in a group in creation order, for board
// and graph views.
func ListGroupTasks(q Querier, groupID string) ([]*models.Task, error) {
	return queryTasks(q, `
		SELECT `+taskColumns+` FROM tasks
		WHERE group_id = ?
		ORDER BY created_at ASC, id ASC
	`, groupID)
}

// SearchTasks matches text against title and description (case-insensitive
// substring) combined with the structured filter, paginated. Returns the
// page of tasks plus the total match count.
func SearchTasks(q Querier, text string, filter TaskFilter, limit, offset int) ([]*models.Task, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	clauses, args := filter.whereClauses()
	if text != "" {
		clauses = append(clauses, "(title LIKE ? ESCAPE '\\' OR description LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(text) + "%"
		args = append(args, pattern, pattern)
	}
	where := ""
	if len(clauses) > 0 {
		where = ` WHERE ` + strings.Join(clauses, " AND ")
	}

	var total int
	if err := q.QueryRow(`SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	pageArgs := append(append([]any{}, args...), limit, offset)
	tasks, err := queryTasks(q, `
		SELECT `+taskColumns+` FROM tasks`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// CountTasksByStatus returns status -> count over all tasks.
func CountTasksByStatus(q Querier) (map[models.TaskStatus]int, error) {
	rows, err := q.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if scanErr := rows.Scan(&status, &n); scanErr != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", scanErr)
		}
		counts[models.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

func queryTasks(q Querier, query string, args ...any) ([]*models.Task, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", scanErr)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
