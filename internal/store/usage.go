package store

import (
	"database/sql"
	"fmt"

	"github.com/dotcommander/taskbrew/internal/models"
)

// InsertUsageTx records execution metrics for one task run.
func InsertUsageTx(tx *sql.Tx, u *models.Usage) error {
	if u.TaskID == "" {
		return fmt.Errorf("usage task_id is required")
	}
	_, err := tx.Exec(`
		INSERT INTO task_usage (task_id, input_tokens, output_tokens, cost_usd, duration_sec, turns, model)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, u.TaskID, u.InputTokens, u.OutputTokens, u.CostUSD, u.DurationSec, u.Turns, nullable(u.Model))
	if err != nil {
		return fmt.Errorf("failed to insert usage: %w", err)
	}
	return nil
}

// ListTaskUsage returns usage rows for one task, oldest first.
func ListTaskUsage(q Querier, taskID string) ([]*models.Usage, error) {
	rows, err := q.Query(`
		SELECT id, task_id, input_tokens, output_tokens, cost_usd, duration_sec, turns, model, created_at
		FROM task_usage WHERE task_id = ? ORDER BY id ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Usage
	for rows.Next() {
		var (
			u         models.Usage
			model     sql.NullString
			createdAt string
		)
		if scanErr := rows.Scan(&u.ID, &u.TaskID, &u.InputTokens, &u.OutputTokens,
			&u.CostUSD, &u.DurationSec, &u.Turns, &model, &createdAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", scanErr)
		}
		u.Model = model.String
		u.CreatedAt = ParseTime(createdAt)
		out = append(out, &u)
	}
	return out, rows.Err()
}

// UsageTotals aggregates usage across all tasks.
type UsageTotals struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	Runs         int64   `json:"runs"`
}

// SumUsage returns aggregate usage totals, optionally scoped to one group.
func SumUsage(q Querier, groupID string) (*UsageTotals, error) {
	query := `
		SELECT COALESCE(SUM(u.input_tokens), 0), COALESCE(SUM(u.output_tokens), 0),
		       COALESCE(SUM(u.cost_usd), 0), COUNT(*)
		FROM task_usage u`
	var args []any
	if groupID != "" {
		query += ` JOIN tasks t ON t.id = u.task_id WHERE t.group_id = ?`
		args = append(args, groupID)
	}

	var totals UsageTotals
	err := q.QueryRow(query, args...).Scan(&totals.InputTokens, &totals.OutputTokens, &totals.CostUSD, &totals.Runs)
	if err != nil {
		return nil, fmt.Errorf("failed to sum usage: %w", err)
	}
	return &totals, nil
}
