package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dotcommander/taskbrew/internal/models"
)

// InsertEventTx appends one event row and returns its assigned ID.
func InsertEventTx(tx *sql.Tx, ev *models.Event) (int64, error) {
	if ev.Type == "" {
		return 0, fmt.Errorf("event type is required")
	}
	var data any
	if len(ev.Data) > 0 {
		data = string(ev.Data)
	}
	res, err := tx.Exec(`
		INSERT INTO events (type, task_id, group_id, agent_id, data)
		VALUES (?, ?, ?, ?, ?)
	`, ev.Type, nullable(ev.TaskID), nullable(ev.GroupID), nullable(ev.AgentID), data)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read event id: %w", err)
	}
	return id, nil
}

// EventFilter narrows ListEvents results.
type EventFilter struct {
	Type    string
	TaskID  string
	GroupID string
	AfterID int64
}

// ListEvents returns persisted events matching the filter, oldest first,
// capped at limit (default 100).
func ListEvents(q Querier, filter EventFilter, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, type, task_id, group_id, agent_id, data, created_at FROM events WHERE 1=1`
	var args []any
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	if filter.TaskID != "" {
		query += ` AND task_id = ?`
		args = append(args, filter.TaskID)
	}
	if filter.GroupID != "" {
		query += ` AND group_id = ?`
		args = append(args, filter.GroupID)
	}
	if filter.AfterID > 0 {
		query += ` AND id > ?`
		args = append(args, filter.AfterID)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*models.Event
	for rows.Next() {
		var (
			ev                       models.Event
			taskID, groupID, agentID sql.NullString
			data                     sql.NullString
			createdAt                string
		)
		if scanErr := rows.Scan(&ev.ID, &ev.Type, &taskID, &groupID, &agentID, &data, &createdAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", scanErr)
		}
		ev.TaskID = taskID.String
		ev.GroupID = groupID.String
		ev.AgentID = agentID.String
		if data.Valid && data.String != "" {
			ev.Data = json.RawMessage(data.String)
		}
		ev.CreatedAt = ParseTime(createdAt)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// TimeseriesBucket is one time slot of event counts per type.
type TimeseriesBucket struct {
	Bucket string         `json:"bucket"`
	Counts map[string]int `json:"counts"`
}

// EventTimeseries buckets event counts per type since the given timestamp.
// granularity is "minute", "hour", or "day".
func EventTimeseries(q Querier, since, granularity string) ([]TimeseriesBucket, error) {
	var format string
	switch granularity {
	case "minute":
		format = "%Y-%m-%d %H:%M"
	case "day":
		format = "%Y-%m-%d"
	case "", "hour":
		format = "%Y-%m-%d %H:00"
	default:
		return nil, fmt.Errorf("unknown granularity %q", granularity)
	}

	query := `SELECT strftime(?, created_at) AS bucket, type, COUNT(*) FROM events`
	args := []any{format}
	if since != "" {
		query += ` WHERE created_at >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY bucket, type ORDER BY bucket ASC`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event timeseries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []TimeseriesBucket
	for rows.Next() {
		var bucket, typ string
		var n int
		if scanErr := rows.Scan(&bucket, &typ, &n); scanErr != nil {
			return nil, fmt.Errorf("failed to scan timeseries row: %w", scanErr)
		}
		if len(out) == 0 || out[len(out)-1].Bucket != bucket {
			out = append(out, TimeseriesBucket{Bucket: bucket, Counts: map[string]int{}})
		}
		out[len(out)-1].Counts[typ] = n
	}
	return out, rows.Err()
}

// EventCountsByType returns event type -> count since the given timestamp
// (all time when since is empty). Feeds the dashboard timeseries endpoint.
func EventCountsByType(q Querier, since string) (map[string]int, error) {
	query := `SELECT type, COUNT(*) FROM events`
	var args []any
	if since != "" {
		query += ` WHERE created_at >= ?`
		args = append(args, since)
	}
	query += ` GROUP BY type`

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if scanErr := rows.Scan(&typ, &n); scanErr != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", scanErr)
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}
