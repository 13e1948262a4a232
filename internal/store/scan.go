package store

import (
	"database/sql"
	"time"

	"github.com/dotcommander/taskbrew/internal/models"
)

// TimeFormat matches SQLite's CURRENT_TIMESTAMP output. Explicit timestamps
// are written in this format (UTC) so lexicographic comparisons in SQL stay
// consistent with column defaults.
const TimeFormat = "2006-01-02 15:04:05"

// FormatTime renders t for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a stored timestamp. Zero time on empty or unparseable input.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{TimeFormat, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := ParseTime(s.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

// taskColumns is the canonical SELECT list for task rows; keep in sync with
// scanTask.
const taskColumns = `id, group_id, parent_id, title, description, task_type, priority,
	assigned_to, claimed_by, status, created_by, rejection_reason, revision_of,
	output_text, created_at, started_at, completed_at`

// rowScanner is the subset of *sql.Row / *sql.Rows used by the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask scans one task row in taskColumns order.
func scanTask(r rowScanner) (*models.Task, error) {
	var (
		t                                    models.Task
		groupID, parentID, claimedBy         sql.NullString
		rejectionReason, revisionOf, output  sql.NullString
		createdAt                            string
		startedAt, completedAt               sql.NullString
	)
	err := r.Scan(
		&t.ID, &groupID, &parentID, &t.Title, &t.Description, &t.TaskType, &t.Priority,
		&t.AssignedTo, &claimedBy, &t.Status, &t.CreatedBy, &rejectionReason, &revisionOf,
		&output, &createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.GroupID = groupID.String
	t.ParentID = parentID.String
	t.ClaimedBy = claimedBy.String
	t.RejectionReason = rejectionReason.String
	t.RevisionOf = revisionOf.String
	t.OutputText = output.String
	t.CreatedAt = ParseTime(createdAt)
	t.StartedAt = parseNullTime(startedAt)
	t.CompletedAt = parseNullTime(completedAt)
	return &t, nil
}

const groupColumns = `id, title, origin, status, created_by, created_at, completed_at`

// scanGroup scans one group row in groupColumns order.
func scanGroup(r rowScanner) (*models.Group, error) {
	var (
		g           models.Group
		createdAt   string
		completedAt sql.NullString
	)
	if err := r.Scan(&g.ID, &g.Title, &g.Origin, &g.Status, &g.CreatedBy, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	g.CreatedAt = ParseTime(createdAt)
	g.CompletedAt = parseNullTime(completedAt)
	return &g, nil
}

// nullable turns "" into NULL for optional text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
