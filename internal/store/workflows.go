package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dotcommander/taskbrew/internal/models"
)

// SaveWorkflowTx stores a workflow definition, replacing any previous version
// with the same ID. Steps are JSON-encoded.
func SaveWorkflowTx(tx *sql.Tx, wf *models.Workflow) error {
	if wf.ID == "" || wf.Name == "" {
		return fmt.Errorf("workflow id and name are required")
	}
	if len(wf.Steps) == 0 {
		return fmt.Errorf("workflow must have at least one step")
	}
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode workflow steps: %w", err)
	}
	_, err = tx.Exec(`
		INSERT INTO workflows (id, name, steps) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, steps = excluded.steps
	`, wf.ID, wf.Name, string(steps))
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

// GetWorkflow loads one workflow by ID.
func GetWorkflow(q Querier, id string) (*models.Workflow, error) {
	var (
		wf        models.Workflow
		steps     string
		createdAt string
	)
	err := q.QueryRow(`SELECT id, name, steps, created_at FROM workflows WHERE id = ?`, id).
		Scan(&wf.ID, &wf.Name, &steps, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &wf.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode workflow steps: %w", err)
	}
	wf.CreatedAt = ParseTime(createdAt)
	return &wf, nil
}

// ListWorkflows returns all workflows ordered by name.
func ListWorkflows(q Querier) ([]*models.Workflow, error) {
	rows, err := q.Query(`SELECT id, name, steps, created_at FROM workflows ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Workflow
	for rows.Next() {
		var (
			wf        models.Workflow
			steps     string
			createdAt string
		)
		if scanErr := rows.Scan(&wf.ID, &wf.Name, &steps, &createdAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", scanErr)
		}
		if err := json.Unmarshal([]byte(steps), &wf.Steps); err != nil {
			return nil, fmt.Errorf("failed to decode workflow steps: %w", err)
		}
		wf.CreatedAt = ParseTime(createdAt)
		out = append(out, &wf)
	}
	return out, rows.Err()
}

// SaveTemplateTx stores a task template, replacing any previous version with
// the same name.
func SaveTemplateTx(tx *sql.Tx, t *models.TaskTemplate) error {
	if t.Name == "" || t.Title == "" {
		return fmt.Errorf("template name and title are required")
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	_, err := tx.Exec(`
		INSERT INTO task_templates (name, title, description, task_type, assigned_to, priority)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			task_type = excluded.task_type,
			assigned_to = excluded.assigned_to,
			priority = excluded.priority
	`, t.Name, t.Title, t.Description, t.TaskType, t.AssignedTo, string(t.Priority))
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// GetTemplate loads one task template by name.
func GetTemplate(q Querier, name string) (*models.TaskTemplate, error) {
	var t models.TaskTemplate
	err := q.QueryRow(`
		SELECT name, title, description, task_type, assigned_to, priority
		FROM task_templates WHERE name = ?
	`, name).Scan(&t.Name, &t.Title, &t.Description, &t.TaskType, &t.AssignedTo, &t.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query template: %w", err)
	}
	return &t, nil
}

// ListTemplates returns all task templates ordered by name.
func ListTemplates(q Querier) ([]*models.TaskTemplate, error) {
	rows, err := q.Query(`
		SELECT name, title, description, task_type, assigned_to, priority
		FROM task_templates ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.TaskTemplate
	for rows.Next() {
		var t models.TaskTemplate
		if scanErr := rows.Scan(&t.Name, &t.Title, &t.Description, &t.TaskType, &t.AssignedTo, &t.Priority); scanErr != nil {
			return nil, fmt.Errorf("failed to scan template row: %w", scanErr)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
