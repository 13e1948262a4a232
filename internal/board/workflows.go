package board

import (
	"strings"

	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

// StartWorkflow instantiates a stored workflow into groupID: tasks are
// created in step order, each blocked by the previous step's task.
func (b *Board) StartWorkflow(workflowID, groupID, createdBy string) ([]*models.Task, error) {
	wf, err := store.GetWorkflow(b.reader(), workflowID)
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0, len(wf.Steps))
	var prevID string
	for _, step := range wf.Steps {
		var blockedBy []string
		if prevID != "" {
			blockedBy = []string{prevID}
		}
		task, err := b.CreateTask(CreateTaskParams{
			GroupID:     groupID,
			Title:       step.Title,
			Description: step.Description,
			TaskType:    step.TaskType,
			Priority:    step.Priority,
			AssignedTo:  step.AssignedTo,
			CreatedBy:   createdBy,
			BlockedBy:   blockedBy,
		})
		if err != nil {
			return tasks, err
		}
		tasks = append(tasks, task)
		prevID = task.ID
	}
	return tasks, nil
}

// CreateFromTemplate expands {key} placeholders in a stored template's title
// and description, then creates the task.
func (b *Board) CreateFromTemplate(templateName, groupID string, variables map[string]string, createdBy string) (*models.Task, error) {
	tmpl, err := store.GetTemplate(b.reader(), templateName)
	if err != nil {
		return nil, err
	}
	return b.CreateTask(CreateTaskParams{
		GroupID:     groupID,
		Title:       expandPlaceholders(tmpl.Title, variables),
		Description: expandPlaceholders(tmpl.Description, variables),
		TaskType:    tmpl.TaskType,
		Priority:    tmpl.Priority,
		AssignedTo:  tmpl.AssignedTo,
		CreatedBy:   createdBy,
	})
}

func expandPlaceholders(s string, variables map[string]string) string {
	for key, value := range variables {
		s = strings.ReplaceAll(s, "{"+key+"}", value)
	}
	return s
}
