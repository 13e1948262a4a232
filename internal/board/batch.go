package board

import (
	"fmt"

	"github.com/dotcommander/taskbrew/internal/models"
)

// Batch actions accepted by BatchUpdateTasks.
const (
	BatchActionCancel         = "cancel"
	BatchActionReassign       = "reassign"
	BatchActionChangePriority = "change_priority"
	BatchActionRetry          = "retry"
)

// BatchParams carries the per-action parameter of a batch update.
type BatchParams struct {
	Reason   string          `json:"reason,omitempty"`
	NewRole  string          `json:"new_role,omitempty"`
	Priority models.Priority `json:"priority,omitempty"`
}

// BatchResult reports the outcome for one task in a batch.
type BatchResult struct {
	TaskID string `json:"task_id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// BatchUpdateTasks applies one action to many tasks. Rows that fail their
// precondition are skipped and reported, never aborting the rest.
func (b *Board) BatchUpdateTasks(ids []string, action string, params BatchParams) ([]BatchResult, error) {
	apply, err := b.batchApplier(action, params)
	if err != nil {
		return nil, err
	}

	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		if err := apply(id); err != nil {
			results = append(results, BatchResult{TaskID: id, Error: err.Error()})
			continue
		}
		results = append(results, BatchResult{TaskID: id, OK: true})
	}
	return results, nil
}

func (b *Board) batchApplier(action string, params BatchParams) (func(string) error, error) {
	switch action {
	case BatchActionCancel:
		return func(id string) error {
			_, err := b.CancelTask(id, params.Reason)
			return err
		}, nil
	case BatchActionReassign:
		if params.NewRole == "" {
			return nil, fmt.Errorf("reassign requires new_role")
		}
		return func(id string) error {
			_, err := b.ReassignTask(id, params.NewRole)
			return err
		}, nil
	case BatchActionChangePriority:
		if !params.Priority.Valid() {
			return nil, fmt.Errorf("change_priority requires a valid priority")
		}
		return func(id string) error {
			_, err := b.ChangeTaskPriority(id, params.Priority)
			return err
		}, nil
	case BatchActionRetry:
		return func(id string) error {
			_, err := b.RetryTask(id)
			return err
		}, nil
	default:
		return nil, fmt.Errorf("unknown batch action: %s", action)
	}
}
