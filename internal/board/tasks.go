package board

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

// CreateGroup allocates a group ID from the creator's group prefix and
// inserts an active group.
func (b *Board) CreateGroup(title, origin, createdBy string) (*models.Group, error) {
	prefix := b.team.GroupPrefixFor(b.team.CreatorRole(createdBy))

	var group *models.Group
	var pending []*models.Event
	err := b.store.Transact(func(tx *sql.Tx) error {
		pending = pending[:0]
		id, err := store.AllocateIDTx(tx, prefix)
		if err != nil {
			return err
		}
		g, err := store.InsertGroupTx(tx, id, title, origin, createdBy)
		if err != nil {
			return err
		}
		group = g
		return b.recordTx(tx, &pending, event(models.EventGroupCreated, "", g.ID, createdBy, map[string]string{
			"title": title,
		}))
	})
	if err != nil {
		return nil, err
	}
	b.publish(pending)
	return group, nil
}

// CreateTaskParams are the inputs to CreateTask.
type CreateTaskParams struct {
	GroupID     string
	ParentID    string
	Title       string
	Description string
	TaskType    string
	Priority    models.Priority
	AssignedTo  string
	CreatedBy   string
	RevisionOf  string
	BlockedBy   []string
}

// CreateTask validates routing and guardrails, allocates the task ID from
// the target role's prefix, inserts the row plus dependency edges, and emits
// task.created. Tasks whose blockers are all already completed start pending
// rather than blocked.
func (b *Board) CreateTask(p CreateTaskParams) (*models.Task, error) {
	creatorRole := b.team.CreatorRole(p.CreatedBy)

	target, err := b.validateTarget(p.AssignedTo, p.TaskType, creatorRole)
	if err != nil {
		return nil, err
	}
	if creatorRole != "" {
		if err := b.validateRouting(creatorRole, p.AssignedTo, p.TaskType); err != nil {
			return nil, err
		}
	}

	var task *models.Task
	var pending []*models.Event
	err = b.store.Transact(func(tx *sql.Tx) error {
		pending = pending[:0]

		if creatorRole != "" {
			if err := b.validateGuardrailsTx(tx, p); err != nil {
				return err
			}
		}

		if p.GroupID != "" {
			group, err := store.GetGroup(tx, p.GroupID)
			if err != nil {
				return err
			}
			// A late task re-opens a group that already completed.
			if group.Status == models.GroupStatusCompleted {
				if err := store.ReactivateGroupTx(tx, p.GroupID); err != nil {
					return err
				}
				b.logger.Info("group reactivated by late task creation", "group_id", p.GroupID)
			}
		}

		id, err := store.AllocateIDTx(tx, target.Prefix)
		if err != nil {
			return err
		}

		status := models.TaskStatusPending
		if len(p.BlockedBy) > 0 {
			status = models.TaskStatusBlocked
		}

		_, err = store.InsertTaskTx(tx, store.InsertTaskParams{
			ID:          id,
			GroupID:     p.GroupID,
			ParentID:    p.ParentID,
			Title:       p.Title,
			Description: p.Description,
			TaskType:    p.TaskType,
			Priority:    p.Priority,
			AssignedTo:  p.AssignedTo,
			CreatedBy:   p.CreatedBy,
			RevisionOf:  p.RevisionOf,
			Status:      status,
		})
		if err != nil {
			return err
		}

		for _, blocker := range p.BlockedBy {
			if err := store.InsertDependencyTx(tx, id, blocker, b.nowString()); err != nil {
				return err
			}
		}

		if status == models.TaskStatusBlocked {
			remaining, err := store.UnresolvedDependencyCountTx(tx, id)
			if err != nil {
				return err
			}
			if remaining == 0 {
				if _, err := store.UnblockTaskTx(tx, id); err != nil {
					return err
				}
			}
		}

		task, err = store.GetTask(tx, id)
		if err != nil {
			return err
		}

		return b.recordTx(tx, &pending, event(models.EventTaskCreated, id, p.GroupID, p.CreatedBy, map[string]string{
			"title":       p.Title,
			"task_type":   p.TaskType,
			"assigned_to": p.AssignedTo,
			"status":      string(task.Status),
		}))
	})
	if err != nil {
		return nil, err
	}
	b.publish(pending)
	return task, nil
}

// CreateGoal enters a top-level goal: a fresh group plus its seed task
// assigned to the configured goal role.
func (b *Board) CreateGoal(title, description, createdBy string) (*models.Group, *models.Task, error) {
	goalRole := b.team.GoalRole
	if goalRole == "" {
		return nil, nil, fmt.Errorf("no goal_role configured")
	}

	group, err := b.CreateGroup(title, "goal: "+title, createdBy)
	if err != nil {
		return nil, nil, err
	}
	task, err := b.CreateTask(CreateTaskParams{
		GroupID:     group.ID,
		Title:       title,
		Description: description,
		TaskType:    "goal",
		Priority:    models.PriorityHigh,
		AssignedTo:  goalRole,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return nil, nil, err
	}

	b.publish([]*models.Event{event(models.EventGoalCreated, task.ID, group.ID, createdBy, map[string]string{
		"title": title,
	})})
	return group, task, nil
}

// ClaimTask atomically claims the next pending task for role. Returns
// (nil, nil) when the queue is empty.
func (b *Board) ClaimTask(role, instanceID string) (*models.Task, error) {
	var task *models.Task
	var pending []*models.Event
	err := b.store.Transact(func(tx *sql.Tx) error {
		pending = pending[:0]
		claimed, err := store.ClaimNextTaskTx(tx, role, instanceID, b.nowString())
		if err != nil || claimed == nil {
			return err
		}
		task = claimed
		return b.recordTx(tx, &pending, event(models.EventTaskClaimed, claimed.ID, claimed.GroupID, instanceID, map[string]string{
			"correlation_id": fmt.Sprintf("%s-%d", claimed.ID, b.now().Unix()),
			"priority":       string(claimed.Priority),
		}))
	})
	if err != nil {
		return nil, err
	}
	b.publish(pending)
	return task, nil
}

// CompleteTask marks an in_progress task completed with no output.
func (b *Board) CompleteTask(taskID string) (*models.Task, error) {
	return b.CompleteTaskWithOutput(taskID, "")
}

// CompleteTaskWithOutput marks an in_progress task completed, storing at
// most MaxOutputChars of output, resolves dependents, and checks group
// completion. A task already terminal is logged and returned unchanged.
func (b *Board) CompleteTaskWithOutput(taskID, output string) (*models.Task, error) {
	var task *models.Task
	var pending []*models.Event
	err := b.store.Transact(func(tx *sql.Tx) error {
		pending = pending[:0]
		ok, err := store.CompleteTaskTx(tx, taskID, truncateOutput(output), b.nowString())
		if err != nil {
			return err
		}
		current, err := store.GetTask(tx, taskID)
		if err != nil {
			return err
		}
		task = current
		if !ok {
			if current.Status.IsTerminal() {
				b.logger.Warn("duplicate terminal transition ignored",
					"task_id", taskID, "status", current.Status, "attempted", "completed")
				return nil
			}
			return models.ErrIllegalTransition(taskID, current.Status, models.TaskStatusCompleted)
		}

		var data map[string]string
		if current.StartedAt != nil {
			secs := b.now().Sub(*current.StartedAt).Seconds()
			data = map[string]string{"duration_sec": strconv.FormatFloat(secs, 'f', 3, 64)}
		}
		if err := b.recordTx(tx, &pending, event(models.EventTaskCompleted, taskID, current.GroupID, current.ClaimedBy, data)); err != nil {
			return err
		}
		if err := b.resolveDependenciesTx(tx, &pending, taskID); err != nil {
			return err
		}
		return b.checkGroupCompletionTx(tx, &pending, current.GroupID)
	})
	if err != nil {
		return nil, err
	}
	b.publish(pending)
	return task, nil
}

// FailTask marks an in_progress task failed, cascade-fails blocked
// dependents, cancels pending direct children, and checks group completion.
func (b *Board) FailTask(taskID, reason string) (*models.Task, error) {
	return b.terminate(taskID, models.TaskStatusFailed, reason)
}

// CancelTask cancels a non-terminal task with the same downstream cascade
// as failure.
func (b *Board) CancelTask(taskID, reason string) (*models.Task, error) {
	return b.terminate(taskID, models.TaskStatusCancelled, reason)
}

func (b *Board) terminate(taskID string, to models.TaskStatus, reason string) (*models.Task, error) {
	var task *models.Task
	var pending []*models.Event
	err := b.store.Transact(func(tx *sql.Tx) error {
		pending = pending[:0]
		now := b.nowString()

		var ok bool
		var err error
		var eventType string
		switch to {
		case models.TaskStatusFailed:
			ok, err = store.FailTaskTx(tx, taskID, now)
			eventType = models.EventTaskFailed
		case models.TaskStatusCancelled:
			ok, err = store.CancelTaskTx(tx, taskID, now)
			eventType = models.EventTaskCancelled
		default:
			return fmt.Errorf("terminate: unsupported status %s", to)
		}
		if err != nil {
			return err
		}

		current, err := store.GetTask(tx, taskID)
		if err != nil {
			return err
		}
		task = current
		if !ok {
			if current.Status.IsTerminal() {
				b.logger.Warn("duplicate terminal transition ignored",
					"task_id", taskID, "status", current.Status, "attempted", string(to))
				return nil
			}
			return models.ErrIllegalTransition(taskID, current.Status, to)
		}

		var data map[string]string
		if reason != "" {
			data = map[string]string{"reason": reason}
		}
		if err := b.recordTx(tx, &pending, event(eventType, taskID, current.GroupID, current.ClaimedBy, data)); err != nil {
			return err
		}
		if err := b.cascadeTx(tx, &pending, taskID, now); err != nil {
			return err
		}
		return b.checkGroupCompletionTx(tx, &pending, current.GroupID)
	})
	if err != nil {
		return nil, err
	}
	b.publish(pending)
	return task, nil
}

// cascadeTx propagates a terminal failure/cancellation: blocked dependents
// fail transitively and pending direct children are cancelled.
func (b *Board) cascadeTx(tx *sql.Tx, pending *[]*models.Event, taskID, now string) error {
	cascaded, err := store.CascadeFailBlockedTx(tx, taskID, now)
	if err != nil {
		return err
	}
	for _, id := range cascaded {
		ev := event(models.EventTaskFailed, id, "", "", map[string]string{"reason": "blocker failed: " + taskID})
		if err := b.recordTx(tx, pending, ev); err != nil {
			return err
		}
	}

	children, err := store.CancelPendingChildrenTx(tx, taskID, now)
	if err != nil {
		return err
	}
	for _, id := range children {
		ev := event(models.EventTaskCancelled, id, "", "", map[string]string{"reason": "parent terminal: " + taskID})
		if err := b.recordTx(tx, pending, ev); err != nil {
			return err
		}
	}
	return nil
}

// RejectTask moves a non-terminal task to rejected with a reason.
func (b *Board) RejectTask(taskID, reason string) (*models.Task, error) {
	var task *models.Task
	var pending []*models.Event
	err := b.store.Transact(func(tx *sql.Tx) error {
		pending = pending[:0]
		ok, err := store.RejectTaskTx(tx, taskID, reason, b.nowString())
		if err != nil {
			return err
		}
		current, err := store.GetTask(tx, taskID)
		if err != nil {
			return err
		}
		task = current
		if !ok {
			if current.Status.IsTerminal() {
				b.logger.Warn("duplicate terminal transition ignored",
					"task_id", taskID, "status", current.Status, "attempted", "rejected")
				return nil
			}
			return models.ErrIllegalTransition(taskID, current.Status, models.TaskStatusRejected)
		}
		if err := b.recordTx(tx, &pending, event(models.EventTaskRejected, taskID, current.GroupID, "", map[string]string{
			"reason": reason,
		})); err != nil {
			return err
		}
		return b.checkGroupCompletionTx(tx, &pending, current.GroupID)
	})
	if err != nil {
		return nil, err
	}
	b.publish(pending)
	return task, nil
}

// RetryTask resets a failed, rejected, or cancelled task to pending.
func (b *Board) RetryTask(taskID string) (*models.Task, error) {
	var task *models.Task
	var pending []*models.Event
	err := b.store.Transact(func(tx *sql.Tx) error {
		pending = pending[:0]
		ok, err := store.RetryTaskTx(tx, taskID)
		if err != nil {
			return err
		}
		current, err := store.GetTask(tx, taskID)
		if err != nil {
			return err
		}
		task = current
		if !ok {
			return models.ErrIllegalTransition(taskID, current.Status, models.TaskStatusPending)
		}

		// The group may have completed while this task was terminal.
		if current.GroupID != "" {
			if err := store.ReactivateGroupTx(tx, current.GroupID); err != nil {
				return err
			}
		}
		return b.recordTx(tx, &pending, event(models.EventTaskRetried, taskID, current.GroupID, "", nil))
	})
	if err != nil {
		return nil, err
	}
	b.publish(pending)
	return task, nil
}

// ReassignTask moves a pending or blocked task to another role.
func (b *Board) ReassignTask(taskID, newRole string) (*models.Task, error) {
	if b.team.Role(newRole) == nil {
		return nil, models.NewPreconditionError(models.KindInvalidRole,
			fmt.Sprintf("unknown role: %s", newRole),
			map[string]string{"assigned_to": newRole})
	}

	var task *models.Task
	var pending []*models.Event
	err := b.store.Transact(func(tx *sql.Tx) error {
		pending = pending[:0]
		ok, err := store.ReassignTaskTx(tx, taskID, newRole)
		if err != nil {
			return err
		}
		current, err := store.GetTask(tx, taskID)
		if err != nil {
			return err
		}
		task = current
		if !ok {
			return models.ErrIllegalTransition(taskID, current.Status, current.Status)
		}
		return b.recordTx(tx, &pending, event(models.EventTaskReassigned, taskID, current.GroupID, "", map[string]string{
			"assigned_to": newRole,
		}))
	})
	if err != nil {
		return nil, err
	}
	b.publish(pending)
	return task, nil
}

// ChangeTaskPriority updates a non-terminal task's priority.
func (b *Board) ChangeTaskPriority(taskID string, priority models.Priority) (*models.Task, error) {
	var task *models.Task
	err := b.store.Transact(func(tx *sql.Tx) error {
		ok, err := store.UpdateTaskPriorityTx(tx, taskID, priority)
		if err != nil {
			return err
		}
		current, err := store.GetTask(tx, taskID)
		if err != nil {
			return err
		}
		task = current
		if !ok {
			return models.ErrIllegalTransition(taskID, current.Status, current.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// resolveDependenciesTx resolves edges blocked by completedID and emits
// task.unblocked for dependents that became pending.
func (b *Board) resolveDependenciesTx(tx *sql.Tx, pending *[]*models.Event, completedID string) error {
	unblocked, err := store.ResolveDependenciesTx(tx, completedID, b.nowString())
	if err != nil {
		return err
	}
	for _, id := range unblocked {
		ev := event(models.EventTaskUnblocked, id, "", "", map[string]string{"unblocked_by": completedID})
		if err := b.recordTx(tx, pending, ev); err != nil {
			return err
		}
	}
	return nil
}

// checkGroupCompletionTx completes the group when no member task remains
// non-terminal. Idempotent; safe to race between completing workers.
func (b *Board) checkGroupCompletionTx(tx *sql.Tx, pending *[]*models.Event, groupID string) error {
	if groupID == "" {
		return nil
	}
	open, err := store.GroupHasOpenTasksTx(tx, groupID)
	if err != nil || open {
		return err
	}
	done, err := store.CompleteGroupTx(tx, groupID, b.nowString())
	if err != nil || !done {
		return err
	}
	return b.recordTx(tx, pending, event(models.EventGroupCompleted, "", groupID, "", nil))
}

// RecordUsage persists execution metrics reported by a runner.
func (b *Board) RecordUsage(u *models.Usage) error {
	return b.store.Transact(func(tx *sql.Tx) error {
		return store.InsertUsageTx(tx, u)
	})
}

// GetTask loads one task with dependencies, from the read pool.
func (b *Board) GetTask(taskID string) (*models.Task, error) {
	return store.GetTask(b.reader(), taskID)
}

// ListTasks lists tasks matching the filter.
func (b *Board) ListTasks(filter store.TaskFilter) ([]*models.Task, error) {
	return store.ListTasks(b.reader(), filter)
}

// SearchTasks runs a paginated text search.
func (b *Board) SearchTasks(text string, filter store.TaskFilter, limit, offset int) ([]*models.Task, int, error) {
	return store.SearchTasks(b.reader(), text, filter, limit, offset)
}

// GetGroup loads one group.
func (b *Board) GetGroup(groupID string) (*models.Group, error) {
	return store.GetGroup(b.reader(), groupID)
}

// ListGroups lists groups, optionally by status.
func (b *Board) ListGroups(status string) ([]*models.Group, error) {
	return store.ListGroups(b.reader(), status)
}
