package models

// Lifecycle event types emitted on the bus and persisted to the events table.
// Dashboards subscribe to these over /ws/events; "*" subscribes to all.
const (
	EventTaskCreated    = "task.created"
	EventTaskClaimed    = "task.claimed"
	EventTaskCompleted  = "task.completed"
	EventTaskFailed     = "task.failed"
	EventTaskRejected   = "task.rejected"
	EventTaskCancelled  = "task.cancelled"
	EventTaskRetried    = "task.retried"
	EventTaskReassigned = "task.reassigned"
	EventTaskRecovered  = "task.recovered"
	EventTaskUnblocked  = "task.unblocked"

	EventGroupCreated   = "group.created"
	EventGroupCompleted = "group.completed"

	EventGoalCreated = "goal.created"

	EventAgentStatusChanged = "agent.status_changed"
	EventAgentScaledUp      = "agent.scaled_up"
	EventAgentScaledDown    = "agent.scaled_down"
)
