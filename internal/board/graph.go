package board

import (
	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

// GraphEdge is one dependency edge in a group graph.
type GraphEdge struct {
	From string `json:"from"` // blocker
	To   string `json:"to"`   // dependent
}

// GroupGraph is the dependency view of one group for the dashboard.
type GroupGraph struct {
	Group *models.Group  `json:"group"`
	Tasks []*models.Task `json:"tasks"`
	Edges []GraphEdge    `json:"edges"`
}

// GetGroupGraph loads a group, its tasks, and the dependency edges among
// them.
func (b *Board) GetGroupGraph(groupID string) (*GroupGraph, error) {
	group, err := store.GetGroup(b.reader(), groupID)
	if err != nil {
		return nil, err
	}
	tasks, err := store.ListGroupTasks(b.reader(), groupID)
	if err != nil {
		return nil, err
	}

	deps, err := store.ListGroupDependencies(b.reader(), groupID)
	if err != nil {
		return nil, err
	}
	edges := make([]GraphEdge, 0, len(deps))
	for _, d := range deps {
		edges = append(edges, GraphEdge{From: d.BlockedBy, To: d.TaskID})
	}
	return &GroupGraph{Group: group, Tasks: tasks, Edges: edges}, nil
}

// BoardColumn is one status column of the kanban view.
type BoardColumn struct {
	Status models.TaskStatus `json:"status"`
	Tasks  []*models.Task    `json:"tasks"`
}

// GetBoard returns every task bucketed by status in display order,
// optionally scoped to one group.
func (b *Board) GetBoard(groupID string) ([]BoardColumn, error) {
	var tasks []*models.Task
	var err error
	if groupID != "" {
		tasks, err = store.ListGroupTasks(b.reader(), groupID)
	} else {
		tasks, err = store.ListTasks(b.reader(), store.TaskFilter{})
	}
	if err != nil {
		return nil, err
	}

	byStatus := make(map[models.TaskStatus][]*models.Task)
	for _, task := range tasks {
		byStatus[task.Status] = append(byStatus[task.Status], task)
	}

	columns := make([]BoardColumn, 0, len(models.AllTaskStatuses()))
	for _, status := range models.AllTaskStatuses() {
		columns = append(columns, BoardColumn{Status: status, Tasks: byStatus[status]})
	}
	return columns, nil
}
