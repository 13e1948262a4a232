package agent

import (
	"fmt"
	"strings"

	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

// maxSiblingTitles caps how many recent sibling titles appear in the prompt.
const maxSiblingTitles = 5

// PromptContext carries everything needed to assemble a task prompt.
// Missing fields degrade gracefully: their sections are omitted.
type PromptContext struct {
	Role     *app.Role
	Team     *app.Team
	Task     *models.Task
	Parent   *models.Task   // parent task, for its output artifact
	Original *models.Task   // the rejected task when Task.RevisionOf is set
	Siblings []*models.Task // other tasks in the same group
}

// BuildPrompt renders the prompt fed to the external runner: role identity,
// task detail, upstream artifacts, revision context, group progress, and
// routing hints.
func BuildPrompt(pc PromptContext) string {
	var b strings.Builder

	role := pc.Role
	fmt.Fprintf(&b, "You are %s, working as the %q role on a shared task board.\n", role.DisplayName, role.Name)
	if len(role.Produces) > 0 {
		fmt.Fprintf(&b, "Your outputs feed task types: %s.\n", strings.Join(role.Produces, ", "))
	}
	b.WriteString("\n")

	task := pc.Task
	fmt.Fprintf(&b, "## Task %s\n", task.ID)
	fmt.Fprintf(&b, "Title: %s\n", task.Title)
	fmt.Fprintf(&b, "Type: %s | Priority: %s\n", task.TaskType, task.Priority)
	if task.GroupID != "" {
		fmt.Fprintf(&b, "Group: %s\n", task.GroupID)
	}
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}

	if pc.Parent != nil && pc.Parent.OutputText != "" {
		fmt.Fprintf(&b, "\n## Upstream result (%s)\n%s\n", pc.Parent.ID, pc.Parent.OutputText)
	}

	if pc.Original != nil {
		fmt.Fprintf(&b, "\n## Revision context\nThis task revises %s.\n", pc.Original.ID)
		if pc.Original.RejectionReason != "" {
			fmt.Fprintf(&b, "Rejection reason: %s\n", pc.Original.RejectionReason)
		}
		if pc.Original.OutputText != "" {
			fmt.Fprintf(&b, "Previous output:\n%s\n", pc.Original.OutputText)
		}
	}

	writeSiblingSummary(&b, task, pc.Siblings)
	writeRoutingHints(&b, pc.Team, role)

	return b.String()
}

func writeSiblingSummary(b *strings.Builder, task *models.Task, siblings []*models.Task) {
	if len(siblings) == 0 {
		return
	}

	var completed, inProgress, pending int
	var recent []string
	for _, s := range siblings {
		if s.ID == task.ID {
			continue
		}
		switch s.Status {
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusInProgress:
			inProgress++
		case models.TaskStatusPending, models.TaskStatusBlocked:
			pending++
		}
		recent = append(recent, fmt.Sprintf("%s [%s] %s", s.ID, s.Status, s.Title))
	}
	if completed+inProgress+pending == 0 && len(recent) == 0 {
		return
	}
	if len(recent) > maxSiblingTitles {
		recent = recent[len(recent)-maxSiblingTitles:]
	}

	fmt.Fprintf(b, "\n## Group progress\n%d completed, %d in progress, %d open.\n", completed, inProgress, pending)
	for _, line := range recent {
		fmt.Fprintf(b, "- %s\n", line)
	}
}

func writeRoutingHints(b *strings.Builder, team *app.Team, role *app.Role) {
	if team == nil {
		return
	}

	b.WriteString("\n## Creating follow-up tasks\n")
	if role.RoutingMode == app.RoutingModeRestricted {
		if len(role.RoutesTo) == 0 {
			b.WriteString("You may not create tasks for other roles.\n")
			return
		}
		b.WriteString("You may route tasks to:\n")
		for _, route := range role.RoutesTo {
			target := team.Role(route.Role)
			types := route.TaskTypes
			if len(types) == 0 && target != nil {
				types = target.Accepts
			}
			fmt.Fprintf(b, "- %s (task types: %s)\n", route.Role, strings.Join(types, ", "))
		}
		return
	}

	b.WriteString("Available roles:\n")
	for _, name := range team.RoleNames() {
		r := team.Role(name)
		fmt.Fprintf(b, "- %s (accepts: %s)\n", name, strings.Join(r.Accepts, ", "))
	}
}

// loadPromptContext gathers the prompt inputs for a claimed task.
func (l *Loop) loadPromptContext(task *models.Task) PromptContext {
	pc := PromptContext{
		Role: l.role,
		Team: l.board.Team(),
		Task: task,
	}

	reader := l.board.Store().Reader()
	if task.ParentID != "" {
		if parent, err := store.GetTask(reader, task.ParentID); err == nil {
			pc.Parent = parent
		}
	}
	if task.RevisionOf != "" {
		if original, err := store.GetTask(reader, task.RevisionOf); err == nil {
			pc.Original = original
		}
	}
	if task.GroupID != "" {
		if siblings, err := store.ListGroupTasks(reader, task.GroupID); err == nil {
			pc.Siblings = siblings
		}
	}
	return pc
}
