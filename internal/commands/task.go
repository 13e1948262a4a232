package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dotcommander/taskbrew/internal/board"
	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/output"
	"github.com/dotcommander/taskbrew/internal/store"
)

// NewTaskCmd creates the task command group.
func NewTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Create, inspect, and transition tasks. Terminal statuses: completed, failed, rejected, cancelled",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskGetCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskSearchCmd())
	cmd.AddCommand(newTaskCompleteCmd())
	cmd.AddCommand(newTaskFailCmd())
	cmd.AddCommand(newTaskCancelCmd())
	cmd.AddCommand(newTaskRejectCmd())
	cmd.AddCommand(newTaskRetryCmd())
	cmd.AddCommand(newTaskReassignCmd())
	cmd.AddCommand(newTaskSetPriorityCmd())

	return cmd
}

func newTaskCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			desc, _ := cmd.Flags().GetString("desc")
			groupID, _ := cmd.Flags().GetString("group-id")
			taskType, _ := cmd.Flags().GetString("type")
			assignedTo, _ := cmd.Flags().GetString("assigned-to")
			priority, _ := cmd.Flags().GetString("priority")
			parentID, _ := cmd.Flags().GetString("parent-id")
			blockedBy, _ := cmd.Flags().GetStringSlice("blocked-by")
			createdBy, _ := cmd.Flags().GetString("created-by")

			if title == "" {
				return cmdErr(errors.New("--title is required"))
			}
			if taskType == "" || assignedTo == "" {
				return cmdErr(errors.New("--type and --assigned-to are required"))
			}
			if createdBy == "" {
				createdBy = "human"
			}

			var task *models.Task
			if err := withBoard(func(b *board.Board) error {
				t, err := b.CreateTask(board.CreateTaskParams{
					GroupID:     groupID,
					ParentID:    parentID,
					Title:       title,
					Description: desc,
					TaskType:    taskType,
					Priority:    models.Priority(priority),
					AssignedTo:  assignedTo,
					CreatedBy:   createdBy,
					BlockedBy:   blockedBy,
				})
				task = t
				return err
			}); err != nil {
				return err
			}
			return output.PrintSuccess(task)
		},
	}

	cmd.Flags().String("title", "", "Task title (required)")
	cmd.Flags().String("desc", "", "Task description")
	cmd.Flags().String("group-id", "", "Group to attach the task to")
	cmd.Flags().String("type", "", "Task type (required)")
	cmd.Flags().String("assigned-to", "", "Target role (required)")
	cmd.Flags().String("priority", "", "Priority: critical|high|medium|low (default medium)")
	cmd.Flags().String("parent-id", "", "Parent task id")
	cmd.Flags().StringSlice("blocked-by", nil, "Blocker task ids")
	cmd.Flags().String("created-by", "", "Creator identity (default human)")
	return cmd
}

func newTaskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var task *models.Task
			if err := withStore(func(st *store.Store) error {
				t, err := store.GetTask(st.Reader(), args[0])
				task = t
				return err
			}); err != nil {
				return err
			}
			return output.PrintSuccess(task)
		},
	}
	return cmd
}

func newTaskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks with optional filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.TaskFilter{}
			status, _ := cmd.Flags().GetString("status")
			filter.Status = models.TaskStatus(status)
			filter.GroupID, _ = cmd.Flags().GetString("group-id")
			filter.AssignedTo, _ = cmd.Flags().GetString("assigned-to")
			filter.TaskType, _ = cmd.Flags().GetString("type")
			priority, _ := cmd.Flags().GetString("priority")
			filter.Priority = models.Priority(priority)

			var tasks []*models.Task
			if err := withStore(func(st *store.Store) error {
				list, err := store.ListTasks(st.Reader(), filter)
				tasks = list
				return err
			}); err != nil {
				return err
			}

			type resp struct {
				Tasks []*models.Task `json:"tasks"`
				Count int            `json:"count"`
			}
			return output.PrintSuccess(resp{Tasks: tasks, Count: len(tasks)})
		},
	}

	cmd.Flags().String("status", "", "Filter by status")
	cmd.Flags().String("group-id", "", "Filter by group")
	cmd.Flags().String("assigned-to", "", "Filter by role")
	cmd.Flags().String("type", "", "Filter by task type")
	cmd.Flags().String("priority", "", "Filter by priority")
	return cmd
}

func newTaskSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over task titles and descriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			type resp struct {
				Tasks  []*models.Task `json:"tasks"`
				Total  int            `json:"total"`
				Limit  int            `json:"limit"`
				Offset int            `json:"offset"`
			}
			var r resp
			if err := withStore(func(st *store.Store) error {
				tasks, total, err := store.SearchTasks(st.Reader(), args[0], store.TaskFilter{}, limit, offset)
				if err != nil {
					return err
				}
				r = resp{Tasks: tasks, Total: total, Limit: limit, Offset: offset}
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(r)
		},
	}

	cmd.Flags().Int("limit", 50, "Maximum results")
	cmd.Flags().Int("offset", 0, "Result offset")
	return cmd
}

// transitionCmd builds the shared shape of complete/fail/cancel/reject: one
// task-id argument plus one string flag fed into the board call.
func transitionCmd(use, short, flagName, flagHelp string, required bool, apply func(b *board.Board, id, arg string) (*models.Task, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg string
			if flagName != "" {
				arg, _ = cmd.Flags().GetString(flagName)
				if required && arg == "" {
					return cmdErr(errors.New("--" + flagName + " is required"))
				}
			}

			var task *models.Task
			if err := withBoard(func(b *board.Board) error {
				t, err := apply(b, args[0], arg)
				task = t
				return err
			}); err != nil {
				return err
			}
			return output.PrintSuccess(task)
		},
	}
	if flagName != "" {
		cmd.Flags().String(flagName, "", flagHelp)
	}
	return cmd
}

func newTaskCompleteCmd() *cobra.Command {
	return transitionCmd("complete", "Mark an in-progress task completed",
		"output", "Result text to store with the task", false,
		func(b *board.Board, id, arg string) (*models.Task, error) {
			return b.CompleteTaskWithOutput(id, arg)
		})
}

func newTaskFailCmd() *cobra.Command {
	return transitionCmd("fail", "Mark a task failed (cascades to blocked dependents)",
		"reason", "Failure reason", false,
		func(b *board.Board, id, arg string) (*models.Task, error) {
			return b.FailTask(id, arg)
		})
}

func newTaskCancelCmd() *cobra.Command {
	return transitionCmd("cancel", "Cancel a task",
		"reason", "Cancellation reason", false,
		func(b *board.Board, id, arg string) (*models.Task, error) {
			return b.CancelTask(id, arg)
		})
}

func newTaskRejectCmd() *cobra.Command {
	return transitionCmd("reject", "Reject a task with a reason",
		"reason", "Rejection reason (required)", true,
		func(b *board.Board, id, arg string) (*models.Task, error) {
			return b.RejectTask(id, arg)
		})
}

func newTaskRetryCmd() *cobra.Command {
	return transitionCmd("retry", "Return a terminal task to the queue",
		"", "", false,
		func(b *board.Board, id, _ string) (*models.Task, error) {
			return b.RetryTask(id)
		})
}

func newTaskReassignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reassign <task-id>",
		Short: "Move a queued task to a different role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("to")
			if role == "" {
				return cmdErr(errors.New("--to is required"))
			}

			var task *models.Task
			if err := withBoard(func(b *board.Board) error {
				t, err := b.ReassignTask(args[0], role)
				task = t
				return err
			}); err != nil {
				return err
			}
			return output.PrintSuccess(task)
		},
	}
	cmd.Flags().String("to", "", "Target role (required)")
	return cmd
}

func newTaskSetPriorityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-priority <task-id>",
		Short: "Change a task's priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			priority, _ := cmd.Flags().GetString("priority")
			p := models.Priority(priority)
			if !p.Valid() {
				return cmdErr(errors.New("--priority must be critical, high, medium, or low"))
			}

			var task *models.Task
			if err := withBoard(func(b *board.Board) error {
				t, err := b.ChangeTaskPriority(args[0], p)
				task = t
				return err
			}); err != nil {
				return err
			}
			return output.PrintSuccess(task)
		},
	}
	cmd.Flags().String("priority", "", "New priority (required)")
	return cmd
}
