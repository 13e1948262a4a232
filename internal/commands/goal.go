package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dotcommander/taskbrew/internal/board"
	"github.com/dotcommander/taskbrew/internal/output"
)

// NewGoalCmd enters a top-level goal for the configured goal role.
func NewGoalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goal",
		Short: "Create a goal (group + seed task for the goal role)",
		RunE: func(cmd *cobra.Command, args []string) error {
			title, _ := cmd.Flags().GetString("title")
			desc, _ := cmd.Flags().GetString("desc")
			if title == "" {
				return cmdErr(errors.New("--title is required"))
			}

			type resp struct {
				GroupID string `json:"group_id"`
				TaskID  string `json:"task_id"`
			}
			var r resp
			if err := withBoard(func(b *board.Board) error {
				group, task, err := b.CreateGoal(title, desc, "human")
				if err != nil {
					return err
				}
				r = resp{GroupID: group.ID, TaskID: task.ID}
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(r)
		},
	}

	cmd.Flags().String("title", "", "Goal title (required)")
	cmd.Flags().String("desc", "", "Goal description")
	return cmd
}
