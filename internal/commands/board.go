package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/output"
	"github.com/dotcommander/taskbrew/internal/store"
)

// NewBoardCmd shows the task board bucketed by status.
func NewBoardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show tasks grouped by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, _ := cmd.Flags().GetString("group-id")

			columns := map[string][]*models.Task{}
			if err := withStore(func(st *store.Store) error {
				tasks, err := store.ListTasks(st.Reader(), store.TaskFilter{GroupID: groupID})
				if err != nil {
					return err
				}
				for _, status := range models.AllTaskStatuses() {
					columns[string(status)] = []*models.Task{}
				}
				for _, task := range tasks {
					columns[string(task.Status)] = append(columns[string(task.Status)], task)
				}
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(columns)
		},
	}

	cmd.Flags().String("group-id", "", "Scope the board to one group")
	return cmd
}
