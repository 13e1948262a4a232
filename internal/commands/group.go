package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/output"
	"github.com/dotcommander/taskbrew/internal/store"
)

// NewGroupCmd creates the group command group.
func NewGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Inspect task groups",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newGroupListCmd())
	cmd.AddCommand(newGroupTasksCmd())
	cmd.AddCommand(newGroupUsageCmd())
	return cmd
}

func newGroupListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")

			var groups []*models.Group
			if err := withStore(func(st *store.Store) error {
				list, err := store.ListGroups(st.Reader(), status)
				groups = list
				return err
			}); err != nil {
				return err
			}

			type resp struct {
				Groups []*models.Group `json:"groups"`
				Count  int             `json:"count"`
			}
			return output.PrintSuccess(resp{Groups: groups, Count: len(groups)})
		},
	}
	cmd.Flags().String("status", "", "Filter: active|completed")
	return cmd
}

func newGroupTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks <group-id>",
		Short: "List a group's tasks in creation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tasks []*models.Task
			if err := withStore(func(st *store.Store) error {
				list, err := store.ListGroupTasks(st.Reader(), args[0])
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
}

func newGroupUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "usage <group-id>",
		Short: "Aggregate token and cost usage for a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var totals *store.UsageTotals
			if err := withStore(func(st *store.Store) error {
				t, err := store.SumUsage(st.Reader(), args[0])
				totals = t
				return err
			}); err != nil {
				return err
			}
			return output.PrintSuccess(totals)
		},
	}
}
