package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/output"
	"github.com/dotcommander/taskbrew/internal/store"
)

// NewDBCmd creates database utilities.
func NewDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database utilities",
	}

	cmd.AddCommand(newDBPathCmd())
	cmd.AddCommand(newDBStatusCmd())
	return cmd
}

func newDBPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the resolved database path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.GetDBPath()
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				Path string `json:"path"`
			}
			return output.PrintSuccess(resp{Path: path})
		},
	}
}

func newDBStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Open the database, run pending migrations, and report counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			type resp struct {
				Tasks  map[models.TaskStatus]int `json:"tasks_by_status"`
				Events map[string]int            `json:"events_by_type"`
			}
			var r resp
			if err := withStore(func(st *store.Store) error {
				tasks, err := store.CountTasksByStatus(st.Reader())
				if err != nil {
					return err
				}
				events, err := store.EventCountsByType(st.Reader(), "")
				if err != nil {
					return err
				}
				r = resp{Tasks: tasks, Events: events}
				return nil
			}); err != nil {
				return err
			}
			return output.PrintSuccess(r)
		},
	}
}
