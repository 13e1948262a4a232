package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/output"
	"github.com/dotcommander/taskbrew/internal/store"
)

// NewAgentsCmd lists registered agent instances.
func NewAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List agent instances and their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")

			var instances []*models.AgentInstance
			if err := withStore(func(st *store.Store) error {
				list, err := store.ListInstances(st.Reader(), role)
				instances = list
				return err
			}); err != nil {
				return err
			}

			type resp struct {
				Agents []*models.AgentInstance `json:"agents"`
				Count  int                     `json:"count"`
			}
			return output.PrintSuccess(resp{Agents: instances, Count: len(instances)})
		},
	}

	cmd.Flags().String("role", "", "Filter by role")
	return cmd
}
