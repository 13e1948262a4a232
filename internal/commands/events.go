package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/output"
	"github.com/dotcommander/taskbrew/internal/store"
)

// NewEventsCmd replays persisted lifecycle events.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List persisted lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.EventFilter{}
			filter.Type, _ = cmd.Flags().GetString("type")
			filter.TaskID, _ = cmd.Flags().GetString("task-id")
			filter.GroupID, _ = cmd.Flags().GetString("group-id")
			afterID, _ := cmd.Flags().GetInt64("after-id")
			filter.AfterID = afterID
			limit, _ := cmd.Flags().GetInt("limit")

			var events []*models.Event
			if err := withStore(func(st *store.Store) error {
				list, err := store.ListEvents(st.Reader(), filter, limit)
				events = list
				return err
			}); err != nil {
				return err
			}

			type resp struct {
				Events []*models.Event `json:"events"`
				Count  int             `json:"count"`
			}
			return output.PrintSuccess(resp{Events: events, Count: len(events)})
		},
	}

	cmd.Flags().String("type", "", "Filter by event type")
	cmd.Flags().String("task-id", "", "Filter by task")
	cmd.Flags().String("group-id", "", "Filter by group")
	cmd.Flags().Int64("after-id", 0, "Only events after this id")
	cmd.Flags().Int("limit", 100, "Maximum events")
	return cmd
}
