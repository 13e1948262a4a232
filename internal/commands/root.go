package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "taskbrew",
		Short:         "Task orchestration for teams of coding agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				return err
			}
			if dbPath, err := cmd.Flags().GetString("db-path"); err == nil && dbPath != "" {
				app.SetDBPathOverride(dbPath)
			}
			if teamPath, err := cmd.Flags().GetString("team"); err == nil && teamPath != "" {
				setTeamPathOverride(teamPath)
			}
			return nil
		},
	}

	root.PersistentFlags().String("db-path", "", "Override database path")
	root.PersistentFlags().String("team", "", "Path to team definition YAML (default: $TASKBREW_TEAM_CONFIG)")
	root.Flags().BoolP("version", "v", false, "version for taskbrew")

	root.AddCommand(NewServeCmd())
	root.AddCommand(NewGoalCmd())
	root.AddCommand(NewTaskCmd())
	root.AddCommand(NewBoardCmd())
	root.AddCommand(NewGroupCmd())
	root.AddCommand(NewAgentsCmd())
	root.AddCommand(NewEventsCmd())
	root.AddCommand(NewDBCmd())
	root.AddCommand(NewSchemaCmd())

	err := root.Execute()
	if err != nil && !isPrinted(err) {
		slog.Error("command failed", "error", err.Error())
	}
	return err
}
