package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/orchestrator"
)

// NewServeCmd runs the full engine: agent loops, recovery, auto-scaler, and
// the dashboard API.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator and dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			listenAddr, _ := cmd.Flags().GetString("listen")

			team, err := loadTeam()
			if err != nil {
				return cmdErr(err)
			}
			if team.DBPath == "" {
				dbPath, err := app.GetDBPath()
				if err != nil {
					return cmdErr(err)
				}
				team.DBPath = dbPath
			}
			if listenAddr == "" {
				listenAddr = team.ListenAddr
			}
			if listenAddr == "" {
				listenAddr = ":8330"
			}

			o, err := orchestrator.New(team, orchestrator.Options{})
			if err != nil {
				return cmdErr(err)
			}
			if err := o.Start(); err != nil {
				_ = o.Shutdown(context.Background())
				return cmdErr(err)
			}

			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				sig := <-sigCh
				slog.Info("signal received, shutting down", "signal", sig.String())

				ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
				defer cancel()
				if err := o.Shutdown(ctx); err != nil {
					slog.Error("shutdown failed", "error", err)
				}
			}()

			if err := o.Serve(listenAddr); err != nil {
				return cmdErr(err)
			}
			return nil
		},
	}

	cmd.Flags().String("listen", "", "HTTP listen address (default :8330)")
	return cmd
}
