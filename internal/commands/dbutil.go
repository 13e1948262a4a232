package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/board"
	"github.com/dotcommander/taskbrew/internal/bus"
	"github.com/dotcommander/taskbrew/internal/output"
	"github.com/dotcommander/taskbrew/internal/store"
)

type printedError struct {
	err error
}

func (e printedError) Error() string {
	// Intentionally hide the original error: the JSON error response is the output.
	return "error already printed"
}

// isPrinted reports whether err was already surfaced to the user.
func isPrinted(err error) bool {
	var pe printedError
	return errors.As(err, &pe)
}

func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	slog.Error("command error", "error", err.Error())
	_ = output.PrintError(err)
	return printedError{err: err}
}

var (
	teamPathOverrideMu sync.RWMutex
	teamPathOverride   string
)

func setTeamPathOverride(path string) {
	teamPathOverrideMu.Lock()
	defer teamPathOverrideMu.Unlock()
	teamPathOverride = path
}

// resolveTeamPath finds the team definition file.
// Order: --team flag, TASKBREW_TEAM_CONFIG, config.yaml team_config,
// ~/.config/taskbrew/team.yaml.
func resolveTeamPath() (string, error) {
	teamPathOverrideMu.RLock()
	override := teamPathOverride
	teamPathOverrideMu.RUnlock()
	if override != "" {
		return override, nil
	}

	if envPath := os.Getenv("TASKBREW_TEAM_CONFIG"); envPath != "" {
		return envPath, nil
	}

	cfg, err := app.LoadSettings()
	if err != nil {
		return "", err
	}
	if cfg.TeamConfig != "" {
		return cfg.TeamConfig, nil
	}

	dir, err := app.ConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "team.yaml")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no team config found: set --team, TASKBREW_TEAM_CONFIG, or create %s", path)
	}
	return path, nil
}

func loadTeam() (*app.Team, error) {
	path, err := resolveTeamPath()
	if err != nil {
		return nil, err
	}
	return app.LoadTeam(path)
}

// withStore opens the store read/write for one command invocation.
func withStore(fn func(st *store.Store) error) error {
	dbPath, err := app.GetDBPath()
	if err != nil {
		return cmdErr(err)
	}

	st, err := store.Open(dbPath, app.DefaultPoolSize)
	if err != nil {
		return cmdErr(err)
	}
	defer func() { _ = st.Close() }()

	if err := fn(st); err != nil {
		return cmdErr(err)
	}
	return nil
}

// withBoard builds a full board (team config required) for mutating commands.
func withBoard(fn func(b *board.Board) error) error {
	team, err := loadTeam()
	if err != nil {
		return cmdErr(err)
	}
	return withStore(func(st *store.Store) error {
		eventBus := bus.New(nil)
		defer eventBus.Close()

		b, err := board.New(st, eventBus, nil, team, nil)
		if err != nil {
			return err
		}
		return fn(b)
	})
}
