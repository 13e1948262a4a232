package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

const cliTeamYAML = `
goal_role: coordinator
group_prefixes:
  coordinator: FEAT
roles:
  coordinator:
    prefix: PM
    accepts: [goal]
    routing_mode: restricted
    routes_to:
      - role: developer
        task_types: [implementation]
    can_create_groups: true
  developer:
    prefix: DEV
    accepts: [implementation, bug_fix]
`

// setupCLI points the command helpers at a throwaway database and team file.
func setupCLI(t *testing.T) {
	t.Helper()
	dir := t.TempDir()

	app.SetDBPathOverride(filepath.Join(dir, "taskbrew.db"))
	t.Cleanup(func() { app.SetDBPathOverride("") })

	teamPath := filepath.Join(dir, "team.yaml")
	require.NoError(t, os.WriteFile(teamPath, []byte(cliTeamYAML), 0o600))
	setTeamPathOverride(teamPath)
	t.Cleanup(func() { setTeamPathOverride("") })
}

func TestGoalCmd_CreatesGroupAndSeedTask(t *testing.T) {
	setupCLI(t)

	cmd := NewGoalCmd()
	require.NoError(t, cmd.Flags().Set("title", "Ship login flow"))
	require.NoError(t, cmd.RunE(cmd, nil))

	err := withStore(func(st *store.Store) error {
		groups, err := store.ListGroups(st.Reader(), "")
		require.NoError(t, err)
		require.Len(t, groups, 1)
		require.Equal(t, "FEAT-001", groups[0].ID)

		task, err := store.GetTask(st.Reader(), "PM-001")
		require.NoError(t, err)
		require.Equal(t, models.TaskStatusPending, task.Status)
		require.Equal(t, "coordinator", task.AssignedTo)
		require.Equal(t, "Ship login flow", task.Title)
		return nil
	})
	require.NoError(t, err)
}

func TestTaskCmds_Lifecycle(t *testing.T) {
	setupCLI(t)

	create := newTaskCreateCmd()
	require.NoError(t, create.Flags().Set("title", "Implement rate limiter"))
	require.NoError(t, create.Flags().Set("type", "implementation"))
	require.NoError(t, create.Flags().Set("assigned-to", "developer"))
	require.NoError(t, create.RunE(create, nil))

	setPriority := newTaskSetPriorityCmd()
	require.NoError(t, setPriority.Flags().Set("priority", "high"))
	require.NoError(t, setPriority.RunE(setPriority, []string{"DEV-001"}))

	cancel := newTaskCancelCmd()
	require.NoError(t, cancel.Flags().Set("reason", "descoped"))
	require.NoError(t, cancel.RunE(cancel, []string{"DEV-001"}))

	retry := newTaskRetryCmd()
	require.NoError(t, retry.RunE(retry, []string{"DEV-001"}))

	err := withStore(func(st *store.Store) error {
		task, err := store.GetTask(st.Reader(), "DEV-001")
		require.NoError(t, err)
		require.Equal(t, models.TaskStatusPending, task.Status)
		require.Equal(t, models.PriorityHigh, task.Priority)
		return nil
	})
	require.NoError(t, err)
}

func TestTaskCreateCmd_RejectsUnknownRole(t *testing.T) {
	setupCLI(t)

	create := newTaskCreateCmd()
	require.NoError(t, create.Flags().Set("title", "Nope"))
	require.NoError(t, create.Flags().Set("type", "implementation"))
	require.NoError(t, create.Flags().Set("assigned-to", "ghost"))

	err := create.RunE(create, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestResolveTeamPath_PrefersOverride(t *testing.T) {
	setTeamPathOverride("/tmp/override.yaml")
	t.Cleanup(func() { setTeamPathOverride("") })
	t.Setenv("TASKBREW_TEAM_CONFIG", "/tmp/env.yaml")

	path, err := resolveTeamPath()
	require.NoError(t, err)
	require.Equal(t, "/tmp/override.yaml", path)
}

func TestResolveTeamPath_FallsBackToEnv(t *testing.T) {
	setTeamPathOverride("")
	t.Setenv("TASKBREW_TEAM_CONFIG", "/tmp/env.yaml")

	path, err := resolveTeamPath()
	require.NoError(t, err)
	require.Equal(t, "/tmp/env.yaml", path)
}
