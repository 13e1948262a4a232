package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/board"
	"github.com/dotcommander/taskbrew/internal/llm"
	"github.com/dotcommander/taskbrew/internal/models"
)

func orchTeam() *app.Team {
	team := &app.Team{
		DBPath: ":memory:",
		Roles: map[string]*app.Role{
			"developer": {
				Prefix:       "DEV",
				Accepts:      []string{"implementation"},
				MaxInstances: 2,
				PollInterval: 10 * time.Millisecond,
			},
		},
	}
	team.ApplyDefaults()
	return team
}

type stubRunner struct{ output string }

func (r *stubRunner) Run(context.Context, string) (*llm.Result, error) {
	return &llm.Result{Output: r.output}, nil
}

func newOrchestrator(t *testing.T, team *app.Team) *Orchestrator {
	t.Helper()
	o, err := New(team, Options{
		RunnerFactory: func(*app.Role) (llm.Runner, error) {
			return &stubRunner{output: "stub result"}, nil
		},
	})
	require.NoError(t, err)
	return o
}

func TestStartSpawnsConfiguredInstances(t *testing.T) {
	o := newOrchestrator(t, orchTeam())
	require.NoError(t, o.Start())
	defer func() { require.NoError(t, o.Shutdown(context.Background())) }()

	require.Eventually(t, func() bool {
		instances, err := o.mgr.List("developer")
		return err == nil && len(instances) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEndToEndTaskExecution(t *testing.T) {
	o := newOrchestrator(t, orchTeam())
	require.NoError(t, o.Start())
	defer func() { require.NoError(t, o.Shutdown(context.Background())) }()

	task, err := o.Board().CreateTask(board.CreateTaskParams{
		Title:      "implement feature",
		TaskType:   "implementation",
		AssignedTo: "developer",
		CreatedBy:  "human",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := o.Board().GetTask(task.ID)
		return err == nil && got.Status == models.TaskStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	got, err := o.Board().GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "stub result", got.OutputText)
}

func TestStartupRecoversOrphans(t *testing.T) {
	o := newOrchestrator(t, orchTeam())

	// Simulate a crash artifact: a claimed task with no live process.
	task, err := o.Board().CreateTask(board.CreateTaskParams{
		Title:      "was in flight",
		TaskType:   "implementation",
		AssignedTo: "developer",
		CreatedBy:  "human",
	})
	require.NoError(t, err)
	claimed, err := o.Board().ClaimTask("developer", "developer-9")
	require.NoError(t, err)
	require.Equal(t, task.ID, claimed.ID)

	require.NoError(t, o.Start())
	defer func() { require.NoError(t, o.Shutdown(context.Background())) }()

	// Recovery put it back to pending; a spawned loop then completes it.
	require.Eventually(t, func() bool {
		got, err := o.Board().GetTask(task.ID)
		return err == nil && got.Status == models.TaskStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestShutdownIsIdempotent(t *testing.T) {
	o := newOrchestrator(t, orchTeam())
	require.NoError(t, o.Start())

	require.NoError(t, o.Shutdown(context.Background()))
	require.NoError(t, o.Shutdown(context.Background()))
}

func TestSpawnAndStopInstance(t *testing.T) {
	o := newOrchestrator(t, orchTeam())
	require.NoError(t, o.Start())
	defer func() { require.NoError(t, o.Shutdown(context.Background())) }()

	role := o.team.Role("developer")
	instanceID, err := o.spawnInstance(role)
	require.NoError(t, err)
	assert.Equal(t, "developer-3", instanceID)

	require.Eventually(t, func() bool {
		inst, err := o.mgr.Get(instanceID)
		return err == nil && inst.AutoSpawned
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, o.stopInstance(instanceID))
	inst, err := o.mgr.Get(instanceID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusStopped, inst.Status)

	require.Error(t, o.stopInstance("developer-99"))
}
