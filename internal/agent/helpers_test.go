package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/board"
	"github.com/dotcommander/taskbrew/internal/bus"
	"github.com/dotcommander/taskbrew/internal/clock"
	"github.com/dotcommander/taskbrew/internal/llm"
	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

func testTeam() *app.Team {
	team := &app.Team{
		Roles: map[string]*app.Role{
			"developer": {
				Prefix:           "DEV",
				DisplayName:      "Developer",
				Accepts:          []string{"implementation", "bug_fix", "revision"},
				Produces:         []string{"testing"},
				MaxExecutionTime: 5 * time.Second,
				PollInterval:     10 * time.Millisecond,
			},
			"qa": {
				Prefix:      "QA",
				Accepts:     []string{"testing"},
				RoutingMode: app.RoutingModeRestricted,
				RoutesTo:    []app.Route{{Role: "developer", TaskTypes: []string{"bug_fix"}}},
			},
		},
	}
	team.ApplyDefaults()
	return team
}

type fixture struct {
	board *board.Board
	mgr   *InstanceManager
	clk   *clock.Fake
	team  *app.Team
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(":memory:", 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	eventBus := bus.New(nil)
	t.Cleanup(eventBus.Close)

	clk := &clock.Fake{T: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	team := testTeam()
	b, err := board.New(st, eventBus, clk, team, nil)
	require.NoError(t, err)

	return &fixture{
		board: b,
		mgr:   NewInstanceManager(st, clk),
		clk:   clk,
		team:  team,
	}
}

// newTestLoop builds a developer loop with fast retry backoff.
func (f *fixture) newTestLoop(t *testing.T, instanceID string, runner llm.Runner) *Loop {
	t.Helper()
	l := NewLoop(instanceID, f.team.Role("developer"), f.board, f.mgr, runner, f.clk, nil)
	l.retryBaseDelay = time.Millisecond
	require.NoError(t, f.mgr.Register(instanceID, "developer", false))
	return l
}

func (f *fixture) createTask(t *testing.T, mutate func(*board.CreateTaskParams)) *models.Task {
	t.Helper()
	p := board.CreateTaskParams{
		Title:      "implement login",
		TaskType:   "implementation",
		AssignedTo: "developer",
		CreatedBy:  "human",
	}
	if mutate != nil {
		mutate(&p)
	}
	task, err := f.board.CreateTask(p)
	require.NoError(t, err)
	return task
}

// fakeRunner scripts runner outcomes per call.
type fakeRunner struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	outcome func(call int, ctx context.Context) (*llm.Result, error)
}

func (r *fakeRunner) Run(ctx context.Context, prompt string) (*llm.Result, error) {
	r.mu.Lock()
	r.calls++
	call := r.calls
	r.prompts = append(r.prompts, prompt)
	r.mu.Unlock()
	return r.outcome(call, ctx)
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *fakeRunner) lastPrompt() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.prompts) == 0 {
		return ""
	}
	return r.prompts[len(r.prompts)-1]
}

func succeedWith(output string) *fakeRunner {
	return &fakeRunner{outcome: func(int, context.Context) (*llm.Result, error) {
		return &llm.Result{Output: output, Usage: models.Usage{InputTokens: 100, OutputTokens: 40, CostUSD: 0.01, Turns: 2}}, nil
	}}
}
