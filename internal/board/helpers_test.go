package board

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/bus"
	"github.com/dotcommander/taskbrew/internal/clock"
	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

// testTeam builds a three-role team: a restricted coordinator that routes to
// developer and qa, with modest guardrails.
func testTeam() *app.Team {
	team := &app.Team{
		Guardrails: app.Guardrails{
			MaxTaskDepth:        5,
			MaxTasksPerGroup:    10,
			RejectionCycleLimit: 3,
		},
		GroupPrefixes: map[string]string{"coordinator": "GRP"},
		GoalRole:      "coordinator",
		Roles: map[string]*app.Role{
			"coordinator": {
				Prefix:      "PM",
				Accepts:     []string{"goal"},
				RoutingMode: app.RoutingModeRestricted,
				RoutesTo: []app.Route{
					{Role: "developer"},
					{Role: "qa", TaskTypes: []string{"testing"}},
				},
			},
			"developer": {
				Prefix:  "DEV",
				Accepts: []string{"implementation", "bug_fix", "revision"},
			},
			"qa": {
				Prefix:  "QA",
				Accepts: []string{"testing"},
			},
		},
	}
	team.ApplyDefaults()
	return team
}

// eventSink collects every bus emission for assertions.
type eventSink struct {
	mu     sync.Mutex
	events []*models.Event
}

func (s *eventSink) record(ev *models.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *eventSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func (s *eventSink) waitForType(t *testing.T, eventType string) *models.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, ev := range s.events {
			if ev.Type == eventType {
				s.mu.Unlock()
				return ev
			}
		}
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event %s never emitted", eventType)
	return nil
}

func newTestBoard(t *testing.T) (*Board, *eventSink, *clock.Fake) {
	t.Helper()

	st, err := store.Open(":memory:", 2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	eventBus := bus.New(nil)
	t.Cleanup(eventBus.Close)

	sink := &eventSink{}
	eventBus.Subscribe("*", sink.record)

	clk := &clock.Fake{T: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	b, err := New(st, eventBus, clk, testTeam(), nil)
	require.NoError(t, err)
	return b, sink, clk
}

// mustCreate creates a human-originated task for role with defaults.
func mustCreate(t *testing.T, b *Board, role, taskType string, mutate func(*CreateTaskParams)) *models.Task {
	t.Helper()
	p := CreateTaskParams{
		Title:      "some work",
		TaskType:   taskType,
		AssignedTo: role,
		CreatedBy:  "human",
	}
	if mutate != nil {
		mutate(&p)
	}
	task, err := b.CreateTask(p)
	require.NoError(t, err)
	return task
}

// claimAndComplete drives one task through claim and completion.
func claimAndComplete(t *testing.T, b *Board, role, instanceID, wantID string) {
	t.Helper()
	task, err := b.ClaimTask(role, instanceID)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Equal(t, wantID, task.ID)
	_, err = b.CompleteTask(task.ID)
	require.NoError(t, err)
}
