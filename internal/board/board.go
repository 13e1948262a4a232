// Package board is the orchestration core: every task-graph mutation goes
// through it. The board enforces status transitions, dependency resolution,
// routing guardrails, and group completion, persisting lifecycle events and
// fanning them out on the bus.
package board

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/bus"
	"github.com/dotcommander/taskbrew/internal/clock"
	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

// MaxOutputChars caps the stored output_text of a completed task.
const MaxOutputChars = 2000

// Board coordinates all task-graph mutations over the store.
type Board struct {
	store  *store.Store
	bus    *bus.Bus
	clock  clock.Clock
	team   *app.Team
	logger *slog.Logger
}

// New wires a board. Registers every role prefix and group prefix so ID
// allocation never hits an unregistered sequence at runtime.
func New(st *store.Store, eventBus *bus.Bus, clk clock.Clock, team *app.Team, logger *slog.Logger) (*Board, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Board{store: st, bus: eventBus, clock: clk, team: team, logger: logger}

	err := st.Transact(func(tx *sql.Tx) error {
		for _, name := range team.RoleNames() {
			if err := store.RegisterPrefixTx(tx, team.Roles[name].Prefix); err != nil {
				return err
			}
		}
		if err := store.RegisterPrefixTx(tx, app.DefaultGroupPrefix); err != nil {
			return err
		}
		for _, prefix := range team.GroupPrefixes {
			if prefix == "" {
				continue
			}
			if err := store.RegisterPrefixTx(tx, prefix); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Team returns the board's team configuration.
func (b *Board) Team() *app.Team { return b.team }

// Store exposes the underlying store for read-path consumers (API handlers).
func (b *Board) Store() *store.Store { return b.store }

// Bus returns the event bus.
func (b *Board) Bus() *bus.Bus { return b.bus }

func (b *Board) now() time.Time    { return b.clock.Now() }
func (b *Board) nowString() string { return store.FormatTime(b.clock.Now()) }
func (b *Board) reader() *sql.DB   { return b.store.Reader() }

// event builds a lifecycle event with an encoded data payload.
func event(eventType, taskID, groupID, agentID string, data map[string]string) *models.Event {
	ev := &models.Event{Type: eventType, TaskID: taskID, GroupID: groupID, AgentID: agentID}
	if len(data) > 0 {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}
	return ev
}

// recordTx persists ev inside the transaction and stages it for bus emission
// after commit.
func (b *Board) recordTx(tx *sql.Tx, pending *[]*models.Event, ev *models.Event) error {
	id, err := store.InsertEventTx(tx, ev)
	if err != nil {
		return err
	}
	ev.ID = id
	ev.CreatedAt = b.now()
	*pending = append(*pending, ev)
	return nil
}

// publish emits staged events on the bus. Called only after a successful
// commit so subscribers never observe rolled-back state.
func (b *Board) publish(events []*models.Event) {
	for _, ev := range events {
		b.bus.Emit(ev)
	}
}

// NoteAgentStatus records an agent lifecycle transition as a persisted event.
func (b *Board) NoteAgentStatus(instanceID, role string, status models.InstanceStatus, reason string) error {
	var pending []*models.Event
	err := b.store.Transact(func(tx *sql.Tx) error {
		pending = pending[:0]
		data := map[string]string{"status": string(status), "role": role}
		if reason != "" {
			data["reason"] = reason
		}
		return b.recordTx(tx, &pending, event(models.EventAgentStatusChanged, "", "", instanceID, data))
	})
	if err != nil {
		return err
	}
	b.publish(pending)
	return nil
}

// NoteAgentScaled records an auto-scaling decision as a persisted event.
func (b *Board) NoteAgentScaled(instanceID, role string, up bool, reason string) error {
	eventType := models.EventAgentScaledUp
	if !up {
		eventType = models.EventAgentScaledDown
	}
	var pending []*models.Event
	err := b.store.Transact(func(tx *sql.Tx) error {
		pending = pending[:0]
		return b.recordTx(tx, &pending, event(eventType, "", "", instanceID, map[string]string{
			"role":   role,
			"reason": reason,
		}))
	})
	if err != nil {
		return err
	}
	b.publish(pending)
	return nil
}

// truncateOutput enforces the stored-output cap, backing up to a rune
// boundary so the cut never persists invalid UTF-8.
func truncateOutput(s string) string {
	if len(s) <= MaxOutputChars {
		return s
	}
	cut := MaxOutputChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
