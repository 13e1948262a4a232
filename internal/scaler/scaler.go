// Package scaler grows and shrinks per-role agent pools from queue depth.
package scaler

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/board"
	"github.com/dotcommander/taskbrew/internal/clock"
	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

// DefaultEvaluateInterval is how often the scaler inspects every role.
const DefaultEvaluateInterval = 30 * time.Second

// SpawnFunc starts one auto-spawned instance for a role and returns its
// instance id.
type SpawnFunc func(role *app.Role) (string, error)

// StopFunc stops a previously spawned instance.
type StopFunc func(instanceID string) error

// Scaler periodically evaluates each auto-scaling role and spawns or stops
// instances through the injected callbacks. Idle time is tracked in memory:
// the scaler owns the auto-spawned loops, so a restart simply restarts the
// idle timers.
type Scaler struct {
	board  *board.Board
	mgr    agentLister
	clock  clock.Clock
	logger *slog.Logger
	spawn  SpawnFunc
	stop   StopFunc

	interval time.Duration

	mu        sync.Mutex
	idleSince map[string]time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// agentLister is the slice of the instance manager the scaler needs.
type agentLister interface {
	List(role string) ([]*models.AgentInstance, error)
}

// New wires a scaler. spawn and stop are required.
func New(b *board.Board, instances agentLister, clk clock.Clock, logger *slog.Logger, spawn SpawnFunc, stop StopFunc) *Scaler {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scaler{
		board:     b,
		mgr:       instances,
		clock:     clk,
		logger:    logger.With("component", "scaler"),
		spawn:     spawn,
		stop:      stop,
		interval:  DefaultEvaluateInterval,
		idleSince: make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}
}

// Start runs the evaluation loop in a goroutine.
func (s *Scaler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.EvaluateAll()
			}
		}
	}()
}

// Stop halts the evaluation loop.
func (s *Scaler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// EvaluateAll runs one scaling pass over every auto-scaling role.
func (s *Scaler) EvaluateAll() {
	for _, name := range s.board.Team().RoleNames() {
		role := s.board.Team().Role(name)
		if !role.AutoScale.Enabled {
			continue
		}
		if err := s.evaluateRole(role); err != nil {
			s.logger.Error("scaling evaluation failed", "role", role.Name, "error", err)
		}
	}
}

func (s *Scaler) evaluateRole(role *app.Role) error {
	backlog, err := s.backlog(role.Name)
	if err != nil {
		return err
	}

	instances, err := s.mgr.List(role.Name)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	var active int
	var idle []*models.AgentInstance
	for _, inst := range instances {
		switch inst.Status {
		case models.InstanceStatusStopped:
			continue
		case models.InstanceStatusIdle:
			idle = append(idle, inst)
		}
		active++
	}
	s.trackIdle(idle, now)

	pressure := float64(backlog) / float64(max(1, len(idle)))
	if pressure > role.AutoScale.ScaleUpThreshold && active < role.MaxInstances {
		return s.scaleUp(role, backlog, len(idle))
	}

	if role.AutoScale.ScaleDownIdleMin > 0 && backlog == 0 {
		return s.scaleDown(role, idle, now)
	}
	return nil
}

// backlog counts tasks an instance of role could claim right now.
func (s *Scaler) backlog(role string) (int, error) {
	var n int
	err := s.board.Store().Transact(func(tx *sql.Tx) error {
		count, err := store.CountClaimableTx(tx, role)
		n = count
		return err
	})
	return n, err
}

func (s *Scaler) scaleUp(role *app.Role, backlog, idle int) error {
	instanceID, err := s.spawn(role)
	if err != nil {
		return fmt.Errorf("spawn instance for %s: %w", role.Name, err)
	}
	s.logger.Info("scaled up", "role", role.Name, "instance", instanceID, "backlog", backlog, "idle", idle)
	return s.board.NoteAgentScaled(instanceID, role.Name, true,
		fmt.Sprintf("backlog %d over %d idle", backlog, idle))
}

func (s *Scaler) scaleDown(role *app.Role, idle []*models.AgentInstance, now time.Time) error {
	threshold := time.Duration(role.AutoScale.ScaleDownIdleMin) * time.Minute

	s.mu.Lock()
	var victim *models.AgentInstance
	for _, inst := range idle {
		if !inst.AutoSpawned {
			continue
		}
		since, ok := s.idleSince[inst.InstanceID]
		if !ok || now.Sub(since) < threshold {
			continue
		}
		victim = inst
		break
	}
	if victim != nil {
		delete(s.idleSince, victim.InstanceID)
	}
	s.mu.Unlock()

	if victim == nil {
		return nil
	}

	if err := s.stop(victim.InstanceID); err != nil {
		return fmt.Errorf("stop instance %s: %w", victim.InstanceID, err)
	}
	s.logger.Info("scaled down", "role", role.Name, "instance", victim.InstanceID)
	return s.board.NoteAgentScaled(victim.InstanceID, role.Name, false,
		fmt.Sprintf("idle longer than %s", threshold))
}

// trackIdle starts idle timers for newly idle instances and clears timers
// for instances that went back to work.
func (s *Scaler) trackIdle(idle []*models.AgentInstance, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]bool, len(idle))
	for _, inst := range idle {
		current[inst.InstanceID] = true
		if _, ok := s.idleSince[inst.InstanceID]; !ok {
			s.idleSince[inst.InstanceID] = now
		}
	}
	for id := range s.idleSince {
		if !current[id] {
			delete(s.idleSince, id)
		}
	}
}
