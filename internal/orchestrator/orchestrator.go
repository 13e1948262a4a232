// Package orchestrator supervises the whole engine: it builds the object
// graph from validated configuration, runs startup recovery, spawns agent
// loops, and owns graceful shutdown.
package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dotcommander/taskbrew/internal/agent"
	"github.com/dotcommander/taskbrew/internal/api"
	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/board"
	"github.com/dotcommander/taskbrew/internal/bus"
	"github.com/dotcommander/taskbrew/internal/clock"
	"github.com/dotcommander/taskbrew/internal/llm"
	"github.com/dotcommander/taskbrew/internal/metrics"
	"github.com/dotcommander/taskbrew/internal/scaler"
	"github.com/dotcommander/taskbrew/internal/store"
)

const (
	// recoveryInterval drives the background stale-instance scan.
	recoveryInterval = 30 * time.Second

	// shutdownDrain bounds how long phase 2 waits for in-flight tasks.
	shutdownDrain = 30 * time.Second
)

// RunnerFactory builds the LLM runner for a role. Injectable for tests.
type RunnerFactory func(role *app.Role) (llm.Runner, error)

// Orchestrator owns every long-lived component of a running engine.
type Orchestrator struct {
	team    *app.Team
	store   *store.Store
	bus     *bus.Bus
	board   *board.Board
	mgr     *agent.InstanceManager
	scaler  *scaler.Scaler
	server  *api.Server
	metrics *metrics.Metrics
	clock   clock.Clock
	logger  *slog.Logger

	newRunner RunnerFactory

	mu           sync.Mutex
	loops        map[string]*agent.Loop
	nextSpawn    map[string]int
	shuttingDown bool

	recoveryStop chan struct{}
	recoveryWG   sync.WaitGroup
}

// Options tune orchestrator construction. Zero values take defaults.
type Options struct {
	Clock         clock.Clock
	Logger        *slog.Logger
	RunnerFactory RunnerFactory
}

// New opens the store, runs migrations, and builds (but does not start) the
// component graph.
func New(team *app.Team, opts Options) (*Orchestrator, error) {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newRunner := opts.RunnerFactory
	if newRunner == nil {
		newRunner = func(role *app.Role) (llm.Runner, error) {
			return llm.NewCLIRunner(role.Command, role.Model)
		}
	}

	st, err := store.Open(team.DBPath, team.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	eventBus := bus.New(logger)
	b, err := board.New(st, eventBus, clk, team, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init board: %w", err)
	}
	mgr := agent.NewInstanceManager(st, clk)

	m := metrics.New(nil)
	m.Observe(eventBus)

	o := &Orchestrator{
		team:         team,
		store:        st,
		bus:          eventBus,
		board:        b,
		mgr:          mgr,
		server:       api.NewServer(b, mgr, logger),
		metrics:      m,
		clock:        clk,
		logger:       logger.With("component", "orchestrator"),
		newRunner:    newRunner,
		loops:        make(map[string]*agent.Loop),
		nextSpawn:    make(map[string]int),
		recoveryStop: make(chan struct{}),
	}
	o.scaler = scaler.New(b, mgr, clk, logger, o.spawnInstance, o.stopInstance)
	return o, nil
}

// Board exposes the task board (CLI commands drive it directly).
func (o *Orchestrator) Board() *board.Board { return o.board }

// Start runs startup recovery, spawns the configured agent loops, and starts
// the background services. It does not block.
func (o *Orchestrator) Start() error {
	recovered, err := o.board.RecoverOrphanedTasks()
	if err != nil {
		return fmt.Errorf("orphan recovery: %w", err)
	}
	if len(recovered) > 0 {
		o.logger.Info("recovered orphaned tasks", "count", len(recovered))
	}

	unstuck, err := o.board.RecoverStuckBlockedTasks()
	if err != nil {
		return fmt.Errorf("stuck-blocked recovery: %w", err)
	}
	if len(unstuck) > 0 {
		o.logger.Info("recovered stuck blocked tasks", "count", len(unstuck))
	}

	o.recoveryWG.Add(1)
	go o.recoveryLoop()

	for _, name := range o.team.RoleNames() {
		role := o.team.Role(name)
		for i := 1; i <= role.MaxInstances; i++ {
			instanceID := fmt.Sprintf("%s-%d", role.Name, i)
			if err := o.startLoop(instanceID, role, false); err != nil {
				return err
			}
		}
		o.mu.Lock()
		o.nextSpawn[role.Name] = role.MaxInstances + 1
		o.mu.Unlock()
	}

	if o.anyAutoScale() {
		o.scaler.Start()
	}
	return nil
}

// Serve starts the HTTP API and blocks until it stops.
func (o *Orchestrator) Serve(addr string) error {
	return o.server.Start(addr)
}

// Shutdown stops all loops, drains in-flight tasks up to the drain window,
// and closes the store. Safe to call more than once.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.shuttingDown {
		o.mu.Unlock()
		return nil
	}
	o.shuttingDown = true
	loops := make([]*agent.Loop, 0, len(o.loops))
	for _, l := range o.loops {
		loops = append(loops, l)
	}
	o.mu.Unlock()

	o.logger.Info("shutting down", "loops", len(loops))

	o.scaler.Stop()
	close(o.recoveryStop)
	o.recoveryWG.Wait()

	// Stop() waits for each loop's in-flight task; bound the drain.
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, l := range loops {
			wg.Add(1)
			go func(l *agent.Loop) {
				defer wg.Done()
				l.Stop()
			}(l)
		}
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownDrain):
		o.logger.Warn("drain window expired; abandoning in-flight tasks")
	case <-ctx.Done():
		o.logger.Warn("shutdown context cancelled before drain finished")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.server.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("http shutdown failed", "error", err)
	}

	o.bus.Close()
	return o.store.Close()
}

// startLoop builds and starts one agent loop.
func (o *Orchestrator) startLoop(instanceID string, role *app.Role, autoSpawned bool) error {
	runner, err := o.newRunner(role)
	if err != nil {
		return fmt.Errorf("runner for role %s: %w", role.Name, err)
	}
	l := agent.NewLoop(instanceID, role, o.board, o.mgr, runner, o.clock, o.logger)
	if err := l.Start(autoSpawned); err != nil {
		return err
	}
	o.mu.Lock()
	o.loops[instanceID] = l
	o.mu.Unlock()
	return nil
}

// spawnInstance is the scaler's scale-up callback.
func (o *Orchestrator) spawnInstance(role *app.Role) (string, error) {
	o.mu.Lock()
	if o.shuttingDown {
		o.mu.Unlock()
		return "", fmt.Errorf("shutting down")
	}
	n := o.nextSpawn[role.Name]
	if n == 0 {
		n = role.MaxInstances + 1
	}
	o.nextSpawn[role.Name] = n + 1
	o.mu.Unlock()

	instanceID := fmt.Sprintf("%s-%d", role.Name, n)
	if err := o.startLoop(instanceID, role, true); err != nil {
		return "", err
	}
	return instanceID, nil
}

// stopInstance is the scaler's scale-down callback.
func (o *Orchestrator) stopInstance(instanceID string) error {
	o.mu.Lock()
	l, ok := o.loops[instanceID]
	delete(o.loops, instanceID)
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown instance %s", instanceID)
	}
	l.Stop()
	return nil
}

// recoveryLoop periodically reclaims tasks held by stale instances and
// refreshes the per-role queue-depth gauges.
func (o *Orchestrator) recoveryLoop() {
	defer o.recoveryWG.Done()
	ticker := time.NewTicker(recoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.recoveryStop:
			return
		case <-ticker.C:
			reclaimed, err := o.board.RecoverStaleInstances(board.DefaultStaleAfter)
			if err != nil {
				o.logger.Error("stale-instance recovery failed", "error", err)
			} else if len(reclaimed) > 0 {
				o.logger.Info("reclaimed tasks from stale instances", "count", len(reclaimed))
			}
			o.updateQueueGauges()
		}
	}
}

func (o *Orchestrator) updateQueueGauges() {
	for _, name := range o.team.RoleNames() {
		n, err := o.claimableCount(name)
		if err != nil {
			continue
		}
		o.metrics.SetQueueDepth(name, n)
	}
}

func (o *Orchestrator) claimableCount(role string) (int, error) {
	var n int
	err := o.store.Transact(func(tx *sql.Tx) error {
		count, err := store.CountClaimableTx(tx, role)
		n = count
		return err
	})
	return n, err
}

func (o *Orchestrator) anyAutoScale() bool {
	for _, name := range o.team.RoleNames() {
		if o.team.Role(name).AutoScale.Enabled {
			return true
		}
	}
	return false
}
