package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/board"
	"github.com/dotcommander/taskbrew/internal/clock"
	"github.com/dotcommander/taskbrew/internal/llm"
	"github.com/dotcommander/taskbrew/internal/models"
)

const (
	// maxRetries is the number of re-attempts after the first failed run.
	maxRetries = 3

	defaultRetryBaseDelay = 5 * time.Second
	heartbeatInterval     = 15 * time.Second
)

// Workspace provisions an isolated working directory per task run, so the
// runner cannot touch state outside its checkout.
type Workspace interface {
	Prepare(taskID string) (string, error)
	Cleanup(taskID string) error
}

// Loop polls the board for one agent instance: claim, execute through the
// runner, report the outcome, repeat.
type Loop struct {
	instanceID string
	role       *app.Role
	board      *board.Board
	mgr        *InstanceManager
	runner     llm.Runner
	workspace  Workspace
	clock      clock.Clock
	logger     *slog.Logger

	// retryBaseDelay is the first backoff step; each retry triples it.
	retryBaseDelay time.Duration

	wasPaused bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLoop builds a worker loop for one instance of a role.
func NewLoop(instanceID string, role *app.Role, b *board.Board, mgr *InstanceManager, runner llm.Runner, clk clock.Clock, logger *slog.Logger) *Loop {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		instanceID:     instanceID,
		role:           role,
		board:          b,
		mgr:            mgr,
		runner:         runner,
		clock:          clk,
		logger:         logger.With("instance", instanceID, "role", role.Name),
		retryBaseDelay: defaultRetryBaseDelay,
		stopCh:         make(chan struct{}),
	}
}

// InstanceID returns the loop's instance identifier.
func (l *Loop) InstanceID() string { return l.instanceID }

// SetWorkspace installs an optional per-task workspace provider. Must be
// called before Start.
func (l *Loop) SetWorkspace(ws Workspace) { l.workspace = ws }

// Start registers the instance and runs the poll loop in a goroutine.
func (l *Loop) Start(autoSpawned bool) error {
	if err := l.mgr.Register(l.instanceID, l.role.Name, autoSpawned); err != nil {
		return fmt.Errorf("register instance %s: %w", l.instanceID, err)
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run()
	}()
	return nil
}

// Stop signals the loop to exit and waits for the current task to finish.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
	if err := l.mgr.UpdateStatus(l.instanceID, models.InstanceStatusStopped, ""); err != nil {
		l.logger.Warn("failed to mark instance stopped", "error", err)
	}
}

func (l *Loop) run() {
	for {
		worked, err := l.RunOnce()
		if err != nil {
			l.logger.Error("work cycle failed", "error", err)
		}

		// Busy instances poll again immediately; idle ones wait out the
		// configured interval.
		wait := l.role.PollInterval
		if worked {
			wait = 0
		}
		if !l.sleep(wait) {
			return
		}
	}
}

// RunOnce performs one poll cycle: claim a task if one is ready, execute it,
// and report completion or failure. Returns true when a task was processed.
func (l *Loop) RunOnce() (bool, error) {
	if l.mgr.IsRolePaused(l.role.Name) {
		if !l.wasPaused {
			l.wasPaused = true
			if err := l.mgr.UpdateStatus(l.instanceID, models.InstanceStatusPaused, ""); err != nil {
				return false, err
			}
			if err := l.board.NoteAgentStatus(l.instanceID, l.role.Name, models.InstanceStatusPaused, "role paused"); err != nil {
				l.logger.Warn("failed to record pause event", "error", err)
			}
		}
		return false, nil
	}
	if l.wasPaused {
		l.wasPaused = false
		if err := l.mgr.UpdateStatus(l.instanceID, models.InstanceStatusIdle, ""); err != nil {
			return false, err
		}
		if err := l.board.NoteAgentStatus(l.instanceID, l.role.Name, models.InstanceStatusIdle, "role resumed"); err != nil {
			l.logger.Warn("failed to record resume event", "error", err)
		}
	}

	if err := l.mgr.Heartbeat(l.instanceID); err != nil {
		l.logger.Warn("heartbeat failed", "error", err)
	}

	task, err := l.board.ClaimTask(l.role.Name, l.instanceID)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if task == nil {
		return false, nil
	}

	l.logger.Info("claimed task", "task", task.ID, "title", task.Title)
	if err := l.mgr.UpdateStatus(l.instanceID, models.InstanceStatusWorking, task.ID); err != nil {
		l.logger.Warn("failed to mark instance working", "error", err)
	}

	l.execute(task)

	if err := l.mgr.UpdateStatus(l.instanceID, models.InstanceStatusIdle, ""); err != nil {
		l.logger.Warn("failed to mark instance idle", "error", err)
	}
	return true, nil
}

// execute runs the task through the runner with retries and reports the
// terminal outcome to the board.
func (l *Loop) execute(task *models.Task) {
	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go l.heartbeatWhileWorking(heartbeatDone)

	prompt := BuildPrompt(l.loadPromptContext(task))

	// The workspace spans all attempts; a retry resumes in the same checkout.
	var workDir string
	if l.workspace != nil {
		dir, err := l.workspace.Prepare(task.ID)
		if err != nil {
			l.failTask(task.ID, fmt.Sprintf("workspace setup failed: %v", err))
			return
		}
		workDir = dir
		defer func() {
			if err := l.workspace.Cleanup(task.ID); err != nil {
				l.logger.Warn("workspace cleanup failed", "task", task.ID, "error", err)
			}
		}()
	}

	var result *llm.Result
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := l.retryBaseDelay
			for i := 1; i < attempt; i++ {
				delay *= 3
			}
			l.logger.Warn("retrying task", "task", task.ID, "attempt", attempt, "delay", delay, "error", lastErr)
			if !l.sleep(delay) {
				lastErr = errors.New("shutdown during retry backoff")
				break
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.role.MaxExecutionTime)
		if dr, ok := l.runner.(llm.DirRunner); ok && workDir != "" {
			result, lastErr = dr.RunIn(ctx, workDir, prompt)
		} else {
			result, lastErr = l.runner.Run(ctx, prompt)
		}
		cancel()

		if lastErr == nil {
			break
		}
		if errors.Is(lastErr, context.DeadlineExceeded) {
			// A timed-out run already consumed its full execution budget;
			// retrying would do the same again.
			l.failTask(task.ID, fmt.Sprintf("execution timed out after %s", l.role.MaxExecutionTime))
			return
		}
	}

	if lastErr != nil {
		l.failTask(task.ID, fmt.Sprintf("runner failed after %d attempts: %v", maxRetries+1, lastErr))
		return
	}

	usage := result.Usage
	usage.TaskID = task.ID
	if err := l.board.RecordUsage(&usage); err != nil {
		l.logger.Warn("failed to record usage", "task", task.ID, "error", err)
	}

	if _, err := l.board.CompleteTaskWithOutput(task.ID, result.Output); err != nil {
		l.logger.Error("failed to complete task", "task", task.ID, "error", err)
		return
	}
	l.logger.Info("completed task", "task", task.ID, "tokens_in", usage.InputTokens, "tokens_out", usage.OutputTokens)
}

func (l *Loop) failTask(taskID, reason string) {
	if _, err := l.board.FailTask(taskID, reason); err != nil {
		l.logger.Error("failed to mark task failed", "task", taskID, "error", err)
		return
	}
	l.logger.Warn("failed task", "task", taskID, "reason", reason)
}

// heartbeatWhileWorking keeps the instance's liveness fresh during long runs
// so the recovery scan does not reclaim its task.
func (l *Loop) heartbeatWhileWorking(done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			if err := l.mgr.Heartbeat(l.instanceID); err != nil {
				l.logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

// sleep waits for d, returning false when the loop is stopping.
func (l *Loop) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-l.stopCh:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-l.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
