package board

import (
	"database/sql"
	"time"

	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

// DefaultStaleAfter is how long an instance may go without a heartbeat
// before its claimed tasks are reclaimed.
const DefaultStaleAfter = 90 * time.Second

// RecoverOrphanedTasks resets every in_progress task to pending. Run at
// startup before any worker registers; an in_progress row at that point can
// only be a leftover from a crashed run.
func (b *Board) RecoverOrphanedTasks() ([]string, error) {
	var recovered []string
	var pending []*models.Event
	err := b.store.Transact(func(tx *sql.Tx) error {
		pending = pending[:0]
		ids, err := store.RecoverOrphanedTasksTx(tx)
		if err != nil {
			return err
		}
		recovered = ids
		for _, id := range ids {
			ev := event(models.EventTaskRecovered, id, "", "", map[string]string{"reason": "orphaned"})
			if err := b.recordTx(tx, &pending, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.publish(pending)
	if len(recovered) > 0 {
		b.logger.Info("recovered orphaned tasks", "count", len(recovered))
	}
	return recovered, nil
}

// RecoverStaleInstances finds instances silent for longer than staleAfter,
// reclaims their in_progress tasks, and resets the instances to idle. A
// frozen loop may still be alive, so the instance stays in the pool; the
// status write also refreshes last_heartbeat, which keeps a dead one from
// being reprocessed every scan. Returns the reclaimed task IDs.
func (b *Board) RecoverStaleInstances(staleAfter time.Duration) ([]string, error) {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	var reclaimed []string
	var pending []*models.Event
	err := b.store.Transact(func(tx *sql.Tx) error {
		pending = pending[:0]
		stale, err := store.StaleInstancesTx(tx, b.now().Add(-staleAfter))
		if err != nil {
			return err
		}
		if len(stale) == 0 {
			reclaimed = nil
			return nil
		}

		ids, err := store.ReclaimTasksClaimedByTx(tx, stale)
		if err != nil {
			return err
		}
		reclaimed = ids

		now := b.nowString()
		for _, instanceID := range stale {
			if err := store.UpdateInstanceStatusTx(tx, instanceID, models.InstanceStatusIdle, "", now); err != nil {
				return err
			}
			ev := event(models.EventAgentStatusChanged, "", "", instanceID, map[string]string{
				"status": "idle",
				"reason": "stale heartbeat",
			})
			if err := b.recordTx(tx, &pending, ev); err != nil {
				return err
			}
		}
		for _, taskID := range ids {
			ev := event(models.EventTaskRecovered, taskID, "", "", map[string]string{"reason": "stale instance"})
			if err := b.recordTx(tx, &pending, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.publish(pending)
	if len(reclaimed) > 0 {
		b.logger.Warn("reclaimed tasks from stale instances", "count", len(reclaimed))
	}
	return reclaimed, nil
}

// RecoverStuckBlockedTasks finds blocked tasks whose blockers are all
// terminal but whose edges were never resolved, then either unblocks them
// (all blockers completed) or fails them (some blocker did not complete).
func (b *Board) RecoverStuckBlockedTasks() ([]string, error) {
	var recovered []string
	var pending []*models.Event
	err := b.store.Transact(func(tx *sql.Tx) error {
		pending = pending[:0]
		recovered = nil

		stuck, err := store.FindStuckBlockedTx(tx)
		if err != nil {
			return err
		}
		now := b.nowString()
		for _, taskID := range stuck {
			succeeded, err := store.BlockersSucceededTx(tx, taskID)
			if err != nil {
				return err
			}
			if err := store.ResolveEdgesOfTaskTx(tx, taskID, now); err != nil {
				return err
			}

			if succeeded {
				ok, err := store.UnblockTaskTx(tx, taskID)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				ev := event(models.EventTaskRecovered, taskID, "", "", map[string]string{"reason": "stuck blocked"})
				if err := b.recordTx(tx, &pending, ev); err != nil {
					return err
				}
			} else {
				ok, err := store.FailBlockedTaskTx(tx, taskID, now)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				ev := event(models.EventTaskFailed, taskID, "", "", map[string]string{"reason": "blocker failed before unblock"})
				if err := b.recordTx(tx, &pending, ev); err != nil {
					return err
				}
				if err := b.cascadeTx(tx, &pending, taskID, now); err != nil {
					return err
				}
			}
			recovered = append(recovered, taskID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.publish(pending)
	if len(recovered) > 0 {
		b.logger.Info("recovered stuck blocked tasks", "count", len(recovered))
	}
	return recovered, nil
}
