package board

import (
	"database/sql"
	"fmt"

	"github.com/dotcommander/taskbrew/internal/app"
	"github.com/dotcommander/taskbrew/internal/models"
	"github.com/dotcommander/taskbrew/internal/store"
)

// rejectionChainTypes are the task types counted toward the rejection-cycle
// guardrail: each represents another round trip through review.
var rejectionChainTypes = map[string]bool{
	"revision": true,
	"bug_fix":  true,
}

// validateTarget checks that the target role exists and accepts the task
// type. The role-existence check applies to every creator; type acceptance
// only binds role creators (humans may assign anything).
func (b *Board) validateTarget(assignedTo, taskType, creatorRole string) (*app.Role, error) {
	target := b.team.Role(assignedTo)
	if target == nil {
		return nil, models.NewPreconditionError(models.KindInvalidRole,
			fmt.Sprintf("unknown role: %s", assignedTo),
			map[string]string{"assigned_to": assignedTo})
	}
	if creatorRole == "" {
		return target, nil
	}
	if !target.AcceptsType(taskType) {
		return nil, models.NewPreconditionError(models.KindUnacceptedType,
			fmt.Sprintf("role %s does not accept task type %q", assignedTo, taskType),
			map[string]string{"assigned_to": assignedTo, "task_type": taskType})
	}
	return target, nil
}

// validateRouting enforces the creator's routing mode. Open mode permits any
// target; restricted mode requires a matching routes_to entry.
func (b *Board) validateRouting(creatorRole, assignedTo, taskType string) error {
	creator := b.team.Role(creatorRole)
	if creator == nil || creator.RoutingMode != app.RoutingModeRestricted {
		return nil
	}
	for _, route := range creator.RoutesTo {
		if route.Role != assignedTo {
			continue
		}
		if len(route.TaskTypes) == 0 {
			return nil
		}
		for _, t := range route.TaskTypes {
			if t == taskType {
				return nil
			}
		}
	}
	return models.NewPreconditionError(models.KindRouteForbidden,
		fmt.Sprintf("role %s may not route task type %q to %s", creatorRole, taskType, assignedTo),
		map[string]string{"created_by": creatorRole, "assigned_to": assignedTo, "task_type": taskType})
}

// validateGuardrailsTx enforces group size, depth, and rejection-chain caps.
// Runs inside the creation transaction so the counts it sees are the counts
// the insert will join.
func (b *Board) validateGuardrailsTx(tx *sql.Tx, p CreateTaskParams) error {
	g := b.team.Guardrails

	if g.MaxTasksPerGroup > 0 && p.GroupID != "" {
		count, err := store.CountGroupTasksTx(tx, p.GroupID)
		if err != nil {
			return err
		}
		if count >= g.MaxTasksPerGroup {
			return models.NewPreconditionError(models.KindGroupFull,
				fmt.Sprintf("group %s already has %d tasks (cap %d)", p.GroupID, count, g.MaxTasksPerGroup),
				map[string]string{"group_id": p.GroupID})
		}
	}

	if p.ParentID == "" {
		return nil
	}

	chain, err := store.ParentChainTx(tx, p.ParentID)
	if err != nil {
		return err
	}
	// Depth of the new task: the parent plus its ancestors.
	depth := 1 + len(chain)
	if g.MaxTaskDepth > 0 && depth >= g.MaxTaskDepth {
		return models.NewPreconditionError(models.KindDepthExceeded,
			fmt.Sprintf("task depth %d reaches cap %d", depth, g.MaxTaskDepth),
			map[string]string{"parent_id": p.ParentID})
	}

	if rejectionChainTypes[p.TaskType] {
		parent, err := store.GetTask(tx, p.ParentID)
		if err != nil {
			return err
		}
		cycles := 0
		if rejectionChainTypes[parent.TaskType] {
			cycles++
		}
		for _, ancestor := range chain {
			if rejectionChainTypes[ancestor.TaskType] {
				cycles++
			}
		}
		if cycles >= g.RejectionCycleLimit {
			return models.NewPreconditionError(models.KindCycleLimit,
				fmt.Sprintf("rejection chain length %d reaches cap %d", cycles, g.RejectionCycleLimit),
				map[string]string{"parent_id": p.ParentID, "task_type": p.TaskType})
		}
	}
	return nil
}
