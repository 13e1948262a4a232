package board

import (
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/taskbrew/internal/models"
)

func TestCreateTask_AllocatesRolePrefixedID(t *testing.T) {
	b, _, _ := newTestBoard(t)

	first := mustCreate(t, b, "developer", "implementation", nil)
	second := mustCreate(t, b, "developer", "implementation", nil)
	assert.Equal(t, "DEV-001", first.ID)
	assert.Equal(t, "DEV-002", second.ID)
	assert.Equal(t, models.TaskStatusPending, first.Status)
}

func TestCreateTask_UnknownRoleRejected(t *testing.T) {
	b, _, _ := newTestBoard(t)

	_, err := b.CreateTask(CreateTaskParams{
		Title:      "x",
		TaskType:   "implementation",
		AssignedTo: "designer",
		CreatedBy:  "human",
	})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindInvalidRole))
}

func TestCreateTask_BlockedWhenDependenciesOpen(t *testing.T) {
	b, sink, _ := newTestBoard(t)

	blocker := mustCreate(t, b, "developer", "implementation", nil)
	dependent := mustCreate(t, b, "qa", "testing", func(p *CreateTaskParams) {
		p.BlockedBy = []string{blocker.ID}
	})
	assert.Equal(t, models.TaskStatusBlocked, dependent.Status)
	assert.Equal(t, []string{blocker.ID}, dependent.BlockedBy)

	ev := sink.waitForType(t, models.EventTaskCreated)
	assert.NotNil(t, ev)
}

func TestCreateTask_CompletedBlockersStartPending(t *testing.T) {
	b, _, _ := newTestBoard(t)

	blocker := mustCreate(t, b, "developer", "implementation", nil)
	claimAndComplete(t, b, "developer", "developer-1", blocker.ID)

	dependent := mustCreate(t, b, "qa", "testing", func(p *CreateTaskParams) {
		p.BlockedBy = []string{blocker.ID}
	})
	assert.Equal(t, models.TaskStatusPending, dependent.Status)
}

func TestCreateTask_RoutingRestrictions(t *testing.T) {
	b, _, _ := newTestBoard(t)

	// coordinator-1 may route testing to qa.
	_, err := b.CreateTask(CreateTaskParams{
		Title: "t", TaskType: "testing", AssignedTo: "qa", CreatedBy: "coordinator-1",
	})
	require.NoError(t, err)

	// qa does not accept implementation.
	_, err = b.CreateTask(CreateTaskParams{
		Title: "t", TaskType: "implementation", AssignedTo: "qa", CreatedBy: "coordinator-1",
	})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindUnacceptedType))

	// developer (open mode) may route anywhere the target accepts.
	_, err = b.CreateTask(CreateTaskParams{
		Title: "t", TaskType: "testing", AssignedTo: "qa", CreatedBy: "developer-2",
	})
	require.NoError(t, err)

	// coordinator has no route to itself.
	_, err = b.CreateTask(CreateTaskParams{
		Title: "t", TaskType: "goal", AssignedTo: "coordinator", CreatedBy: "coordinator-1",
	})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindRouteForbidden))
}

func TestCreateTask_GroupFull(t *testing.T) {
	b, _, _ := newTestBoard(t)
	group, err := b.CreateGroup("small", "origin", "human")
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		mustCreate(t, b, "developer", "implementation", func(p *CreateTaskParams) {
			p.GroupID = group.ID
		})
	}

	// A role creator hits the cap; guardrails do not bind humans.
	_, err = b.CreateTask(CreateTaskParams{
		GroupID: group.ID, Title: "one too many", TaskType: "implementation",
		AssignedTo: "developer", CreatedBy: "developer-1",
	})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindGroupFull))

	_, err = b.CreateTask(CreateTaskParams{
		GroupID: group.ID, Title: "human override", TaskType: "implementation",
		AssignedTo: "developer", CreatedBy: "human",
	})
	require.NoError(t, err)
}

func TestCreateTask_RejectionCycleLimit(t *testing.T) {
	b, _, _ := newTestBoard(t)

	root := mustCreate(t, b, "developer", "implementation", nil)
	parent := root
	// Two revisions are allowed; the third reaches the cap of 3.
	for i := 0; i < 2; i++ {
		parent = mustCreate(t, b, "developer", "revision", func(p *CreateTaskParams) {
			p.ParentID = parent.ID
			p.CreatedBy = "developer-1"
		})
	}

	_, err := b.CreateTask(CreateTaskParams{
		Title: "third revision", TaskType: "revision", AssignedTo: "developer",
		CreatedBy: "developer-1", ParentID: parent.ID,
	})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindCycleLimit))
}

func TestCreateTask_ReactivatesCompletedGroup(t *testing.T) {
	b, _, _ := newTestBoard(t)
	group, err := b.CreateGroup("g", "origin", "human")
	require.NoError(t, err)

	task := mustCreate(t, b, "developer", "implementation", func(p *CreateTaskParams) {
		p.GroupID = group.ID
	})
	claimAndComplete(t, b, "developer", "developer-1", task.ID)

	g, err := b.GetGroup(group.ID)
	require.NoError(t, err)
	require.Equal(t, models.GroupStatusCompleted, g.Status)

	mustCreate(t, b, "developer", "implementation", func(p *CreateTaskParams) {
		p.GroupID = group.ID
	})
	g, err = b.GetGroup(group.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusActive, g.Status)
}

func TestCompleteTask_UnblocksDependentsAndCompletesGroup(t *testing.T) {
	b, sink, _ := newTestBoard(t)
	group, err := b.CreateGroup("g", "origin", "human")
	require.NoError(t, err)

	dev := mustCreate(t, b, "developer", "implementation", func(p *CreateTaskParams) {
		p.GroupID = group.ID
	})
	qa := mustCreate(t, b, "qa", "testing", func(p *CreateTaskParams) {
		p.GroupID = group.ID
		p.BlockedBy = []string{dev.ID}
	})
	require.Equal(t, models.TaskStatusBlocked, qa.Status)

	claimAndComplete(t, b, "developer", "developer-1", dev.ID)

	unblocked, err := b.GetTask(qa.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, unblocked.Status)
	sink.waitForType(t, models.EventTaskUnblocked)

	claimAndComplete(t, b, "qa", "qa-1", qa.ID)

	g, err := b.GetGroup(group.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusCompleted, g.Status)
	sink.waitForType(t, models.EventGroupCompleted)
}

func TestCompleteTask_TruncatesOutput(t *testing.T) {
	b, _, _ := newTestBoard(t)
	task := mustCreate(t, b, "developer", "implementation", nil)

	_, err := b.ClaimTask("developer", "developer-1")
	require.NoError(t, err)

	long := strings.Repeat("x", MaxOutputChars+500)
	completed, err := b.CompleteTaskWithOutput(task.ID, long)
	require.NoError(t, err)
	assert.Len(t, completed.OutputText, MaxOutputChars)
}

func TestCompleteTask_TruncationKeepsValidUTF8(t *testing.T) {
	b, _, _ := newTestBoard(t)
	task := mustCreate(t, b, "developer", "implementation", nil)

	_, err := b.ClaimTask("developer", "developer-1")
	require.NoError(t, err)

	// A multi-byte rune straddles the cap; the cut must back up to its start.
	long := strings.Repeat("x", MaxOutputChars-1) + "€" + strings.Repeat("y", 100)
	completed, err := b.CompleteTaskWithOutput(task.ID, long)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(completed.OutputText))
	assert.Equal(t, strings.Repeat("x", MaxOutputChars-1), completed.OutputText)
}

func TestCompleteTask_DuplicateTerminalIsNoOp(t *testing.T) {
	b, _, _ := newTestBoard(t)
	task := mustCreate(t, b, "developer", "implementation", nil)
	claimAndComplete(t, b, "developer", "developer-1", task.ID)

	again, err := b.CompleteTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, again.Status)
}

func TestCompleteTask_PendingIsIllegal(t *testing.T) {
	b, _, _ := newTestBoard(t)
	task := mustCreate(t, b, "developer", "implementation", nil)

	_, err := b.CompleteTask(task.ID)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindIllegalStatusTransition))
}

func TestFailTask_CascadesAndCancelsChildren(t *testing.T) {
	b, sink, _ := newTestBoard(t)

	dev := mustCreate(t, b, "developer", "implementation", nil)
	blockedQA := mustCreate(t, b, "qa", "testing", func(p *CreateTaskParams) {
		p.BlockedBy = []string{dev.ID}
	})
	child := mustCreate(t, b, "developer", "implementation", func(p *CreateTaskParams) {
		p.ParentID = dev.ID
	})

	_, err := b.ClaimTask("developer", "developer-1")
	require.NoError(t, err)
	_, err = b.FailTask(dev.ID, "compile error")
	require.NoError(t, err)

	failed, err := b.GetTask(blockedQA.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, failed.Status)

	cancelled, err := b.GetTask(child.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCancelled, cancelled.Status)

	sink.waitForType(t, models.EventTaskFailed)
	sink.waitForType(t, models.EventTaskCancelled)
}

func TestRetryTask_ReactivatesGroup(t *testing.T) {
	b, _, _ := newTestBoard(t)
	group, err := b.CreateGroup("g", "origin", "human")
	require.NoError(t, err)

	task := mustCreate(t, b, "developer", "implementation", func(p *CreateTaskParams) {
		p.GroupID = group.ID
	})
	_, err = b.ClaimTask("developer", "developer-1")
	require.NoError(t, err)
	_, err = b.FailTask(task.ID, "flaky")
	require.NoError(t, err)

	// Failing the only task completes the group (all tasks terminal).
	g, err := b.GetGroup(group.ID)
	require.NoError(t, err)
	require.Equal(t, models.GroupStatusCompleted, g.Status)

	retried, err := b.RetryTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusPending, retried.Status)
	assert.Empty(t, retried.ClaimedBy)

	g, err = b.GetGroup(group.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GroupStatusActive, g.Status)
}

func TestClaimTask_EmitsCorrelationID(t *testing.T) {
	b, sink, clk := newTestBoard(t)
	task := mustCreate(t, b, "developer", "implementation", nil)

	claimed, err := b.ClaimTask("developer", "developer-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	ev := sink.waitForType(t, models.EventTaskClaimed)
	want := task.ID + "-" + strconv.FormatInt(clk.T.Unix(), 10)
	assert.Contains(t, string(ev.Data), want)
}

func TestCreateGoal_SeedsGroupAndTask(t *testing.T) {
	b, sink, _ := newTestBoard(t)

	group, task, err := b.CreateGoal("ship auth", "implement login", "human")
	require.NoError(t, err)
	assert.Equal(t, "GRP-001", group.ID)
	assert.Equal(t, "PM-001", task.ID)
	assert.Equal(t, "coordinator", task.AssignedTo)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	sink.waitForType(t, models.EventGoalCreated)
}

func TestBatchUpdateTasks_SkipsFailures(t *testing.T) {
	b, _, _ := newTestBoard(t)

	open := mustCreate(t, b, "developer", "implementation", nil)
	done := mustCreate(t, b, "developer", "implementation", nil)
	_, err := b.ClaimTask("developer", "developer-1")
	require.NoError(t, err)
	_, err = b.CompleteTask(open.ID)
	require.NoError(t, err)

	results, err := b.BatchUpdateTasks([]string{open.ID, done.ID}, BatchActionCancel, BatchParams{Reason: "cleanup"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].OK)
	assert.True(t, results[1].OK)
}

func TestBatchUpdateTasks_UnknownAction(t *testing.T) {
	b, _, _ := newTestBoard(t)
	_, err := b.BatchUpdateTasks([]string{"DEV-001"}, "explode", BatchParams{})
	require.ErrorContains(t, err, "unknown batch action")
}
