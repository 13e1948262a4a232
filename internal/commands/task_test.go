package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTaskCmd_HasExpectedSubcommands(t *testing.T) {
	cmd := NewTaskCmd()
	require.Equal(t, "task", cmd.Use)
	require.Equal(t, "Manage tasks", cmd.Short)

	for _, name := range []string{"create", "get", "list", "search", "complete", "fail", "cancel", "reject", "retry", "reassign", "set-priority"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		require.NotNil(t, sub)
		require.Equal(t, name, sub.Name())
	}
}

func TestTaskCreateCmd_RequiresTitleBeforeDB(t *testing.T) {
	cmd := newTaskCreateCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestTaskCreateCmd_RequiresTypeAndRoleBeforeDB(t *testing.T) {
	cmd := newTaskCreateCmd()
	require.NoError(t, cmd.Flags().Set("title", "Fix login"))

	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestTaskRejectCmd_RequiresReasonBeforeDB(t *testing.T) {
	cmd := newTaskRejectCmd()
	err := cmd.RunE(cmd, []string{"DEV-001"})
	require.Error(t, err)
	require.EqualError(t, err, "error already printed")
	require.IsType(t, printedError{}, err)
}

func TestTaskReassignCmd_RequiresTargetBeforeDB(t *testing.T) {
	cmd := newTaskReassignCmd()
	err := cmd.RunE(cmd, []string{"DEV-001"})
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestTaskSetPriorityCmd_RejectsUnknownPriority(t *testing.T) {
	cmd := newTaskSetPriorityCmd()
	require.NoError(t, cmd.Flags().Set("priority", "urgent"))

	err := cmd.RunE(cmd, []string{"DEV-001"})
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}

func TestGoalCmd_RequiresTitleBeforeDB(t *testing.T) {
	cmd := NewGoalCmd()
	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	require.IsType(t, printedError{}, err)
}
