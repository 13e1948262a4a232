package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/taskbrew/internal/models"
)

func TestSaveAndGetWorkflow(t *testing.T) {
	db := newTestDB(t)

	wf := &models.Workflow{
		ID:   "wf-feature",
		Name: "feature",
		Steps: []models.WorkflowStep{
			{Title: "implement", TaskType: "implementation", AssignedTo: "developer"},
			{Title: "test", TaskType: "testing", AssignedTo: "qa"},
		},
	}
	require.NoError(t, Transact(db, func(tx *sql.Tx) error { return SaveWorkflowTx(tx, wf) }))

	loaded, err := GetWorkflow(db, "wf-feature")
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "qa", loaded.Steps[1].AssignedTo)
}

func TestSaveWorkflowTx_RequiresSteps(t *testing.T) {
	db := newTestDB(t)

	err := Transact(db, func(tx *sql.Tx) error {
		return SaveWorkflowTx(tx, &models.Workflow{ID: "wf-empty", Name: "empty"})
	})
	require.ErrorContains(t, err, "at least one step")
}

func TestSaveTemplateTx_UpsertAndList(t *testing.T) {
	db := newTestDB(t)

	tmpl := &models.TaskTemplate{
		Name:       "bugfix",
		Title:      "Fix {summary}",
		TaskType:   "bugfix",
		AssignedTo: "developer",
	}
	require.NoError(t, Transact(db, func(tx *sql.Tx) error { return SaveTemplateTx(tx, tmpl) }))

	tmpl.Title = "Fix bug: {summary}"
	require.NoError(t, Transact(db, func(tx *sql.Tx) error { return SaveTemplateTx(tx, tmpl) }))

	loaded, err := GetTemplate(db, "bugfix")
	require.NoError(t, err)
	assert.Equal(t, "Fix bug: {summary}", loaded.Title)
	assert.Equal(t, models.PriorityMedium, loaded.Priority)

	all, err := ListTemplates(db)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSumUsage_ScopedToGroup(t *testing.T) {
	db := newTestDB(t)
	seedGroup(t, db, "GRP-001", "auth")
	seedTask(t, db, "DEV-001", func(p *InsertTaskParams) { p.GroupID = "GRP-001" })
	seedTask(t, db, "DEV-002", nil)

	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		require.NoError(t, InsertUsageTx(tx, &models.Usage{TaskID: "DEV-001", InputTokens: 100, OutputTokens: 50, CostUSD: 0.25}))
		require.NoError(t, InsertUsageTx(tx, &models.Usage{TaskID: "DEV-002", InputTokens: 10, OutputTokens: 5, CostUSD: 0.01}))
		return nil
	}))

	scoped, err := SumUsage(db, "GRP-001")
	require.NoError(t, err)
	assert.Equal(t, int64(100), scoped.InputTokens)
	assert.Equal(t, int64(1), scoped.Runs)

	all, err := SumUsage(db, "")
	require.NoError(t, err)
	assert.Equal(t, int64(110), all.InputTokens)
	assert.Equal(t, int64(2), all.Runs)
}
