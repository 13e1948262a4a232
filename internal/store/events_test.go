package store

import (
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/taskbrew/internal/models"
)

func appendEvent(t *testing.T, db *sql.DB, ev *models.Event) int64 {
	t.Helper()
	var id int64
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		inserted, err := InsertEventTx(tx, ev)
		if err != nil {
			return err
		}
		id = inserted
		return nil
	}))
	return id
}

func TestInsertEventTx_AssignsIncreasingIDs(t *testing.T) {
	db := newTestDB(t)

	first := appendEvent(t, db, &models.Event{Type: models.EventTaskCreated, TaskID: "DEV-001"})
	second := appendEvent(t, db, &models.Event{Type: models.EventTaskClaimed, TaskID: "DEV-001", AgentID: "developer-1"})
	assert.Greater(t, second, first)
}

func TestListEvents_FiltersAndOrder(t *testing.T) {
	db := newTestDB(t)

	appendEvent(t, db, &models.Event{Type: models.EventTaskCreated, TaskID: "DEV-001", GroupID: "GRP-001"})
	appendEvent(t, db, &models.Event{Type: models.EventTaskCreated, TaskID: "QA-001"})
	appendEvent(t, db, &models.Event{Type: models.EventTaskClaimed, TaskID: "DEV-001", AgentID: "developer-1"})

	byTask, err := ListEvents(db, EventFilter{TaskID: "DEV-001"}, 0)
	require.NoError(t, err)
	require.Len(t, byTask, 2)
	assert.Equal(t, models.EventTaskCreated, byTask[0].Type)
	assert.Equal(t, models.EventTaskClaimed, byTask[1].Type)

	byType, err := ListEvents(db, EventFilter{Type: models.EventTaskCreated}, 0)
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	after, err := ListEvents(db, EventFilter{AfterID: byTask[0].ID}, 0)
	require.NoError(t, err)
	assert.Len(t, after, 2)
}

func TestInsertEventTx_RoundTripsData(t *testing.T) {
	db := newTestDB(t)

	payload, err := json.Marshal(map[string]string{"from": "pending", "to": "in_progress"})
	require.NoError(t, err)
	appendEvent(t, db, &models.Event{Type: models.EventTaskClaimed, TaskID: "DEV-001", Data: payload})

	events, err := ListEvents(db, EventFilter{TaskID: "DEV-001"}, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, string(payload), string(events[0].Data))
}

func TestEventCountsByType(t *testing.T) {
	db := newTestDB(t)

	appendEvent(t, db, &models.Event{Type: models.EventTaskCreated, TaskID: "DEV-001"})
	appendEvent(t, db, &models.Event{Type: models.EventTaskCreated, TaskID: "DEV-002"})
	appendEvent(t, db, &models.Event{Type: models.EventTaskCompleted, TaskID: "DEV-001"})

	counts, err := EventCountsByType(db, "")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.EventTaskCreated])
	assert.Equal(t, 1, counts[models.EventTaskCompleted])
}
