package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateID_MonotonicPerPrefix(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, RegisterPrefix(db, "DEV"))
	require.NoError(t, RegisterPrefix(db, "QA"))

	first, err := AllocateID(db, "DEV")
	require.NoError(t, err)
	second, err := AllocateID(db, "DEV")
	require.NoError(t, err)
	third, err := AllocateID(db, "QA")
	require.NoError(t, err)

	assert.Equal(t, "DEV-001", first)
	assert.Equal(t, "DEV-002", second)
	assert.Equal(t, "QA-001", third)
}

func TestAllocateID_UnregisteredPrefix(t *testing.T) {
	db := newTestDB(t)

	_, err := AllocateID(db, "NOPE")
	require.ErrorIs(t, err, ErrUnregisteredPrefix)
}

func TestRegisterPrefix_Idempotent(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, RegisterPrefix(db, "DEV"))
	id, err := AllocateID(db, "DEV")
	require.NoError(t, err)
	require.Equal(t, "DEV-001", id)

	// Re-registering must not reset the counter.
	require.NoError(t, RegisterPrefix(db, "DEV"))
	id, err = AllocateID(db, "DEV")
	require.NoError(t, err)
	assert.Equal(t, "DEV-002", id)
}

func TestAllocateID_SurvivesRollback(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, RegisterPrefix(db, "DEV"))

	// A rolled-back allocation may consume a number; the next allocation
	// must still be strictly greater than anything previously returned.
	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = AllocateIDTx(tx, "DEV")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	id, err := AllocateID(db, "DEV")
	require.NoError(t, err)
	assert.Equal(t, "DEV-001", id)
}

func TestFormatID_PadsToThreeDigits(t *testing.T) {
	assert.Equal(t, "DEV-007", FormatID("DEV", 7))
	assert.Equal(t, "DEV-042", FormatID("DEV", 42))
	assert.Equal(t, "DEV-1234", FormatID("DEV", 1234))
}

func TestAllocateIDTx_InsideLargerTransaction(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, RegisterPrefix(db, "GRP"))

	var id string
	require.NoError(t, Transact(db, func(tx *sql.Tx) error {
		allocated, err := AllocateIDTx(tx, "GRP")
		if err != nil {
			return err
		}
		id = allocated
		_, err = InsertGroupTx(tx, id, "auth work", "goal", "coordinator")
		return err
	}))

	g, err := GetGroup(db, id)
	require.NoError(t, err)
	assert.Equal(t, "GRP-001", g.ID)
}
