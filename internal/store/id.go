package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrUnregisteredPrefix is returned when AllocateID is called for a prefix
// that was never registered.
var ErrUnregisteredPrefix = errors.New("id prefix not registered")

// RegisterPrefixTx registers an ID prefix. Idempotent.
func RegisterPrefixTx(tx *sql.Tx, prefix string) error {
	if prefix == "" {
		return errors.New("prefix is required")
	}
	_, err := tx.Exec(`INSERT OR IGNORE INTO id_sequences (prefix, next_value) VALUES (?, 1)`, prefix)
	if err != nil {
		return fmt.Errorf("failed to register prefix %s: %w", prefix, err)
	}
	return nil
}

// RegisterPrefix is the standalone variant of RegisterPrefixTx.
func RegisterPrefix(db *sql.DB, prefix string) error {
	return Transact(db, func(tx *sql.Tx) error { return RegisterPrefixTx(tx, prefix) })
}

// AllocateIDTx atomically increments the sequence for prefix and returns the
// formatted ID ("PREFIX-NNN", zero-padded to three digits, growing naturally).
// The UPDATE ... RETURNING makes the increment-and-read a single statement,
// so IDs are monotonic per prefix with no gaps below the high-water mark.
func AllocateIDTx(tx *sql.Tx, prefix string) (string, error) {
	var next int64
	err := tx.QueryRow(`
		UPDATE id_sequences
		SET next_value = next_value + 1
		WHERE prefix = ?
		RETURNING next_value - 1
	`, prefix).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrUnregisteredPrefix, prefix)
	}
	if err != nil {
		return "", fmt.Errorf("failed to allocate id for prefix %s: %w", prefix, err)
	}
	return FormatID(prefix, next), nil
}

// AllocateID is the standalone variant of AllocateIDTx.
func AllocateID(db *sql.DB, prefix string) (string, error) {
	var id string
	err := Transact(db, func(tx *sql.Tx) error {
		allocated, err := AllocateIDTx(tx, prefix)
		if err != nil {
			return err
		}
		id = allocated
		return nil
	})
	return id, err
}

// FormatID renders "PREFIX-NNN".
func FormatID(prefix string, n int64) string {
	return fmt.Sprintf("%s-%03d", prefix, n)
}
