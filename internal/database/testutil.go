package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestDB returns a migrated in-memory database closed at the end of the test.
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}
