package testutil

import (
	"testing"

	"idb-go/internal/attachments"
	"idb-go/internal/idb"
)

// NewTestService creates a Service wired to an in-memory database and an
// in-memory attachment store, with a fixed clock and sequential IDs.
func NewTestService(t *testing.T) (*idb.Service, idb.Database, *attachments.MemoryStore) {
	t.Helper()

	db := NewTestDatabase(t)
	store := attachments.NewMemoryStore()
	svc := idb.NewService(db, store, idb.NewNopLogger(), FrozenClock(), NewSequentialIDs())
	return svc, db, store
}
