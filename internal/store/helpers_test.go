package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voyagen/streamshelf/internal/models"
)

// memVersions is an in-memory VersionStore that records writes.
type memVersions struct {
	mu     sync.Mutex
	v      int
	ok     bool
	writes int
}

func (m *memVersions) Version(context.Context) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v, m.ok, nil
}

func (m *memVersions) SetVersion(_ context.Context, v int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.v, m.ok = v, true
	m.writes++
	return nil
}

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db := openTestDB(t)
	m, err := NewMigrator(db, &memVersions{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Migrate(context.Background()))
	s, err := NewSQLStore(db, zap.NewNop())
	require.NoError(t, err)
	return s
}

func strPtr(s string) *string { return &s }

func channel(id, name string, categoryID *string) models.Channel {
	return models.Channel{ID: id, Name: name, URL: "http://example/" + id, CategoryID: categoryID}
}
