package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMigrate_FreshDatabase(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	versions := &memVersions{}
	m, err := NewMigrator(db, versions, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, m.Migrate(ctx))
	assert.Equal(t, TargetVersion, versions.v)

	n, err := m.ColumnCount(ctx, "Channel", "categoryId")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var tables int
	require.NoError(t, db.Get(&tables, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'Category'`))
	assert.Equal(t, 1, tables)
}

func TestMigrate_CurrentVersionIsNoop(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	versions := &memVersions{}
	m, err := NewMigrator(db, versions, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, m.Migrate(ctx))
	require.NoError(t, m.Migrate(ctx))
	assert.Equal(t, TargetVersion, versions.v)
	assert.Equal(t, 1, versions.writes, "second run must not touch the counter")
}

func TestMigrate_NewerStoredVersionIsNoop(t *testing.T) {
	db := openTestDB(t)
	versions := &memVersions{v: TargetVersion + 3, ok: true}
	m, err := NewMigrator(db, versions, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, m.Migrate(context.Background()))
	assert.Equal(t, TargetVersion+3, versions.v)
	assert.Zero(t, versions.writes)
}

// createV1 builds the original schema and marks the counter as version 1.
func createV1(t *testing.T, db *sqlx.DB) *memVersions {
	t.Helper()
	scripts, err := loadScripts(migrationsFS, "migrations")
	require.NoError(t, err)
	for _, stmt := range splitStatements(scripts[BaseVersion]) {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return &memVersions{v: BaseVersion, ok: true}
}

func TestMigrate_V1UpgradeBackfillsCategories(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	versions := createV1(t, db)

	db.MustExec(`INSERT INTO Playlist (id, name, type, createdAt, updatedAt) VALUES ('p1', 'Old', 'M3U_URL', 1, 1)`)
	db.MustExec(`INSERT INTO Channel (id, playlistId, name, url, groupName) VALUES
		('a', 'p1', 'A', 'http://a', 'News'),
		('b', 'p1', 'B', 'http://b', 'News'),
		('c', 'p1', 'C', 'http://c', NULL)`)

	m, err := NewMigrator(db, versions, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Migrate(ctx))
	assert.Equal(t, TargetVersion, versions.v)

	s, err := NewSQLStore(db, zap.NewNop())
	require.NoError(t, err)

	cats, err := s.Categories(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "News", cats[0].ID)
	assert.Equal(t, "News", cats[0].Name)

	channels, err := s.Channels(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, channels, 3, "no channel lost across the upgrade")
	assert.Equal(t, "News", *channels[0].CategoryID)
	assert.Nil(t, channels[2].CategoryID)
}

func TestMigrate_ColumnPresentWithStaleMarker(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	versions := createV1(t, db)
	db.MustExec(`ALTER TABLE Channel ADD COLUMN categoryId TEXT`)

	m, err := NewMigrator(db, versions, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Migrate(ctx))

	n, err := m.ColumnCount(ctx, "Channel", "categoryId")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, TargetVersion, versions.v)
}

func expectV2Prefix(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectQuery(`sqlite_master`).WithArgs("Category").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`^CREATE TABLE IF NOT EXISTS Category`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^CREATE INDEX IF NOT EXISTS idx_category_playlist`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`pragma_table_info`).WithArgs("Channel", "categoryId").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`^SAVEPOINT add_column`).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestMigrate_DuplicateColumnErrorIsAlreadyApplied(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "sqlite3")

	expectV2Prefix(mock)
	mock.ExpectExec(`^ALTER TABLE Channel ADD COLUMN categoryId`).
		WillReturnError(errors.New("duplicate column name: categoryId"))
	mock.ExpectExec(`^ROLLBACK TO SAVEPOINT add_column`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^RELEASE SAVEPOINT add_column`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^CREATE INDEX IF NOT EXISTS idx_channel_category`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^INSERT INTO Category`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^UPDATE Channel SET categoryId`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	versions := &memVersions{v: BaseVersion, ok: true}
	m, err := NewMigrator(db, versions, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, m.Migrate(context.Background()))
	assert.Equal(t, TargetVersion, versions.v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_UnexpectedErrorAborts(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "sqlite3")

	expectV2Prefix(mock)
	mock.ExpectExec(`^ALTER TABLE Channel ADD COLUMN categoryId`).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	versions := &memVersions{v: BaseVersion, ok: true}
	m, err := NewMigrator(db, versions, zap.NewNop())
	require.NoError(t, err)

	err = m.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Equal(t, BaseVersion, versions.v, "counter untouched after a failed upgrade")
	assert.Zero(t, versions.writes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	versions := &memVersions{v: 1, ok: true}
	m, err := NewMigrator(s.db, versions, zap.NewNop())
	require.NoError(t, err)

	p := testPlaylist("p1", channel("a", "A", nil))
	require.NoError(t, s.InsertPlaylist(ctx, &p))
	_, err = s.ToggleFavorite(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, m.Reset(ctx))
	assert.Equal(t, TargetVersion, versions.v)

	playlists, err := s.Playlists(ctx)
	require.NoError(t, err)
	assert.Empty(t, playlists)
	favs, err := s.Favorites(ctx)
	require.NoError(t, err)
	assert.Empty(t, favs)

	n, err := m.ColumnCount(ctx, "Channel", "categoryId")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- comment; with semicolon\nCREATE TABLE a (x TEXT);\n\n  ALTER TABLE a ADD COLUMN y TEXT ;\n")
	assert.Equal(t, []string{"CREATE TABLE a (x TEXT)", "ALTER TABLE a ADD COLUMN y TEXT"}, stmts)
}
