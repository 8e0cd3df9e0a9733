package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"strings"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Schema versions. Version 1 is the original shipped schema; TargetVersion is what
// this build expects.
const (
	BaseVersion   = 1
	TargetVersion = 2
)

// knownTables lists every table, children first so drops respect foreign keys.
var knownTables = []string{"EpgProgram", "Favorite", "Channel", "Category", "Playlist"}

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	reAddColumn   = regexp.MustCompile(`(?is)^ALTER\s+TABLE\s+(\w+)\s+ADD\s+COLUMN\s+(\w+)`)
	reCreateTable = regexp.MustCompile(`(?is)^CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?(\w+)`)
)

// VersionStore persists the schema version outside the database. It is the
// ground truth for which upgrade scripts still need to run.
type VersionStore interface {
	// Version returns the stored version; ok is false when nothing was stored yet.
	Version(ctx context.Context) (v int, ok bool, err error)
	SetVersion(ctx context.Context, v int) error
}

// Migrator upgrades an existing database to TargetVersion.
type Migrator struct {
	db       *sqlx.DB
	dialect  dialect
	versions VersionStore
	scripts  map[int]string
	logger   *zap.Logger
}

// NewMigrator loads the embedded upgrade scripts.
func NewMigrator(db *sqlx.DB, versions VersionStore, logger *zap.Logger) (*Migrator, error) {
	d, err := dialectFor(db.DriverName())
	if err != nil {
		return nil, err
	}
	scripts, err := loadScripts(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	for v := BaseVersion; v <= TargetVersion; v++ {
		if _, ok := scripts[v]; !ok {
			return nil, fmt.Errorf("missing upgrade script for version %d", v)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{db: db, dialect: d, versions: versions, scripts: scripts, logger: logger}, nil
}

// loadScripts reads N_name.up.sql files through the golang-migrate iofs source.
func loadScripts(fsys fs.FS, dir string) (map[int]string, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("iofs.New: %w", err)
	}
	defer src.Close()

	scripts := make(map[int]string)
	v, err := src.First()
	for err == nil {
		r, _, rerr := src.ReadUp(v)
		if rerr != nil {
			return nil, fmt.Errorf("ReadUp %d: %w", v, rerr)
		}
		body, rerr := io.ReadAll(r)
		r.Close()
		if rerr != nil {
			return nil, fmt.Errorf("read script %d: %w", v, rerr)
		}
		scripts[int(v)] = string(body)
		v, err = src.Next(v)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	return scripts, nil
}

// Migrate runs every upgrade script above the stored version, in ascending order,
// then records TargetVersion. A database without a stored version is treated as
// version 1 and gets the baseline schema first (a no-op on pre-existing tables).
// Any failure other than an already-present column aborts.
func (m *Migrator) Migrate(ctx context.Context) error {
	current, ok, err := m.versions.Version(ctx)
	if err != nil {
		return fmt.Errorf("read db_version: %w", err)
	}
	if !ok {
		current = BaseVersion
		if err := m.apply(ctx, BaseVersion); err != nil {
			return err
		}
	}
	if ok && current >= TargetVersion {
		m.logger.Debug("schema up to date", zap.Int("version", current))
		return nil
	}
	for v := current + 1; v <= TargetVersion; v++ {
		if err := m.apply(ctx, v); err != nil {
			return err
		}
	}
	if err := m.versions.SetVersion(ctx, TargetVersion); err != nil {
		return fmt.Errorf("write db_version: %w", err)
	}
	m.logger.Info("schema migrated", zap.Int("from", current), zap.Int("to", TargetVersion))
	return nil
}

// Reset drops every known table, recreates the schema from scratch and stores
// TargetVersion. All data is lost.
func (m *Migrator) Reset(ctx context.Context) error {
	m.logger.Warn("resetting database schema")
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTxx: %w", err)
	}
	defer tx.Rollback()
	for _, t := range knownTables {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("drop %s: %w", t, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	for v := BaseVersion; v <= TargetVersion; v++ {
		if err := m.apply(ctx, v); err != nil {
			return err
		}
	}
	if err := m.versions.SetVersion(ctx, TargetVersion); err != nil {
		return fmt.Errorf("write db_version: %w", err)
	}
	return nil
}

// apply runs one script in a transaction, skipping structural statements the
// live catalog shows as already applied.
func (m *Migrator) apply(ctx context.Context, version int) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate v%d: BeginTxx: %w", version, err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(m.scripts[version]) {
		applied, err := m.alreadyApplied(ctx, tx, stmt)
		if err != nil {
			return fmt.Errorf("migrate v%d: inspect schema: %w", version, err)
		}
		if applied {
			m.logger.Info("schema change already applied", zap.Int("version", version), zap.String("stmt", firstLine(stmt)))
			continue
		}
		if reAddColumn.MatchString(stmt) {
			err = m.addColumn(ctx, tx, stmt)
		} else {
			_, err = tx.ExecContext(ctx, stmt)
		}
		if err != nil {
			return fmt.Errorf("migrate v%d: %s: %w", version, firstLine(stmt), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate v%d: Commit: %w", version, err)
	}
	return nil
}

// addColumn treats a duplicate-column failure as already applied. The savepoint
// keeps the surrounding transaction usable on PostgreSQL.
func (m *Migrator) addColumn(ctx context.Context, tx *sqlx.Tx, stmt string) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT add_column"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		if !m.dialect.isDuplicateColumn(err) {
			return err
		}
		m.logger.Info("duplicate column ignored", zap.String("stmt", firstLine(stmt)))
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT add_column"); err != nil {
			return err
		}
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT add_column")
	return err
}

func (m *Migrator) alreadyApplied(ctx context.Context, tx *sqlx.Tx, stmt string) (bool, error) {
	var n int
	if g := reAddColumn.FindStringSubmatch(stmt); g != nil {
		if err := tx.QueryRowxContext(ctx, tx.Rebind(m.dialect.columnExists), g[1], g[2]).Scan(&n); err != nil {
			return false, err
		}
		return n > 0, nil
	}
	if g := reCreateTable.FindStringSubmatch(stmt); g != nil {
		if err := tx.QueryRowxContext(ctx, tx.Rebind(m.dialect.tableExists), g[1]).Scan(&n); err != nil {
			return false, err
		}
		return n > 0, nil
	}
	return false, nil
}

// ColumnCount reports how many columns named column exist on table.
func (m *Migrator) ColumnCount(ctx context.Context, table, column string) (int, error) {
	var n int
	err := m.db.QueryRowxContext(ctx, m.db.Rebind(m.dialect.columnExists), table, column).Scan(&n)
	return n, err
}

// splitStatements splits a script on semicolons, dropping "--" comment lines.
func splitStatements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var out []string
	for _, s := range strings.Split(b.String(), ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
