package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/mattn/go-sqlite3"
)

// dialect captures the few places where SQLite and PostgreSQL differ.
type dialect struct {
	name string
	// columnExists and tableExists return a single COUNT(*) row.
	columnExists string
	tableExists  string
	// insertOrder orders channel rows by insertion.
	insertOrder       string
	isDuplicateColumn func(error) bool
}

var sqliteDialect = dialect{
	name:         "sqlite3",
	columnExists: `SELECT COUNT(*) FROM pragma_table_info(?) WHERE lower(name) = lower(?)`,
	tableExists:  `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND lower(name) = lower(?)`,
	insertOrder:  "rowid",
	isDuplicateColumn: func(err error) bool {
		var se sqlite3.Error
		if errors.As(err, &se) {
			return strings.Contains(strings.ToLower(se.Error()), "duplicate column")
		}
		return strings.Contains(strings.ToLower(err.Error()), "duplicate column")
	},
}

// Channels are only ever deleted and reinserted, never updated, so ctid follows
// insertion order.
var postgresDialect = dialect{
	name: "pgx",
	columnExists: `SELECT COUNT(*) FROM information_schema.columns
		WHERE table_schema = current_schema() AND lower(table_name) = lower(?) AND lower(column_name) = lower(?)`,
	tableExists: `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND lower(table_name) = lower(?)`,
	insertOrder: "ctid",
	isDuplicateColumn: func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == "42701"
	},
}

func dialectFor(driverName string) (dialect, error) {
	switch driverName {
	case "sqlite3":
		return sqliteDialect, nil
	case "pgx", "postgres":
		return postgresDialect, nil
	}
	return dialect{}, fmt.Errorf("unsupported database driver %q", driverName)
}
