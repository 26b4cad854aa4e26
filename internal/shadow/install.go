package shadow

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cellarsync/sqlitecrdt/internal/valcodec"
)

// Column describes one column of the user table as introspected from
// SQLite's own catalog, never taken from caller-supplied strings: only
// the validated table name and this introspected list are interpolated
// into generated SQL.
type Column struct {
	Name string
	Type string // declared type, advisory only
}

// TableExists reports whether a table exists in the main schema.
func TableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("shadow: check table exists: %w", err)
	}
	return true, nil
}

// Columns introspects the user table's column list via PRAGMA
// table_info, in table-declaration order.
func Columns(ctx context.Context, db *sql.DB, table string) ([]Column, error) {
	// PRAGMA statements cannot take bound parameters; table has already
	// been validated against ValidateTableName by the caller.
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, table))
	if err != nil {
		return nil, fmt.Errorf("shadow: introspect columns of %q: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("shadow: scan column info: %w", err)
		}
		cols = append(cols, Column{Name: name, Type: ctype})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("shadow: iterate column info: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("shadow: table %q has no columns or does not exist", table)
	}
	return cols, nil
}

// HasBlobIDColumn reports whether the table's "id" column is declared
// with BLOB affinity, the signal this engine uses for blob-id mode. A
// table whose "id" column is an INTEGER PRIMARY KEY (a rowid alias,
// the common case) or that has no "id" column at all is
// integer-rowid mode instead.
func HasBlobIDColumn(cols []Column) bool {
	for _, c := range cols {
		if strings.EqualFold(c.Name, "id") {
			return affinityTag(c.Type) == valcodec.Blob
		}
	}
	return false
}

// Install idempotently creates the five shadow tables and their
// indices for table, and seeds the clock row if absent. The clock row
// persists for the lifetime of the table's tracking.
func Install(ctx context.Context, db *sql.DB, n Names, mode IDMode) error {
	for _, stmt := range DDL(n, mode) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("shadow: install shadow schema for %q: %w", n.Table, err)
		}
	}
	return ensureClockRow(ctx, db, n)
}

func ensureClockRow(ctx context.Context, db *sql.DB, n Names) error {
	var count int
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, n.Clock)).Scan(&count); err != nil {
		return fmt.Errorf("shadow: count clock rows: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO "%s" (time) VALUES (0)`, n.Clock)); err != nil {
		return fmt.Errorf("shadow: seed clock row: %w", err)
	}
	return nil
}

// affinityTag maps a SQLite declared column type to the storage-class
// tag it advises, following SQLite's own type-affinity rules
// (https://www.sqlite.org/datatype3.html §3.1). This is advisory only:
// the actual tag of any given cell is determined at write/read time by
// valcodec.FromDriverValue, never by this cache.
func affinityTag(declared string) valcodec.Tag {
	t := strings.ToUpper(strings.TrimSpace(declared))
	switch {
	case t == "":
		return valcodec.Blob
	case strings.Contains(t, "INT"):
		return valcodec.Integer
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return valcodec.Text
	case strings.Contains(t, "BLOB"):
		return valcodec.Blob
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return valcodec.Real
	default:
		// NUMERIC affinity family: SQLite treats these as REAL/INTEGER
		// hybrids; REAL is the safer default cache hint.
		return valcodec.Real
	}
}

// RefreshTypes replaces the cached column-type advisories, used at
// Enable and after an additive schema change.
func RefreshTypes(ctx context.Context, db *sql.DB, n Names, cols []Column) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("shadow: refresh types: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM "%s"`, n.Types)); err != nil {
		return fmt.Errorf("shadow: refresh types: clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO "%s" (column_name, type_tag) VALUES (?, ?)`, n.Types))
	if err != nil {
		return fmt.Errorf("shadow: refresh types: prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range cols {
		if _, err := stmt.ExecContext(ctx, c.Name, int(affinityTag(c.Type))); err != nil {
			return fmt.Errorf("shadow: refresh types: insert %q: %w", c.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("shadow: refresh types: commit: %w", err)
	}
	return nil
}

// CachedColumns reads back the column names currently cached in the
// types table, in no particular order.
func CachedColumns(ctx context.Context, db *sql.DB, n Names) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT column_name FROM "%s"`, n.Types))
	if err != nil {
		return nil, fmt.Errorf("shadow: read cached columns: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("shadow: scan cached column: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
