// Package trigger generates and installs the AFTER INSERT, AFTER
// UPDATE, and BEFORE DELETE triggers that record every row mutation
// into a table's pending shadow queue. DDL is composed with plain
// fmt.Sprintf rather than a templating layer, and applied with
// database/sql against the same connection the mutation runs on.
package trigger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cellarsync/sqlitecrdt/internal/shadow"
)

// Operation is the numeric pending-row operation code a trigger writes,
// consumed by the pending-drain pipeline to decide how to fold a queued
// row into versions/tombstones.
type Operation int

const (
	// OpInsert marks a column written by a freshly inserted row.
	OpInsert Operation = 1
	// OpUpdate marks a column whose value changed on an existing row.
	OpUpdate Operation = 2
	// OpDelete marks a row's deletion. Exactly one pending row is
	// written per deleted row, regardless of column count.
	OpDelete Operation = 3
)

// Names returns the deterministic trigger names for a user table, all
// grouped under the shadow prefix and independent of column list so
// Drop/Install remain stable across schema changes.
type Names struct {
	Insert string
	Update string
	Delete string
}

func triggerNames(table string) Names {
	return Names{
		Insert: shadow.ShadowPrefix + table + "_ai",
		Update: shadow.ShadowPrefix + table + "_au",
		Delete: shadow.ShadowPrefix + table + "_bd",
	}
}

// Drop removes all three triggers for table, ignoring "does not exist"
// by using IF EXISTS: called before Install so a schema-change refresh
// always starts from a clean slate rather than accumulating stale
// per-column guards.
func Drop(ctx context.Context, db *sql.DB, table string) error {
	n := triggerNames(table)
	for _, name := range []string{n.Insert, n.Update, n.Delete} {
		if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TRIGGER IF EXISTS "%s"`, name)); err != nil {
			return fmt.Errorf("trigger: drop %q: %w", name, err)
		}
	}
	return nil
}

// Install (re)creates the three triggers for table against the given
// tracked column list and id mode. Callers must Drop first: trigger
// bodies are rebuilt from scratch on every schema change since the
// per-column UPDATE guards are baked directly into the trigger body
// rather than looked up dynamically at fire time.
func Install(ctx context.Context, db *sql.DB, table string, cols []string, mode shadow.IDMode) error {
	if len(cols) == 0 {
		return fmt.Errorf("trigger: table %q has no tracked columns", table)
	}
	n := shadow.ShadowNames(table)
	names := triggerNames(table)

	insertBody := insertTriggerSQL(names.Insert, table, n, cols, mode)
	updateBody := updateTriggerSQL(names.Update, table, n, cols, mode)
	deleteBody := deleteTriggerSQL(names.Delete, table, n, mode)

	for _, stmt := range []string{insertBody, updateBody, deleteBody} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("trigger: install for %q: %w", table, err)
		}
	}
	return nil
}

// insertTriggerSQL builds an AFTER INSERT trigger that appends one
// pending row per tracked column, unconditionally: a freshly inserted
// row has no "old" value to compare against.
func insertTriggerSQL(name, table string, n shadow.Names, cols []string, mode shadow.IDMode) string {
	recID := mode.UserIDExpr("NEW")
	stmt := fmt.Sprintf("CREATE TRIGGER \"%s\" AFTER INSERT ON \"%s\" BEGIN\n", name, table)
	for _, c := range cols {
		stmt += fmt.Sprintf(
			"  INSERT INTO \"%s\" (operation, record_id, column_name) VALUES (%d, %s, %s);\n",
			n.Pending, OpInsert, recID, quoteLiteral(c),
		)
	}
	stmt += "END"
	return stmt
}

// updateTriggerSQL builds an AFTER UPDATE trigger with one guarded
// INSERT per tracked column: "OLD.c IS NOT NEW.c" is NULL-safe (unlike
// "!="), so a column changing to or from NULL is still recorded
// exactly once.
func updateTriggerSQL(name, table string, n shadow.Names, cols []string, mode shadow.IDMode) string {
	recID := mode.UserIDExpr("NEW")
	stmt := fmt.Sprintf("CREATE TRIGGER \"%s\" AFTER UPDATE ON \"%s\" BEGIN\n", name, table)
	for _, c := range cols {
		qc := quoteIdent(c)
		stmt += fmt.Sprintf(
			"  INSERT INTO \"%s\" (operation, record_id, column_name) SELECT %d, %s, %s WHERE OLD.%s IS NOT NEW.%s;\n",
			n.Pending, OpUpdate, recID, quoteLiteral(c), qc, qc,
		)
	}
	stmt += "END"
	return stmt
}

// deleteTriggerSQL builds a BEFORE DELETE trigger writing exactly one
// pending row for the deleted record, with a placeholder column_name:
// deletion is a whole-row event, not a per-column one. BEFORE, not
// AFTER, because OLD.rowid/OLD.id must still be readable.
func deleteTriggerSQL(name, table string, n shadow.Names, mode shadow.IDMode) string {
	recID := mode.UserIDExpr("OLD")
	return fmt.Sprintf(
		"CREATE TRIGGER \"%s\" BEFORE DELETE ON \"%s\" BEGIN\n"+
			"  INSERT INTO \"%s\" (operation, record_id, column_name) VALUES (%d, %s, '');\n"+
			"END",
		name, table, n.Pending, OpDelete, recID,
	)
}

// quoteIdent wraps a column name for use as a bare identifier in a
// trigger body. Columns come only from shadow.Columns (SQLite's own
// catalog), never from external input.
func quoteIdent(name string) string {
	return `"` + name + `"`
}

// quoteLiteral wraps a column name for use as a text literal (the
// pending table's column_name value), escaping embedded single quotes
// per SQL string-literal rules.
func quoteLiteral(name string) string {
	escaped := ""
	for _, r := range name {
		if r == '\'' {
			escaped += "''"
			continue
		}
		escaped += string(r)
	}
	return "'" + escaped + "'"
}
