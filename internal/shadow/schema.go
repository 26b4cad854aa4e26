// Package shadow installs and maintains the five shadow tables an
// enabled user table needs: versions, tombstones, clock, pending, and
// types. DDL is embedded and applied with IF NOT EXISTS via
// database/sql against the same *sql.DB the user table lives in, with
// one shadow schema generated per enabled table and named from the
// table's own name.
package shadow

import (
	"fmt"
	"regexp"
)

// MaxTableNameLen is the longest user table name the engine will
// enable. The five shadow tables are named
// "<Prefix><table><suffix>"; ShadowPrefix and the longest suffix
// ("_tombstones") fix the remaining budget for a table name that
// still fits comfortably within SQLite's identifier handling headroom
// used elsewhere in this engine (trigger and index names derived from
// the same shadow names, with their own suffixes, must also fit).
const MaxTableNameLen = 23

// ShadowPrefix groups every shadow object under a name a user schema is
// vanishingly unlikely to collide with.
const ShadowPrefix = "__crdt_"

var tableNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateTableName enforces the naming rule for tables the engine can
// enable: `[A-Za-z0-9_]+`, length <= 23.
func ValidateTableName(name string) error {
	if !tableNameRe.MatchString(name) {
		return fmt.Errorf("shadow: invalid table name %q: must match [A-Za-z0-9_]+", name)
	}
	if len(name) > MaxTableNameLen {
		return fmt.Errorf("shadow: table name %q is %d bytes, longer than the %d-byte limit", name, len(name), MaxTableNameLen)
	}
	return nil
}

// Names holds the five shadow table names derived from one user table.
type Names struct {
	Table      string
	Versions   string
	Tombstones string
	Clock      string
	Pending    string
	Types      string
}

// ShadowNames computes the five shadow table names for a user table.
// The caller must have already validated table via ValidateTableName.
func ShadowNames(table string) Names {
	return Names{
		Table:      table,
		Versions:   ShadowPrefix + table + "_versions",
		Tombstones: ShadowPrefix + table + "_tombstones",
		Clock:      ShadowPrefix + table + "_clock",
		Pending:    ShadowPrefix + table + "_pending",
		Types:      ShadowPrefix + table + "_types",
	}
}

// IDMode selects the record-identifier shape a shadow schema was built
// for: a table's own INTEGER PRIMARY KEY rowid, or a 16-byte opaque
// value in a column literally named "id".
type IDMode int

const (
	RowIDMode IDMode = iota
	BlobIDMode
)

// idColumnType returns the SQLite storage class shadow tables use for
// their record_id column, matching whichever ID shape the user table
// uses.
func (m IDMode) idColumnType() string {
	if m == BlobIDMode {
		return "BLOB"
	}
	return "INTEGER"
}

// UserIDExpr returns the SQL expression that reads a row's record id
// inside a trigger body ("NEW."/"OLD." is supplied by the caller as
// prefix): rowid for integer mode, the "id" column for blob mode.
func (m IDMode) UserIDExpr(prefix string) string {
	if m == BlobIDMode {
		return prefix + ".id"
	}
	return prefix + ".rowid"
}

// DDL returns the idempotent CREATE statements for the five shadow
// tables and their indices. Every statement is IF NOT EXISTS: shadow
// installation must be safe to run against an already-enabled table.
func DDL(n Names, mode IDMode) []string {
	idType := mode.idColumnType()
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
			record_id %s NOT NULL,
			column_name TEXT NOT NULL,
			column_version INTEGER NOT NULL,
			db_version INTEGER NOT NULL,
			node_id INTEGER NOT NULL,
			local_db_version INTEGER NOT NULL,
			PRIMARY KEY (record_id, column_name)
		)`, n.Versions, idType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "%s_ldv" ON "%s" (local_db_version)`, n.Versions, n.Versions),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
			record_id %s NOT NULL PRIMARY KEY,
			db_version INTEGER NOT NULL,
			node_id INTEGER NOT NULL,
			local_db_version INTEGER NOT NULL
		)`, n.Tombstones, idType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "%s_ldv" ON "%s" (local_db_version)`, n.Tombstones, n.Tombstones),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
			time INTEGER NOT NULL
		)`, n.Clock),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			operation INTEGER NOT NULL,
			record_id %s NOT NULL,
			column_name TEXT NOT NULL
		)`, n.Pending, idType),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
			column_name TEXT NOT NULL PRIMARY KEY,
			type_tag INTEGER NOT NULL
		)`, n.Types),
	}
}
