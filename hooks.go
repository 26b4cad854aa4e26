package sqlitecrdt

import (
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"
)

var driverSeq int64

// registerHookedDriver registers a database/sql driver unique to this
// Engine instance, whose ConnectHook binds the first raw connection it
// sees to e. A fresh name per instance is required because
// sql.Register is process-global but each Engine owns exactly one
// connection's hooks, which must stay bound for as long as the engine
// itself is in use.
func registerHookedDriver(e *Engine) string {
	name := fmt.Sprintf("sqlitecrdt-%d", atomic.AddInt64(&driverSeq, 1))
	sql.Register(name, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			e.bindConn(conn)
			return nil
		},
	})
	return name
}

// bindConn wires the three engine-wide hooks onto the connection the
// driver just opened: an authorizer to catch schema changes, and a
// commit/rollback pair to promote or discard whatever the triggers
// staged during the transaction that just ended.
func (e *Engine) bindConn(conn *sqlite3.SQLiteConn) {
	e.conn = conn
	conn.RegisterAuthorizer(e.authorize)
	conn.RegisterCommitHook(e.onCommit)
	conn.RegisterRollbackHook(e.onRollback)
}

// authorize watches for ALTER TABLE so a schema refresh can be deferred
// until the statement that triggered it returns successfully, and
// denies dropping the tracked table outright: without its user table,
// the shadow tables and triggers this engine installed would be
// orphaned with no way to detect or recover them.
func (e *Engine) authorize(op int, arg1, arg2, arg3 string) int {
	switch op {
	case sqlite3.SQLITE_ALTER_TABLE:
		e.schemaRefreshPending = true
	case sqlite3.SQLITE_DROP_TABLE:
		if e.table != "" && arg1 == e.table {
			return sqlite3.SQLITE_DENY
		}
	}
	return sqlite3.SQLITE_OK
}

// onCommit runs after SQLite has durably committed a transaction. It
// must never force an unwanted rollback of a transaction that already
// succeeded from the caller's point of view, so any failure here is
// latched rather than propagated through the return value.
func (e *Engine) onCommit() int {
	if e.draining {
		// drainPending's own writes commit through this same connection;
		// without this guard that commit would re-enter onCommit.
		return 0
	}
	if e.table == "" {
		return 0
	}
	e.draining = true
	defer func() { e.draining = false }()

	if err := e.drainPending(); err != nil {
		e.latch(fmt.Errorf("sqlitecrdt: pending drain: %w", err))
	}
	return 0
}

// onRollback implements the rollback hook: it purges the pending
// buffer so nothing an aborted transaction's triggers staged survives
// to be promoted by a later, unrelated commit.
func (e *Engine) onRollback() {
	if e.table == "" {
		return
	}
	if err := e.purgePending(); err != nil {
		e.latch(fmt.Errorf("sqlitecrdt: rollback purge: %w", err))
	}
}
