package sqlitecrdt

import (
	"context"
	"database/sql"

	"github.com/cellarsync/sqlitecrdt/internal/shadow"
	"github.com/cellarsync/sqlitecrdt/internal/trigger"
)

// Execute passes sql through to the database. If the authorizer hook
// observed an ALTER TABLE during execution, the schema is refreshed
// before Execute returns.
func (e *Engine) Execute(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := e.checkLatchedError(); err != nil {
		return nil, err
	}
	res, err := e.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, newStatementError(ErrExecutionFailed, "execute statement", query, err)
	}
	if err := e.maybeRefreshSchema(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Prepare exposes a prepared statement handle. Writes issued through
// it are still tracked: triggers fire on row mutation regardless of
// the statement vehicle.
func (e *Engine) Prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if err := e.checkLatchedError(); err != nil {
		return nil, err
	}
	stmt, err := e.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, newStatementError(ErrPrepareFailed, "prepare statement", query, err)
	}
	return stmt, nil
}

// RefreshSchema re-introspects the tracked table's columns, refreshes
// the cached type advisories, and re-emits the three triggers without
// IF NOT EXISTS, so a silently-missing column surfaces as an error. It
// is normally invoked automatically after Execute observes an ALTER
// TABLE, but is exported for callers who mutate the schema through a
// bypassed path.
func (e *Engine) RefreshSchema(ctx context.Context) error {
	if err := e.checkLatchedError(); err != nil {
		return err
	}
	if err := e.requireTracked(); err != nil {
		return err
	}
	return e.refreshSchemaLocked(ctx)
}

func (e *Engine) maybeRefreshSchema(ctx context.Context) error {
	if !e.schemaRefreshPending || e.table == "" {
		e.schemaRefreshPending = false
		return nil
	}
	e.schemaRefreshPending = false
	return e.refreshSchemaLocked(ctx)
}

func (e *Engine) refreshSchemaLocked(ctx context.Context) error {
	cols, err := shadow.Columns(ctx, e.db, e.table)
	if err != nil {
		return newTableError(ErrExecutionFailed, "re-introspect columns", e.table, err)
	}
	if err := shadow.RefreshTypes(ctx, e.db, e.names, cols); err != nil {
		return newTableError(ErrExecutionFailed, "refresh column types", e.table, err)
	}

	colNames := columnNames(cols)
	if err := trigger.Drop(ctx, e.db, e.table); err != nil {
		return newTableError(ErrExecutionFailed, "drop triggers for schema refresh", e.table, err)
	}
	if err := trigger.Install(ctx, e.db, e.table, colNames, e.idMode); err != nil {
		return newTableError(ErrExecutionFailed, "reinstall triggers for schema refresh", e.table, err)
	}
	e.columns = colNames

	e.logger.Info("schema refreshed", "table", e.table, "columns", len(colNames))
	return nil
}
