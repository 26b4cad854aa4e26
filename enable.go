package sqlitecrdt

import (
	"context"
	"fmt"
	"strings"

	"github.com/cellarsync/sqlitecrdt/internal/shadow"
	"github.com/cellarsync/sqlitecrdt/internal/trigger"
)

// Enable installs the shadow schema and triggers for table. It fails
// if the name is invalid or too long, the table does not exist, or
// another table is already enabled on this engine instance: the
// record-id shape and tracked-table name are fixed once per instance.
func (e *Engine) Enable(ctx context.Context, table string) error {
	if err := e.checkLatchedError(); err != nil {
		return err
	}
	if e.table != "" {
		return newTableError(ErrInvalidName, fmt.Sprintf("table %q is already enabled on this engine", e.table), table, nil)
	}

	if err := shadow.ValidateTableName(table); err != nil {
		code := ErrInvalidName
		if len(table) > shadow.MaxTableNameLen {
			code = ErrNameTooLong
		}
		return newTableError(code, err.Error(), table, err)
	}

	exists, err := shadow.TableExists(ctx, e.db, table)
	if err != nil {
		return newTableError(ErrExecutionFailed, "check table existence", table, err)
	}
	if !exists {
		return newTableError(ErrInvalidName, "table does not exist", table, nil)
	}

	cols, err := shadow.Columns(ctx, e.db, table)
	if err != nil {
		return newTableError(ErrExecutionFailed, "introspect columns", table, err)
	}
	mode := shadow.RowIDMode
	if shadow.HasBlobIDColumn(cols) {
		mode = shadow.BlobIDMode
	}

	names := shadow.ShadowNames(table)
	if err := shadow.Install(ctx, e.db, names, mode); err != nil {
		return newTableError(ErrExecutionFailed, "install shadow schema", table, err)
	}
	if err := shadow.RefreshTypes(ctx, e.db, names, cols); err != nil {
		return newTableError(ErrExecutionFailed, "cache column types", table, err)
	}

	colNames := columnNames(cols)
	if err := trigger.Drop(ctx, e.db, table); err != nil {
		return newTableError(ErrExecutionFailed, "drop stale triggers", table, err)
	}
	if err := trigger.Install(ctx, e.db, table, colNames, mode); err != nil {
		return newTableError(ErrExecutionFailed, "install triggers", table, err)
	}

	e.table = table
	e.names = names
	e.idMode = mode
	e.columns = colNames

	e.logger.Info("table enabled", "table", table, "id_mode", mode, "columns", len(colNames))
	return nil
}

// columnNames returns the tracked column list for the trigger
// generator: every column except "id", which (in either mode: an
// INTEGER PRIMARY KEY rowid alias, or a dedicated BLOB column) holds
// the record identity rather than a tracked value and has no versions
// row of its own.
func columnNames(cols []shadow.Column) []string {
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		if strings.EqualFold(c.Name, "id") {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}
