package sqlitecrdt

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cellarsync/sqlitecrdt/internal/shadow"
	"github.com/cellarsync/sqlitecrdt/internal/trigger"
	"github.com/cellarsync/sqlitecrdt/internal/wire"
)

// Merge accepts a sequence of remote changes, resolves each against
// local metadata with last-writer-wins, and applies the winners to the
// user table and metadata. It returns the subsequence of input changes
// that won, so the caller can acknowledge progress to peers.
//
// Triggers are dropped for the duration of the merge and reinstalled
// on every exit path, including error: otherwise the merge's own
// writes to the user table would re-enter the pending pipeline and
// double-count as local edits.
func (e *Engine) Merge(ctx context.Context, changes []wire.Change) (accepted []wire.Change, err error) {
	if err := e.checkLatchedError(); err != nil {
		return nil, err
	}
	if err := e.requireTracked(); err != nil {
		return nil, err
	}

	if err := trigger.Drop(ctx, e.db, e.table); err != nil {
		return nil, newTableError(ErrExecutionFailed, "drop triggers for merge", e.table, err)
	}
	defer func() {
		if restoreErr := trigger.Install(ctx, e.db, e.table, e.columns, e.idMode); restoreErr != nil {
			e.logger.Error("trigger restoration failed after merge",
				"table", e.table, "error", restoreErr, "event", "trigger_restore_failed")
			if err == nil {
				err = newTableError(ErrInternal, "restore triggers after merge", e.table, restoreErr)
			}
		}
	}()

	tx, txErr := e.db.BeginTx(ctx, nil)
	if txErr != nil {
		return nil, newTableError(ErrExecutionFailed, "begin merge transaction", e.table, txErr)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	k, err := readClockTx(ctx, tx, e.names.Clock)
	if err != nil {
		return nil, newTableError(ErrExecutionFailed, "read clock", e.table, err)
	}

	for _, x := range changes {
		win, applyErr := e.resolveAndApply(ctx, tx, x, &k)
		if applyErr != nil {
			if IsClockOverflow(applyErr) {
				// Latched so every later call fails with it too.
				if e.pendingErr == nil {
					e.pendingErr = applyErr
				}
				return nil, applyErr
			}
			return nil, newTableError(ErrExecutionFailed, "apply change", e.table, applyErr)
		}
		if win {
			accepted = append(accepted, x)
		}
	}

	if err := writeClockTx(ctx, tx, e.names.Clock, k); err != nil {
		return nil, newTableError(ErrExecutionFailed, "write clock", e.table, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, newTableError(ErrExecutionFailed, "commit merge", e.table, err)
	}
	committed = true

	e.logger.Info("merge complete", "table", e.table, "input", len(changes), "accepted", len(accepted))
	return accepted, nil
}

// resolveAndApply resolves one incoming change against local metadata
// and, if it wins, applies it to the user table and metadata. k is the
// merge transaction's running local clock, advanced once per accepted
// change.
func (e *Engine) resolveAndApply(ctx context.Context, tx *sql.Tx, x wire.Change, k *uint64) (bool, error) {
	if x.IsTombstone() {
		return e.resolveTombstone(ctx, tx, x, k)
	}
	return e.resolveColumnChange(ctx, tx, x, k)
}

func (e *Engine) resolveTombstone(ctx context.Context, tx *sql.Tx, x wire.Change, k *uint64) (bool, error) {
	var dbV, node int64
	err := tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT db_version, node_id FROM "%s" WHERE record_id = ?`, e.names.Tombstones),
		x.RecordID.DriverValue()).Scan(&dbV, &node)

	win := false
	switch {
	case err == sql.ErrNoRows:
		win = true
	case err != nil:
		return false, fmt.Errorf("read tombstone: %w", err)
	default:
		win = greaterTuple2(x.DBVersion, x.NodeID, uint64(dbV), uint64(node))
	}
	if !win {
		return false, nil
	}

	nk, err := incrementClock(*k)
	if err != nil {
		return false, err
	}
	*k = nk

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO "%s" (record_id, db_version, node_id, local_db_version) VALUES (?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET db_version = excluded.db_version, node_id = excluded.node_id, local_db_version = excluded.local_db_version
	`, e.names.Tombstones), x.RecordID.DriverValue(), int64(x.DBVersion), int64(x.NodeID), int64(*k)); err != nil {
		return false, fmt.Errorf("upsert tombstone: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`DELETE FROM "%s" WHERE %s = ?`, e.table, e.idColumnRef()), x.RecordID.DriverValue()); err != nil {
		return false, fmt.Errorf("delete user row: %w", err)
	}
	return true, nil
}

func (e *Engine) resolveColumnChange(ctx context.Context, tx *sql.Tx, x wire.Change, k *uint64) (bool, error) {
	if x.ColumnName == nil {
		return false, fmt.Errorf("sqlitecrdt: change has neither column_name nor tombstone shape")
	}
	col := *x.ColumnName

	var colV, dbV, node int64
	err := tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT column_version, db_version, node_id FROM "%s" WHERE record_id = ? AND column_name = ?`, e.names.Versions),
		x.RecordID.DriverValue(), col).Scan(&colV, &dbV, &node)

	win := false
	switch {
	case err == sql.ErrNoRows:
		win = true
	case err != nil:
		return false, fmt.Errorf("read version: %w", err)
	default:
		win = greaterTuple3(x.ColumnVersion, x.DBVersion, x.NodeID, uint64(colV), uint64(dbV), uint64(node))
	}
	if !win {
		return false, nil
	}

	driverVal := interface{}(nil)
	if x.Value != nil {
		driverVal = x.Value.DriverValue()
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE "%s" SET "%s" = ? WHERE %s = ?`, e.table, col, e.idColumnRef()),
		driverVal, x.RecordID.DriverValue())
	if err != nil {
		return false, fmt.Errorf("update user row: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		insRes, err := tx.ExecContext(ctx, fmt.Sprintf(
			`INSERT OR IGNORE INTO "%s" (%s, "%s") VALUES (?, ?)`, e.table, e.idColumnRef(), col),
			x.RecordID.DriverValue(), driverVal)
		if err != nil {
			return false, fmt.Errorf("insert user row: %w", err)
		}
		insAffected, err := insRes.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("rows affected: %w", err)
		}
		if insAffected == 0 {
			// A concurrent writer created the row between our UPDATE and
			// INSERT attempts; fall back to UPDATE.
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(
				`UPDATE "%s" SET "%s" = ? WHERE %s = ?`, e.table, col, e.idColumnRef()),
				driverVal, x.RecordID.DriverValue()); err != nil {
				return false, fmt.Errorf("fallback update user row: %w", err)
			}
		}
	}

	nk, err := incrementClock(*k)
	if err != nil {
		return false, err
	}
	*k = nk

	// The remote column_version and db_version are stored as-is; only
	// local_db_version is stamped with this replica's own clock.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO "%s" (record_id, column_name, column_version, db_version, node_id, local_db_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id, column_name) DO UPDATE SET
			column_version = excluded.column_version,
			db_version = excluded.db_version,
			node_id = excluded.node_id,
			local_db_version = excluded.local_db_version
	`, e.names.Versions), x.RecordID.DriverValue(), col, int64(x.ColumnVersion), int64(x.DBVersion), int64(x.NodeID), int64(*k)); err != nil {
		return false, fmt.Errorf("upsert version: %w", err)
	}

	return true, nil
}

// idColumnRef is the SQL identifier merge uses to address a record by
// primary key in the user table.
func (e *Engine) idColumnRef() string {
	if e.idMode == shadow.BlobIDMode {
		return "id"
	}
	return "rowid"
}

func greaterTuple2(a1, a2, b1, b2 uint64) bool {
	if a1 != b1 {
		return a1 > b1
	}
	return a2 > b2
}

func greaterTuple3(a1, a2, a3, b1, b2, b3 uint64) bool {
	if a1 != b1 {
		return a1 > b1
	}
	if a2 != b2 {
		return a2 > b2
	}
	return a3 > b3
}

func readClockTx(ctx context.Context, tx *sql.Tx, clockTable string) (uint64, error) {
	var v int64
	err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT time FROM "%s"`, clockTable)).Scan(&v)
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func writeClockTx(ctx context.Context, tx *sql.Tx, clockTable string, k uint64) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE "%s" SET time = ?`, clockTable), int64(k))
	return err
}
