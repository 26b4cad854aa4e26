package sqlitecrdt

import (
	"database/sql/driver"
	"fmt"
	"io"
	"math"

	"github.com/cellarsync/sqlitecrdt/internal/trigger"
)

// pendingRow is one staged trigger record read back out of the pending
// buffer.
type pendingRow struct {
	seq      int64
	op       int64
	recordID driver.Value
	column   string
}

// drainPending implements the post-commit promotion algorithm: it
// walks the pending buffer a committed transaction's triggers wrote,
// advancing the logical clock and the versions/tombstones rows for
// each tuple. It runs on the raw connection because it is invoked from
// inside the commit hook, where the connection is still checked out
// for the transaction that just committed (see rawsql.go).
//
// Rows are fetched and promoted in batches of e.opts.PendingDrainBatchSize
// rather than all at once, so a single transaction that staged an
// unusually large number of trigger rows (a bulk INSERT...SELECT, say)
// does not require materializing every one of them at once.
func (e *Engine) drainPending() error {
	k, err := e.readClockRaw()
	if err != nil {
		return fmt.Errorf("read clock: %w", err)
	}

	var afterSeq int64
	for {
		batch, err := e.fetchPendingBatchRaw(afterSeq, e.opts.PendingDrainBatchSize)
		if err != nil {
			return fmt.Errorf("scan pending: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		afterSeq = batch[len(batch)-1].seq

		for _, p := range batch {
			var nk uint64
			nk, err = incrementClock(k)
			if err != nil {
				return err
			}
			k = nk

			if p.op == int64(trigger.OpDelete) {
				if err := e.upsertTombstoneRaw(p.recordID, k, e.nodeID, k); err != nil {
					return fmt.Errorf("upsert tombstone: %w", err)
				}
				continue
			}

			v, err := e.readColumnVersionRaw(p.recordID, p.column)
			if err != nil {
				return fmt.Errorf("read column version: %w", err)
			}
			v++
			if err := e.upsertVersionRaw(p.recordID, p.column, v, k, e.nodeID, k); err != nil {
				return fmt.Errorf("upsert version: %w", err)
			}
		}

		if len(batch) < e.opts.PendingDrainBatchSize {
			break
		}
	}

	if err := execConn(e.conn, fmt.Sprintf(`DELETE FROM "%s"`, e.names.Pending)); err != nil {
		return fmt.Errorf("truncate pending: %w", err)
	}
	if err := e.writeClockRaw(k); err != nil {
		return fmt.Errorf("write clock: %w", err)
	}
	return nil
}

// fetchPendingBatchRaw reads up to limit pending rows with seq greater
// than afterSeq, ordered by seq.
func (e *Engine) fetchPendingBatchRaw(afterSeq int64, limit int) ([]pendingRow, error) {
	rows, err := queryConn(e.conn, fmt.Sprintf(
		`SELECT seq, operation, record_id, column_name FROM "%s" WHERE seq > ? ORDER BY seq LIMIT ?`, e.names.Pending),
		afterSeq, limit)
	if err != nil {
		return nil, err
	}
	cols := rows.Columns()
	defer rows.Close()

	var batch []pendingRow
	for {
		dest := make([]driver.Value, len(cols))
		nextErr := rows.Next(dest)
		if nextErr == io.EOF {
			break
		}
		if nextErr != nil {
			return nil, fmt.Errorf("iterate pending: %w", nextErr)
		}
		seq, _ := asInt64(dest[0])
		op, _ := asInt64(dest[1])
		colName, _ := dest[3].(string)
		batch = append(batch, pendingRow{seq: seq, op: op, recordID: dest[2], column: colName})
	}
	return batch, nil
}

// purgePending discards the pending buffer after a rolled-back
// transaction, so it stays empty outside an active transaction.
func (e *Engine) purgePending() error {
	return execConn(e.conn, fmt.Sprintf(`DELETE FROM "%s"`, e.names.Pending))
}

// incrementClock advances the logical clock by one, returning a fatal
// clock_overflow error if doing so would exceed what a SQLite INTEGER
// column can store.
func incrementClock(k uint64) (uint64, error) {
	if k >= math.MaxInt64 {
		return 0, newError(ErrClockOverflow, "logical clock would overflow int64 storage", nil)
	}
	return k + 1, nil
}

func (e *Engine) readClockRaw() (uint64, error) {
	rows, err := queryConn(e.conn, fmt.Sprintf(`SELECT time FROM "%s"`, e.names.Clock))
	if err != nil {
		return 0, err
	}
	dest := make([]driver.Value, 1)
	found, err := scanRow(rows, dest)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("sqlitecrdt: clock row missing for table %q", e.table)
	}
	v, _ := asInt64(dest[0])
	return uint64(v), nil
}

func (e *Engine) writeClockRaw(k uint64) error {
	return execConn(e.conn, fmt.Sprintf(`UPDATE "%s" SET time = ?`, e.names.Clock), int64(k))
}

func (e *Engine) readColumnVersionRaw(recordID driver.Value, column string) (uint64, error) {
	rows, err := queryConn(e.conn, fmt.Sprintf(
		`SELECT column_version FROM "%s" WHERE record_id = ? AND column_name = ?`, e.names.Versions),
		recordID, column)
	if err != nil {
		return 0, err
	}
	dest := make([]driver.Value, 1)
	found, err := scanRow(rows, dest)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	v, _ := asInt64(dest[0])
	return uint64(v), nil
}

func (e *Engine) upsertVersionRaw(recordID driver.Value, column string, colVersion, dbVersion, nodeID, localDBVersion uint64) error {
	return execConn(e.conn, fmt.Sprintf(`
		INSERT INTO "%s" (record_id, column_name, column_version, db_version, node_id, local_db_version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id, column_name) DO UPDATE SET
			column_version = excluded.column_version,
			db_version = excluded.db_version,
			node_id = excluded.node_id,
			local_db_version = excluded.local_db_version
	`, e.names.Versions), recordID, column, int64(colVersion), int64(dbVersion), int64(nodeID), int64(localDBVersion))
}

func (e *Engine) upsertTombstoneRaw(recordID driver.Value, dbVersion, nodeID, localDBVersion uint64) error {
	return execConn(e.conn, fmt.Sprintf(`
		INSERT INTO "%s" (record_id, db_version, node_id, local_db_version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			db_version = excluded.db_version,
			node_id = excluded.node_id,
			local_db_version = excluded.local_db_version
	`, e.names.Tombstones), recordID, int64(dbVersion), int64(nodeID), int64(localDBVersion))
}
