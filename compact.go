package sqlitecrdt

import (
	"context"
	"fmt"
)

// Compact deletes every tombstone row whose db_version is strictly
// less than watermark and returns the count removed. The caller must
// supply the minimum db_version acknowledged by every peer; the engine
// enforces no policy beyond executing the delete.
//
// The delete runs in batches of e.opts.CompactBatchSize rows so a large
// compaction never holds one huge transaction open against a table
// other writers may be waiting on.
func (e *Engine) Compact(ctx context.Context, watermark uint64) (int, error) {
	if err := e.checkLatchedError(); err != nil {
		return 0, err
	}
	if err := e.requireTracked(); err != nil {
		return 0, err
	}

	batchSQL := fmt.Sprintf(
		`DELETE FROM "%s" WHERE rowid IN (SELECT rowid FROM "%s" WHERE db_version < ? LIMIT ?)`,
		e.names.Tombstones, e.names.Tombstones)

	var total int
	for {
		res, err := e.db.ExecContext(ctx, batchSQL, int64(watermark), e.opts.CompactBatchSize)
		if err != nil {
			return total, newTableError(ErrExecutionFailed, "compact tombstones", e.table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, newTableError(ErrExecutionFailed, "read compaction row count", e.table, err)
		}
		total += int(n)
		if int(n) < e.opts.CompactBatchSize {
			break
		}
	}

	e.logger.Info("compaction complete", "table", e.table, "watermark", watermark, "removed", total)
	return total, nil
}
