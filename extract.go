package sqlitecrdt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cellarsync/sqlitecrdt/internal/recordid"
	"github.com/cellarsync/sqlitecrdt/internal/valcodec"
	"github.com/cellarsync/sqlitecrdt/internal/wire"
)

// MaxExcludedNodes mirrors internal/config.MaxExcludedNodes: the
// caller-facing bound on the excluded-node set.
const MaxExcludedNodes = 100

// ChangesSince returns every versions and tombstones row with
// local_db_version > cursor and node_id not in excludedNodes, ordered
// by local_db_version ascending, capped at max entries. If max is 0,
// the engine falls back to e.opts.ChangesSinceDefaultLimit rather than
// returning everything unconditionally. Column changes carry the value
// as of the extraction moment, not as of the originating write.
func (e *Engine) ChangesSince(ctx context.Context, cursor uint64, excludedNodes []uint64, max uint64) ([]wire.Change, error) {
	if err := e.checkLatchedError(); err != nil {
		return nil, err
	}
	if err := e.requireTracked(); err != nil {
		return nil, err
	}
	if len(excludedNodes) > MaxExcludedNodes {
		return nil, newError(ErrTooManyExcludedNodes,
			fmt.Sprintf("excluded_nodes has %d entries, limit is %d", len(excludedNodes), MaxExcludedNodes), nil)
	}

	exclClause, exclArgs := excludedNodesClause(excludedNodes)

	effectiveMax := max
	if effectiveMax == 0 {
		effectiveMax = e.opts.ChangesSinceDefaultLimit
	}
	var limit *uint64
	if effectiveMax > 0 && effectiveMax < math.MaxUint64 {
		limit = &effectiveMax
	}

	versionChanges, err := e.extractVersionChanges(ctx, cursor, exclClause, exclArgs, limit)
	if err != nil {
		return nil, newTableError(ErrExecutionFailed, "extract version changes", e.table, err)
	}

	var tombLimit *uint64
	if limit != nil {
		remaining := int64(*limit) - int64(len(versionChanges))
		if remaining <= 0 {
			return sortByLocalDBVersion(versionChanges), nil
		}
		u := uint64(remaining)
		tombLimit = &u
	}

	tombChanges, err := e.extractTombstoneChanges(ctx, cursor, exclClause, exclArgs, tombLimit)
	if err != nil {
		return nil, newTableError(ErrExecutionFailed, "extract tombstone changes", e.table, err)
	}

	all := append(versionChanges, tombChanges...)
	return sortByLocalDBVersion(all), nil
}

func excludedNodesClause(nodes []uint64) (string, []interface{}) {
	if len(nodes) == 0 {
		return "", nil
	}
	placeholders := make([]string, len(nodes))
	args := make([]interface{}, len(nodes))
	for i, n := range nodes {
		placeholders[i] = "?"
		args[i] = int64(n)
	}
	return " AND node_id NOT IN (" + strings.Join(placeholders, ",") + ")", args
}

func (e *Engine) extractVersionChanges(ctx context.Context, cursor uint64, exclClause string, exclArgs []interface{}, limit *uint64) ([]wire.Change, error) {
	query := fmt.Sprintf(
		`SELECT record_id, column_name, column_version, db_version, node_id, local_db_version FROM "%s" WHERE local_db_version > ?%s ORDER BY local_db_version ASC`,
		e.names.Versions, exclClause)
	args := append([]interface{}{int64(cursor)}, exclArgs...)
	if limit != nil {
		query += " LIMIT ?"
		args = append(args, int64(*limit))
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wire.Change
	for rows.Next() {
		var recRaw interface{}
		var colName string
		var colV, dbV, node, ldv int64
		if err := rows.Scan(&recRaw, &colName, &colV, &dbV, &node, &ldv); err != nil {
			return nil, err
		}
		rid, err := recordid.FromDriverValue(e.recordIDKind(), recRaw)
		if err != nil {
			return nil, err
		}

		val, err := e.readCurrentValue(ctx, rid, colName)
		if err != nil {
			return nil, err
		}

		out = append(out, wire.Change{
			RecordID:       rid,
			ColumnName:     &colName,
			Value:          val,
			ColumnVersion:  uint64(colV),
			DBVersion:      uint64(dbV),
			NodeID:         uint64(node),
			LocalDBVersion: uint64(ldv),
		})
	}
	return out, rows.Err()
}

func (e *Engine) extractTombstoneChanges(ctx context.Context, cursor uint64, exclClause string, exclArgs []interface{}, limit *uint64) ([]wire.Change, error) {
	query := fmt.Sprintf(
		`SELECT record_id, db_version, node_id, local_db_version FROM "%s" WHERE local_db_version > ?%s ORDER BY local_db_version ASC`,
		e.names.Tombstones, exclClause)
	args := append([]interface{}{int64(cursor)}, exclArgs...)
	if limit != nil {
		query += " LIMIT ?"
		args = append(args, int64(*limit))
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []wire.Change
	for rows.Next() {
		var recRaw interface{}
		var dbV, node, ldv int64
		if err := rows.Scan(&recRaw, &dbV, &node, &ldv); err != nil {
			return nil, err
		}
		rid, err := recordid.FromDriverValue(e.recordIDKind(), recRaw)
		if err != nil {
			return nil, err
		}
		out = append(out, wire.Change{
			RecordID:       rid,
			DBVersion:      uint64(dbV),
			NodeID:         uint64(node),
			LocalDBVersion: uint64(ldv),
		})
	}
	return out, rows.Err()
}

// readCurrentValue reads column's live value for rid: an extracted
// change carries the value as of the extraction moment, not as of the
// write that produced its column_version. A record deleted after this
// column_version was written has no row left to read; that deletion is
// already carried by its own tombstone change in the same extraction,
// so a missing row here is reported as a nil value rather than an
// error.
func (e *Engine) readCurrentValue(ctx context.Context, rid recordid.ID, column string) (*valcodec.Value, error) {
	idCol := "rowid"
	if e.recordIDKind() != recordid.IntegerKind {
		idCol = "id"
	}
	var raw interface{}
	err := e.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT "%s" FROM "%s" WHERE %s = ?`, column, e.table, idCol), rid.DriverValue()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read current value of %s for record %s: %w", column, rid, err)
	}
	v, err := valcodec.FromDriverValue(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func sortByLocalDBVersion(changes []wire.Change) []wire.Change {
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].LocalDBVersion < changes[j].LocalDBVersion
	})
	return changes
}
