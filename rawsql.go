package sqlitecrdt

import (
	"database/sql/driver"
	"fmt"
	"io"

	"github.com/mattn/go-sqlite3"
)

// The commit and rollback hooks fire synchronously on the same
// *sqlite3.SQLiteConn that is already checked out of the connection
// pool to run the triggering statement. Reaching back into database/sql
// from inside the hook would try to borrow a second connection from a
// pool capped at one and deadlock. These helpers instead talk to the
// captured driver connection directly, the same technique the
// driver's own hook examples use.

func execConn(conn *sqlite3.SQLiteConn, query string, args ...interface{}) error {
	dargs, err := toDriverValues(args)
	if err != nil {
		return err
	}
	_, err = conn.Exec(query, dargs) //nolint:staticcheck // no-context path is required inside a hook
	return err
}

func queryConn(conn *sqlite3.SQLiteConn, query string, args ...interface{}) (driver.Rows, error) {
	dargs, err := toDriverValues(args)
	if err != nil {
		return nil, err
	}
	return conn.Query(query, dargs) //nolint:staticcheck
}

func toDriverValues(args []interface{}) ([]driver.Value, error) {
	out := make([]driver.Value, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case uint64:
			out[i] = int64(v)
		case int64, float64, bool, []byte, string, nil:
			out[i] = v
		case int:
			out[i] = int64(v)
		default:
			return nil, fmt.Errorf("sqlitecrdt: unsupported raw query argument type %T", a)
		}
	}
	return out, nil
}

// scanRow reads exactly one row of dest values from rows, reporting
// whether a row was present. dest must be pre-sized to the column
// count of the query.
func scanRow(rows driver.Rows, dest []driver.Value) (bool, error) {
	defer rows.Close()
	err := rows.Next(dest)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func asInt64(v driver.Value) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
