package sqlitecrdt

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/mattn/go-sqlite3"

	"github.com/cellarsync/sqlitecrdt/internal/config"
	"github.com/cellarsync/sqlitecrdt/internal/recordid"
	"github.com/cellarsync/sqlitecrdt/internal/shadow"
)

// Engine is a single stateful object bound to one database file and
// one node identifier. It is not safe for concurrent use by more than
// one goroutine at a time: callers wanting to share an engine across
// actors must provide their own mutual exclusion.
type Engine struct {
	db         *sql.DB
	driverName string
	conn       *sqlite3.SQLiteConn
	nodeID     uint64
	logger     *slog.Logger
	opts       config.Options

	table   string
	names   shadow.Names
	idMode  shadow.IDMode
	columns []string

	draining             bool
	schemaRefreshPending bool
	pendingErr           error
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the *slog.Logger the engine logs to. The
// default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithOptions overrides the engine's tunable configuration. The
// default is config.DefaultOptions().
func WithOptions(o config.Options) Option {
	return func(e *Engine) { e.opts = o }
}

// New opens or creates the SQLite database at path, enables foreign
// keys, switches journal mode to WAL, and registers the authorizer,
// commit, and rollback hooks. Any failure after open closes the
// connection.
func New(path string, nodeID uint64, opts ...Option) (*Engine, error) {
	e := &Engine{
		nodeID: nodeID,
		logger: slog.Default(),
		opts:   config.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.driverName = registerHookedDriver(e)

	db, err := sql.Open(e.driverName, path)
	if err != nil {
		return nil, newError(ErrOpenFailed, "open database", err)
	}
	// The hooks bind to exactly one physical connection; a pool of more
	// than one would let some connections run without hooks installed.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	e.db = db

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, newError(ErrOpenFailed, "ping database", err)
	}
	if e.conn == nil {
		db.Close()
		return nil, newError(ErrOpenFailed, "connect hook did not fire", nil)
	}

	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, newStatementError(ErrOpenFailed, "apply startup pragma", pragma, err)
		}
	}

	e.logger.Info("engine opened", "path", path, "node_id", nodeID)
	return e, nil
}

// Close releases the database connection. It does not remove hooks
// explicitly: closing the connection tears them down with it.
func (e *Engine) Close() error {
	e.logger.Info("engine closing", "node_id", e.nodeID)
	if err := e.db.Close(); err != nil {
		return newError(ErrInternal, "close database", err)
	}
	return nil
}

// Clock returns the current logical clock for the enabled table.
func (e *Engine) Clock(ctx context.Context) (uint64, error) {
	if err := e.checkLatchedError(); err != nil {
		return 0, err
	}
	if err := e.requireTracked(); err != nil {
		return 0, err
	}
	var v int64
	err := e.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT time FROM "%s"`, e.names.Clock)).Scan(&v)
	if err != nil {
		return 0, newTableError(ErrExecutionFailed, "read clock", e.table, err)
	}
	return uint64(v), nil
}

// TombstoneCount returns the number of tombstone rows for the enabled
// table.
func (e *Engine) TombstoneCount(ctx context.Context) (uint64, error) {
	if err := e.checkLatchedError(); err != nil {
		return 0, err
	}
	if err := e.requireTracked(); err != nil {
		return 0, err
	}
	var n int64
	err := e.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, e.names.Tombstones)).Scan(&n)
	if err != nil {
		return 0, newTableError(ErrExecutionFailed, "count tombstones", e.table, err)
	}
	return uint64(n), nil
}

// requireTracked enforces that Enable has been called before an
// operation that needs a tracked table.
func (e *Engine) requireTracked() error {
	if e.table == "" {
		return newError(ErrNoTrackedTable, "no table has been enabled on this engine", nil)
	}
	return nil
}

// checkLatchedError surfaces and clears a post-commit-hook error
// latched by a previous operation: a single pending-error slot is
// enough since operations run one at a time. A clock_overflow error is
// never cleared: once latched, it is returned by every later call.
// Every caller-facing method must call this before doing new work.
func (e *Engine) checkLatchedError() error {
	if e.pendingErr == nil {
		return nil
	}
	err := e.pendingErr
	if !IsClockOverflow(err) {
		e.pendingErr = nil
	}
	return err
}

// recordIDKind maps the engine's fixed id shape to the recordid.Kind
// its shadow rows were written with.
func (e *Engine) recordIDKind() recordid.Kind {
	if e.idMode == shadow.BlobIDMode {
		return recordid.BlobKind
	}
	return recordid.IntegerKind
}

func (e *Engine) latch(err error) {
	if err == nil {
		return
	}
	e.logger.Error("post-commit hook error latched", "error", err, "node_id", e.nodeID)
	if e.pendingErr == nil {
		e.pendingErr = err
	}
}
