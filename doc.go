// Package sqlitecrdt retrofits an embedded SQLite database with
// conflict-free replicated data type semantics: ordinary INSERT,
// UPDATE, and DELETE statements against an enabled table are
// transparently versioned, and versioned changes from other replicas
// can be merged back in with a last-writer-wins rule at column
// granularity.
//
// A typical session enables replication on one table, writes through
// Execute (which also refreshes the schema after an ALTER TABLE) or
// through statements from Prepare, and periodically exchanges Change
// values with peers:
//
//	e, err := sqlitecrdt.New("replica.db", nodeID)
//	if err != nil { ... }
//	defer e.Close()
//
//	if err := e.Enable(ctx, "users"); err != nil { ... }
//
//	// Ordinary writes are tracked automatically by installed triggers.
//	if _, err := e.Execute(ctx, `INSERT INTO users (name) VALUES (?)`, "Alice"); err != nil { ... }
//
//	changes, err := e.ChangesSince(ctx, cursor, nil, 0)
//	// ship changes to a peer over any transport, then on the peer:
//	accepted, err := peer.Merge(ctx, changes)
//
// The engine is bound to exactly one table per instance and is not
// safe for concurrent use: callers sharing an engine across goroutines
// must provide their own mutual exclusion.
package sqlitecrdt
