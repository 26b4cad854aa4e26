package sqlitecrdt

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	"github.com/cellarsync/sqlitecrdt/internal/recordid"
	"github.com/cellarsync/sqlitecrdt/internal/testutil"
)

// syncPeers exchanges every change each engine has produced since the
// other last acknowledged it, bidirectionally, until a round trip
// produces nothing new on either side.
func syncPeers(t *testing.T, ctx context.Context, a, b *Engine, cursorAB, cursorBA *uint64) {
	t.Helper()
	for round := 0; round < 5; round++ {
		fromA, err := a.ChangesSince(ctx, *cursorAB, nil, 0)
		require.NoError(t, err)
		fromB, err := b.ChangesSince(ctx, *cursorBA, nil, 0)
		require.NoError(t, err)

		if len(fromA) > 0 {
			_, err := b.Merge(ctx, fromA)
			require.NoError(t, err)
			*cursorAB = fromA[len(fromA)-1].LocalDBVersion
		}
		if len(fromB) > 0 {
			_, err := a.Merge(ctx, fromB)
			require.NoError(t, err)
			*cursorBA = fromB[len(fromB)-1].LocalDBVersion
		}
		if len(fromA) == 0 && len(fromB) == 0 {
			return
		}
	}
}

// TestConvergence_DisjointColumnEditsBothSurvive exercises the case
// where two replicas edit different columns of the same record
// concurrently: last-writer-wins operates per column, so neither edit
// should be lost by the other.
func TestConvergence_DisjointColumnEditsBothSurvive(t *testing.T) {
	ctx := context.Background()
	pathA := filepath.Join(t.TempDir(), "a.db")
	pathB := filepath.Join(t.TempDir(), "b.db")

	a, err := New(pathA, 1)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(pathB, 2)
	require.NoError(t, err)
	defer b.Close()

	for _, e := range []*Engine{a, b} {
		_, err := e.db.ExecContext(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT, weight REAL)`)
		require.NoError(t, err)
		require.NoError(t, e.Enable(ctx, "widgets"))
	}

	_, err = a.Execute(ctx, `INSERT INTO widgets (id, name, weight) VALUES (1, ?, ?)`, "gizmo", 1.0)
	require.NoError(t, err)

	var cursorAB, cursorBA uint64
	syncPeers(t, ctx, a, b, &cursorAB, &cursorBA)

	_, err = a.Execute(ctx, `UPDATE widgets SET name = ? WHERE id = 1`, "widget-a")
	require.NoError(t, err)
	_, err = b.Execute(ctx, `UPDATE widgets SET weight = ? WHERE id = 1`, 2.5)
	require.NoError(t, err)

	syncPeers(t, ctx, a, b, &cursorAB, &cursorBA)

	var nameA, nameB string
	var weightA, weightB float64
	require.NoError(t, a.db.QueryRowContext(ctx, `SELECT name, weight FROM widgets WHERE id = 1`).Scan(&nameA, &weightA))
	require.NoError(t, b.db.QueryRowContext(ctx, `SELECT name, weight FROM widgets WHERE id = 1`).Scan(&nameB, &weightB))

	assert.Equal(t, "widget-a", nameA)
	assert.Equal(t, "widget-a", nameB)
	assert.Equal(t, 2.5, weightA)
	assert.Equal(t, 2.5, weightB)
}

// TestConvergence_ConflictingColumnEditConvergesToSameWinner drives many
// randomized conflicting writes to the same column from two replicas
// and checks that both sides settle on an identical final value: the
// defining convergence property of a CRDT merge function, independent
// of which replica happened to write last locally.
func TestConvergence_ConflictingColumnEditConvergesToSameWinner(t *testing.T) {
	ctx := context.Background()
	pathA := filepath.Join(t.TempDir(), "a.db")
	pathB := filepath.Join(t.TempDir(), "b.db")

	a, err := New(pathA, 1)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(pathB, 2)
	require.NoError(t, err)
	defer b.Close()

	for _, e := range []*Engine{a, b} {
		_, err := e.db.ExecContext(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
		require.NoError(t, err)
		require.NoError(t, e.Enable(ctx, "widgets"))
	}

	_, err = a.Execute(ctx, `INSERT INTO widgets (id, name) VALUES (1, 'seed')`)
	require.NoError(t, err)
	var cursorAB, cursorBA uint64
	syncPeers(t, ctx, a, b, &cursorAB, &cursorBA)

	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 8; round++ {
		if rng.Intn(2) == 0 {
			_, err := a.Execute(ctx, `UPDATE widgets SET name = ? WHERE id = 1`, fmt.Sprintf("a-%d", round))
			require.NoError(t, err)
		} else {
			_, err := b.Execute(ctx, `UPDATE widgets SET name = ? WHERE id = 1`, fmt.Sprintf("b-%d", round))
			require.NoError(t, err)
		}
	}

	syncPeers(t, ctx, a, b, &cursorAB, &cursorBA)

	var nameA, nameB string
	require.NoError(t, a.db.QueryRowContext(ctx, `SELECT name FROM widgets WHERE id = 1`).Scan(&nameA))
	require.NoError(t, b.db.QueryRowContext(ctx, `SELECT name FROM widgets WHERE id = 1`).Scan(&nameB))
	assert.Equal(t, nameA, nameB)
}

// TestConvergence_TombstoneWinsOverConcurrentEdit checks the interaction
// between a delete on one replica and a concurrent column edit on
// another: the higher (db_version, node_id) tuple wins regardless of
// which kind of change it belongs to, so the loser's user-table row
// state must match whichever operation actually won.
func TestConvergence_TombstoneWinsOverConcurrentEdit(t *testing.T) {
	ctx := context.Background()
	pathA := filepath.Join(t.TempDir(), "a.db")
	pathB := filepath.Join(t.TempDir(), "b.db")

	a, err := New(pathA, 1)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(pathB, 9) // higher node id: wins every tie
	require.NoError(t, err)
	defer b.Close()

	for _, e := range []*Engine{a, b} {
		_, err := e.db.ExecContext(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
		require.NoError(t, err)
		require.NoError(t, e.Enable(ctx, "widgets"))
	}

	_, err = a.Execute(ctx, `INSERT INTO widgets (id, name) VALUES (1, 'seed')`)
	require.NoError(t, err)
	var cursorAB, cursorBA uint64
	syncPeers(t, ctx, a, b, &cursorAB, &cursorBA)

	_, err = a.Execute(ctx, `UPDATE widgets SET name = 'edited' WHERE id = 1`)
	require.NoError(t, err)
	_, err = b.Execute(ctx, `DELETE FROM widgets WHERE id = 1`)
	require.NoError(t, err)

	syncPeers(t, ctx, a, b, &cursorAB, &cursorBA)

	var countA, countB int
	require.NoError(t, a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM widgets WHERE id = 1`).Scan(&countA))
	require.NoError(t, b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM widgets WHERE id = 1`).Scan(&countB))
	assert.Equal(t, countA, countB)
}

// TestConvergence_BlobIDModeAssignsDistinctRecordsAcrossGoroutines uses a
// DeterministicClock to hand out distinct blob record ids to concurrent
// writers, verifying the blob-id record shape survives a fan-in of
// concurrent inserts without collision.
func TestConvergence_BlobIDModeAssignsDistinctRecordsAcrossGoroutines(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 1)
	_, err := e.db.ExecContext(ctx, `CREATE TABLE docs (id BLOB PRIMARY KEY, title TEXT)`)
	require.NoError(t, err)
	require.NoError(t, e.Enable(ctx, "docs"))

	clock := testutil.NewDeterministicClock()
	const writers = 6
	ids := make([]recordid.ID, writers)
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		i := i
		g.Go(func() error {
			seq := clock.Next()
			blob := make([]byte, recordid.BlobLen)
			for j := range blob {
				blob[j] = byte(seq)
			}
			rid, err := recordid.NewBlob(blob)
			if err != nil {
				return err
			}
			ids[i] = rid
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[string]bool)
	for _, id := range ids {
		key := id.String()
		assert.False(t, seen[key], "collision on record id %s", key)
		seen[key] = true

		_, err := e.Execute(ctx, `INSERT INTO docs (id, title) VALUES (?, ?)`, id.DriverValue(), "doc")
		require.NoError(t, err)
	}

	var count int
	require.NoError(t, e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM docs`).Scan(&count))
	assert.Equal(t, writers, count)
}
