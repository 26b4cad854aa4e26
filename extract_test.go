package sqlitecrdt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarsync/sqlitecrdt/internal/config"
)

func TestChangesSince_ReturnsInsertedColumns(t *testing.T) {
	e := enabledWidgets(t, 1)
	ctx := context.Background()

	_, err := e.Execute(ctx, `INSERT INTO widgets (name, weight) VALUES (?, ?)`, "gizmo", 1.5)
	require.NoError(t, err)

	changes, err := e.ChangesSince(ctx, 0, nil, 0)
	require.NoError(t, err)
	assert.Len(t, changes, 2)
	for _, c := range changes {
		assert.False(t, c.IsTombstone())
		assert.NotNil(t, c.Value)
	}
}

func TestChangesSince_ExcludesGivenNodes(t *testing.T) {
	e := enabledWidgets(t, 1)
	ctx := context.Background()
	_, err := e.Execute(ctx, `INSERT INTO widgets (name) VALUES (?)`, "gizmo")
	require.NoError(t, err)

	changes, err := e.ChangesSince(ctx, 0, []uint64{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, changes)

	changes, err = e.ChangesSince(ctx, 0, []uint64{2}, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, changes)
}

func TestChangesSince_RespectsCursor(t *testing.T) {
	e := enabledWidgets(t, 1)
	ctx := context.Background()
	_, err := e.Execute(ctx, `INSERT INTO widgets (name) VALUES (?)`, "a")
	require.NoError(t, err)

	first, err := e.ChangesSince(ctx, 0, nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, first)
	maxLDV := first[len(first)-1].LocalDBVersion

	_, err = e.Execute(ctx, `INSERT INTO widgets (name) VALUES (?)`, "b")
	require.NoError(t, err)

	second, err := e.ChangesSince(ctx, maxLDV, nil, 0)
	require.NoError(t, err)
	for _, c := range second {
		assert.Greater(t, c.LocalDBVersion, maxLDV)
	}
}

func TestChangesSince_RejectsTooManyExcludedNodes(t *testing.T) {
	e := enabledWidgets(t, 1)
	excluded := make([]uint64, config.MaxExcludedNodes+1)
	_, err := e.ChangesSince(context.Background(), 0, excluded, 0)
	require.Error(t, err)
	assert.True(t, IsTooManyExcludedNodes(err))
}

func TestChangesSince_IncludesTombstones(t *testing.T) {
	e := enabledWidgets(t, 1)
	ctx := context.Background()
	_, err := e.Execute(ctx, `INSERT INTO widgets (name) VALUES (?)`, "a")
	require.NoError(t, err)
	_, err = e.Execute(ctx, `DELETE FROM widgets WHERE name = ?`, "a")
	require.NoError(t, err)

	changes, err := e.ChangesSince(ctx, 0, nil, 0)
	require.NoError(t, err)

	var sawTombstone bool
	for _, c := range changes {
		if c.IsTombstone() {
			sawTombstone = true
		}
	}
	assert.True(t, sawTombstone)
}

func TestChangesSince_SortedByLocalDBVersion(t *testing.T) {
	e := enabledWidgets(t, 1)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := e.Execute(ctx, `INSERT INTO widgets (name) VALUES (?)`, "row")
		require.NoError(t, err)
	}

	changes, err := e.ChangesSince(ctx, 0, nil, 0)
	require.NoError(t, err)
	for i := 1; i < len(changes); i++ {
		assert.LessOrEqual(t, changes[i-1].LocalDBVersion, changes[i].LocalDBVersion)
	}
}

func TestChangesSince_MaxCapsResultCount(t *testing.T) {
	e := enabledWidgets(t, 1)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := e.Execute(ctx, `INSERT INTO widgets (name) VALUES (?)`, "row")
		require.NoError(t, err)
	}

	changes, err := e.ChangesSince(ctx, 0, nil, 2)
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

// TestChangesSince_FallsBackToConfiguredDefaultLimit checks that a
// zero max falls back to opts.ChangesSinceDefaultLimit instead of
// always returning every change unconditionally.
func TestChangesSince_FallsBackToConfiguredDefaultLimit(t *testing.T) {
	ctx := context.Background()
	opts := config.DefaultOptions()
	opts.ChangesSinceDefaultLimit = 3
	path := filepath.Join(t.TempDir(), "test.db")
	e, err := New(path, 1, WithOptions(opts))
	require.NoError(t, err)
	defer e.Close()

	_, err = e.db.ExecContext(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	require.NoError(t, e.Enable(ctx, "widgets"))

	for i := 0; i < 5; i++ {
		_, err := e.Execute(ctx, `INSERT INTO widgets (name) VALUES (?)`, "row")
		require.NoError(t, err)
	}

	changes, err := e.ChangesSince(ctx, 0, nil, 0)
	require.NoError(t, err)
	assert.Len(t, changes, 3)
}
