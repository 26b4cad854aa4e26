package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarsync/sqlitecrdt"
)

func enabledWidgetsDB(t *testing.T, dbPath string) {
	t.Helper()
	e, err := sqlitecrdt.New(dbPath, 1)
	require.NoError(t, err)
	defer e.Close()
	_, err = e.Execute(context.Background(), `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	require.NoError(t, e.Enable(context.Background(), "widgets"))
}

func TestChangesSinceCommand_ReturnsEncodedBatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	enabledWidgetsDB(t, dbPath)

	e, err := sqlitecrdt.New(dbPath, 1)
	require.NoError(t, err)
	require.NoError(t, e.Enable(context.Background(), "widgets"))
	_, err = e.Execute(context.Background(), `INSERT INTO widgets (name) VALUES (?)`, "gizmo")
	require.NoError(t, err)
	require.NoError(t, e.Close())

	opts := &RootOptions{Format: "json", DBPath: dbPath, NodeID: 1, Table: "widgets"}
	cmd := NewChangesSinceCommand(opts)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--cursor", "0"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), `"status":"ok"`)
	assert.Contains(t, buf.String(), `"count":1`)
}

func TestChangesSinceCommand_RejectsInvalidExcludeNode(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	enabledWidgetsDB(t, dbPath)

	opts := &RootOptions{Format: "text", DBPath: dbPath, NodeID: 1, Table: "widgets"}
	cmd := NewChangesSinceCommand(opts)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--exclude-node", "not-a-number"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestChangesSinceCommand_RequiresTableFlag(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	enabledWidgetsDB(t, dbPath)

	opts := &RootOptions{Format: "text", DBPath: dbPath, NodeID: 1}
	cmd := NewChangesSinceCommand(opts)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
