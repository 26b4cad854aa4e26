package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellarsync/sqlitecrdt"
)

func TestCompactCommand_RemovesTombstonesBelowWatermark(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	enabledWidgetsDB(t, dbPath)

	e, err := sqlitecrdt.New(dbPath, 1)
	require.NoError(t, err)
	require.NoError(t, e.Enable(context.Background(), "widgets"))
	_, err = e.Execute(context.Background(), `INSERT INTO widgets (name) VALUES (?)`, "a")
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), `DELETE FROM widgets WHERE name = ?`, "a")
	require.NoError(t, err)
	clock, err := e.Clock(context.Background())
	require.NoError(t, err)
	require.NoError(t, e.Close())

	opts := &RootOptions{Format: "json", DBPath: dbPath, NodeID: 1, Table: "widgets"}
	cmd := NewCompactCommand(opts)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--watermark", strconv.FormatUint(clock+1, 10)})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), `"removed":1`)
}

func TestCompactCommand_RequiresWatermarkFlag(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	enabledWidgetsDB(t, dbPath)

	opts := &RootOptions{Format: "text", DBPath: dbPath, NodeID: 1, Table: "widgets"}
	cmd := NewCompactCommand(opts)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
}

func TestCompactCommand_RequiresTableFlag(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	enabledWidgetsDB(t, dbPath)

	opts := &RootOptions{Format: "text", DBPath: dbPath, NodeID: 1}
	cmd := NewCompactCommand(opts)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--watermark", "0"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
