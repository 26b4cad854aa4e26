package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cellarsync/sqlitecrdt"
)

// formatterFrom builds an OutputFormatter from the command's persistent
// flags, writing to the command's configured stdout/stderr rather than
// the process defaults so tests can capture output.
func formatterFrom(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openTracked opens the engine at opts.DBPath and re-enables
// opts.Table on it: an Engine's tracked-table state lives only in
// process memory, so every command past "enable" must call Enable
// again before touching the shadow schema. Enable's own idempotency
// against an already-installed shadow schema makes this a cheap
// no-op past the first invocation.
func openTracked(opts *RootOptions) (*sqlitecrdt.Engine, error) {
	if opts.Table == "" {
		return nil, NewExitError(ExitCommandError, "--table is required")
	}
	eng, err := sqlitecrdt.New(opts.DBPath, opts.NodeID)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}
	if err := eng.Enable(context.Background(), opts.Table); err != nil {
		eng.Close()
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("enable table %q", opts.Table), err)
	}
	return eng, nil
}
