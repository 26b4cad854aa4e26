package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/cellarsync/sqlitecrdt"
)

// NewEnableCommand builds the "enable" subcommand: turns on change
// tracking for one table by installing its shadow schema and triggers.
func NewEnableCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <table>",
		Short: "Enable CRDT tracking on a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table := args[0]
			out := formatterFrom(cmd, opts)

			eng, err := sqlitecrdt.New(opts.DBPath, opts.NodeID)
			if err != nil {
				return WrapExitError(ExitCommandError, "open database", err)
			}
			defer eng.Close()

			if err := eng.Enable(context.Background(), table); err != nil {
				return out.ReportEngineError("enable table", err)
			}
			return out.Success(map[string]string{"table": table, "status": "enabled"})
		},
	}
}
