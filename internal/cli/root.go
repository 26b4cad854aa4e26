package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DBPath  string
	NodeID  uint64
	Table   string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sqlitecrdt CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sqlitecrdt",
		Short: "sqlitecrdt - CRDT replication for embedded SQLite",
		Long:  "A command-line driver for the sqlitecrdt engine: enable tracking on a table, run statements against it, and exchange changes with other replicas.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to the SQLite database file (required)")
	cmd.PersistentFlags().Uint64Var(&opts.NodeID, "node-id", 1, "this replica's node id")
	cmd.PersistentFlags().StringVar(&opts.Table, "table", "", "tracked table name (required for all commands except enable and new-id)")
	cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(NewEnableCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewChangesSinceCommand(opts))
	cmd.AddCommand(NewMergeCommand(opts))
	cmd.AddCommand(NewCompactCommand(opts))
	cmd.AddCommand(NewClockCommand(opts))
	cmd.AddCommand(NewNewIDCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
