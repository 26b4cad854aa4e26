package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cellarsync/sqlitecrdt/internal/wire"
)

// NewMergeCommand builds the "merge" subcommand: applies a batch of
// changes (as produced by "changes-since" on a peer) via last-writer-wins.
func NewMergeCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge a batch of changes produced by changes-since",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatterFrom(cmd, opts)

			var data []byte
			var err error
			if file == "-" || file == "" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "read change batch", err)
			}

			changes, err := wire.UnmarshalBatch(data)
			if err != nil {
				return WrapExitError(ExitCommandError, "decode change batch", err)
			}

			eng, err := openTracked(opts)
			if err != nil {
				return err
			}
			defer eng.Close()

			accepted, err := eng.Merge(context.Background(), changes)
			if err != nil {
				return out.ReportEngineError("merge changes", err)
			}
			return out.Success(map[string]interface{}{
				"received": len(changes),
				"accepted": len(accepted),
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "-", "file containing a changes-since JSON batch, - for stdin")
	return cmd
}
