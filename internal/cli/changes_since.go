package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cellarsync/sqlitecrdt/internal/wire"
)

// NewChangesSinceCommand builds the "changes-since" subcommand: extracts
// the changes a peer at cursor hasn't seen yet and prints them as a
// JSON batch a peer's "merge" command can consume directly.
func NewChangesSinceCommand(opts *RootOptions) *cobra.Command {
	var cursor uint64
	var excludedStrs []string
	var max uint64

	cmd := &cobra.Command{
		Use:   "changes-since",
		Short: "Extract changes newer than a cursor",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatterFrom(cmd, opts)

			excluded := make([]uint64, len(excludedStrs))
			for i, s := range excludedStrs {
				n, err := strconv.ParseUint(s, 10, 64)
				if err != nil {
					return NewExitError(ExitCommandError, "invalid --exclude-node value "+s)
				}
				excluded[i] = n
			}

			eng, err := openTracked(opts)
			if err != nil {
				return err
			}
			defer eng.Close()

			changes, err := eng.ChangesSince(context.Background(), cursor, excluded, max)
			if err != nil {
				return out.ReportEngineError("extract changes", err)
			}

			data, err := wire.MarshalBatch(changes)
			if err != nil {
				return WrapExitError(ExitFailure, "encode batch", err)
			}
			return out.Success(map[string]interface{}{
				"count":   len(changes),
				"changes": string(data),
			})
		},
	}

	cmd.Flags().Uint64Var(&cursor, "cursor", 0, "return only changes with local_db_version greater than this")
	cmd.Flags().StringSliceVar(&excludedStrs, "exclude-node", nil, "node ids to exclude, repeatable")
	cmd.Flags().Uint64Var(&max, "max", 0, "cap on the number of changes returned (0 means unbounded)")
	return cmd
}
