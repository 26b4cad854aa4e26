package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewClockCommand builds the "clock" subcommand: reports the tracked
// table's current logical clock value and tombstone count.
func NewClockCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clock",
		Short: "Report the current logical clock and tombstone count",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatterFrom(cmd, opts)

			eng, err := openTracked(opts)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := context.Background()
			clock, err := eng.Clock(ctx)
			if err != nil {
				return out.ReportEngineError("read clock", err)
			}
			tombstones, err := eng.TombstoneCount(ctx)
			if err != nil {
				return out.ReportEngineError("count tombstones", err)
			}
			return out.Success(map[string]interface{}{
				"clock":      clock,
				"tombstones": tombstones,
			})
		},
	}
}
