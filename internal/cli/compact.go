package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewCompactCommand builds the "compact" subcommand: removes tombstones
// older than a watermark every peer has already acknowledged.
func NewCompactCommand(opts *RootOptions) *cobra.Command {
	var watermark uint64

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Delete tombstones below a watermark",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatterFrom(cmd, opts)

			eng, err := openTracked(opts)
			if err != nil {
				return err
			}
			defer eng.Close()

			removed, err := eng.Compact(context.Background(), watermark)
			if err != nil {
				return out.ReportEngineError("compact tombstones", err)
			}
			return out.Success(map[string]interface{}{"removed": removed})
		},
	}

	cmd.Flags().Uint64Var(&watermark, "watermark", 0, "minimum db_version acknowledged by every peer (required)")
	cmd.MarkFlagRequired("watermark")
	return cmd
}
