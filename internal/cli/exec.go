package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewExecCommand builds the "exec" subcommand: runs one SQL statement
// against the tracked table through the engine, so its triggers fire
// exactly as they would for any other writer of the database.
func NewExecCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <sql> [args...]",
		Short: "Execute a SQL statement through the engine",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, cliArgs []string) error {
			out := formatterFrom(cmd, opts)
			stmt := cliArgs[0]
			bind := make([]interface{}, len(cliArgs)-1)
			for i, a := range cliArgs[1:] {
				bind[i] = a
			}

			eng, err := openTracked(opts)
			if err != nil {
				return err
			}
			defer eng.Close()

			res, err := eng.Execute(context.Background(), stmt, bind...)
			if err != nil {
				return out.ReportEngineError("execute statement", err)
			}
			affected, _ := res.RowsAffected()
			return out.Success(map[string]interface{}{"rows_affected": affected})
		},
	}
}
