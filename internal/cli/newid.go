package cli

import (
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewNewIDCommand builds the "new-id" subcommand: prints a fresh
// 16-byte record id for a blob-id-mode table's "id" column. The engine
// never assigns ids itself; this is a caller-side convenience for
// populating one.
func NewNewIDCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "new-id",
		Short: "Generate a random 16-byte id for a blob-id-mode table",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := formatterFrom(cmd, opts)
			id := uuid.New()
			return out.Success(map[string]string{"id": id.String(), "bytes_hex": hex.EncodeToString(id[:])})
		},
	}
}
