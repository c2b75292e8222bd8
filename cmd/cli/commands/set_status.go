package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jakechorley/live-schedule/pkg/core/services"
)

// SetBatchStatusCmd creates the setBatchStatus command
func SetBatchStatusCmd(app *AppContext) *cobra.Command {
	var draft bool

	cmd := &cobra.Command{
		Use:   "setBatchStatus <batch_id>",
		Short: "Publish a batch (--draft=false) or return it to draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || batchID <= 0 {
				return fmt.Errorf("batch_id must be a positive number, got: %s", args[0])
			}

			updated, err := services.SetBatchStatus(app.Ctx, app.Database, app.Logger, batchID, draft)
			if err != nil {
				return err
			}

			state := "published"
			if draft {
				state = "draft"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n✓ Batch %d is now %s (%d schedule(s) updated)\n", batchID, state, updated)
			return nil
		},
	}

	cmd.Flags().BoolVar(&draft, "draft", false, "Draft status to set")
	_ = cmd.MarkFlagRequired("draft")
	return cmd
}
