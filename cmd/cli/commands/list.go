package commands

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/live-schedule/pkg/core/services"
)

// ListSchedulesCmd creates the listSchedules command
func ListSchedulesCmd(app *AppContext) *cobra.Command {
	var (
		accountIDs []int64
		date       string
	)

	cmd := &cobra.Command{
		Use:   "listSchedules",
		Short: "List live schedules, optionally filtered by account and date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Logger.Debug("listSchedules command",
				zap.Int64s("account_ids", accountIDs),
				zap.String("date", date))

			views, err := services.ListSchedules(app.Ctx, app.Database, app.Logger,
				services.ListRequest{AccountIDs: accountIDs, Date: date})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout())
			printSchedules(cmd.OutOrStdout(), views)
			return nil
		},
	}

	cmd.Flags().Int64SliceVarP(&accountIDs, "account", "a", nil, "Account id to include (repeatable)")
	cmd.Flags().StringVarP(&date, "date", "d", "", "Only schedules on this date (YYYY-MM-DD)")
	return cmd
}

// ExportSchedulesCmd creates the exportSchedules command
func ExportSchedulesCmd(app *AppContext) *cobra.Command {
	var (
		accountIDs []int64
		date       string
		out        string
	)

	cmd := &cobra.Command{
		Use:   "exportSchedules",
		Short: "Write live schedules to an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var buf bytes.Buffer
			result, err := services.ExportSchedules(app.Ctx, app.Database, app.Logger,
				services.ListRequest{AccountIDs: accountIDs, Date: date}, app.Now(), &buf)
			if err != nil {
				return err
			}

			if out == "" {
				out = result.Filename
			}
			if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n✓ Exported %d schedule(s) to %s\n", result.Rows, out)
			return nil
		},
	}

	cmd.Flags().Int64SliceVarP(&accountIDs, "account", "a", nil, "Account id to include (repeatable)")
	cmd.Flags().StringVarP(&date, "date", "d", "", "Only schedules on this date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (defaults to Live_Schedules_<timestamp>.xlsx)")
	return cmd
}
