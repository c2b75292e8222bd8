package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/live-schedule/pkg/core/scheduler"
	"github.com/jakechorley/live-schedule/pkg/core/services"
)

// AutoGenerateCmd creates the autoGenerate command
func AutoGenerateCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "autoGenerate <start_date> <account_id>...",
		Short: "Generate a week of draft live schedules for the given accounts",
		Long: `Generate live schedules for seven days starting at start_date (YYYY-MM-DD).
Every account gets its own draft batch. Accounts that fail are rolled back and reported
without stopping the others.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountIDs, err := parseAccountArgs(args[1:])
			if err != nil {
				return err
			}

			app.Logger.Debug("autoGenerate command",
				zap.String("start_date", args[0]),
				zap.Int64s("account_ids", accountIDs))

			summary, err := services.GenerateSchedule(
				app.Ctx,
				app.Generator,
				app.Locker,
				app.Logger,
				services.GenerateRequest{AccountIDs: accountIDs, StartDate: args[0]},
				app.Cfg.GenerationTimeout,
			)
			if summary != nil {
				printSummary(cmd.OutOrStdout(), summary)
			}
			if err != nil {
				if summary != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
					return fmt.Errorf("generation stopped early, finished accounts were saved: %w", err)
				}
				return err
			}
			if failed := failedAccounts(summary); failed > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d account(s) did not generate\n", failed)
			}
			return nil
		},
	}
}

func parseAccountArgs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("account_id must be a number, got: %s", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func failedAccounts(summary *scheduler.Summary) int {
	n := 0
	for _, acc := range summary.Accounts {
		if acc.Kind == scheduler.OutcomeAccountFailed || acc.Kind == scheduler.OutcomeAccountNotFound {
			n++
		}
	}
	return n
}
