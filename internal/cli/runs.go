package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/store"
	"option-backtester/pkg/utils"
)

var errNoStore = errors.New("run history is unavailable: no database configured")

func newRunsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse saved backtest runs",
	}
	cmd.AddCommand(newRunsListCmd(app))
	cmd.AddCommand(newRunsShowCmd(app))
	return cmd
}

func newRunsListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errNoStore
			}

			filter := store.RunFilter{}
			filter.Symbol, _ = cmd.Flags().GetString("symbol")
			filter.Strategy, _ = cmd.Flags().GetString("strategy")
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			if s, _ := cmd.Flags().GetString("since"); s != "" {
				since, err := utils.ParseDate(s)
				if err != nil {
					return err
				}
				filter.Since = since
			}

			records, err := app.Store.ListRuns(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Dim("No saved runs")
				return nil
			}

			table := NewTable(output, "RUN", "CREATED", "SYMBOL", "STRATEGY", "RETURN", "TRADES", "SHARPE", "FINAL")
			for _, r := range records {
				ret := output.FormatPercent(r.Summary.TotalReturn)
				if r.SoftFailure != "" {
					ret = output.Yellow("failed")
				}
				table.AddRow(
					TruncateString(r.RunID, 8),
					r.CreatedAt.Local().Format("2006-01-02 15:04"),
					r.Symbol,
					TruncateString(r.Strategy, 24),
					ret,
					fmt.Sprintf("%d", r.Summary.NumTrades),
					FormatRatio(r.Summary.SharpeRatio),
					utils.FormatCompact(r.FinalCapital),
				)
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().String("symbol", "", "only runs of this symbol")
	cmd.Flags().String("strategy", "", "only runs of this strategy")
	cmd.Flags().String("since", "", "only runs created on or after this date, YYYY-MM-DD")
	cmd.Flags().Int("limit", 20, "maximum number of runs")
	return cmd
}

func newRunsShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a saved run with its trades",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errNoStore
			}

			result, err := app.Store.GetRun(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, apperrors.ErrDataNotFound) {
					return fmt.Errorf("run %s not found", args[0])
				}
				return err
			}

			if path, _ := cmd.Flags().GetString("csv"); path != "" {
				if err := WriteTradesCSV(path, result.Trades); err != nil {
					return err
				}
			}
			if output.IsJSON() {
				return output.JSON(result)
			}

			var from, to time.Time
			if curve := result.EquityCurve; len(curve) > 0 {
				from, to = curve[0].Date, curve[len(curve)-1].Date
			}
			printResult(output, result, from, to, true)
			return nil
		},
	}

	cmd.Flags().String("csv", "", "write the run's trades to a CSV file")
	return cmd
}
