package main

import (
	"errors"
	"fmt"
	"math"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"crypto-backtest/internal/journal"
)

var (
	fillsRunID  string
	fillsSymbol string
	fillsLimit  int
)

var fillsCmd = &cobra.Command{
	Use:   "fills",
	Short: "查询成交流水，默认为最近一次运行",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap(true)
		if err != nil {
			return err
		}
		defer e.close()

		svc := e.app.Journal()
		runID := fillsRunID
		if runID == "" {
			run, err := svc.LatestRun(cmd.Context())
			if errors.Is(err, journal.ErrRunNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "暂无回测记录")
				return nil
			}
			if err != nil {
				return err
			}
			runID = run.ID
		}

		fills, err := svc.ListFills(cmd.Context(), journal.FillQuery{
			RunID:  runID,
			Symbol: fillsSymbol,
			Limit:  fillsLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tSYMBOL\tDIRECTION\tAMOUNT\tDEAL\tPRICE\tVALUE\tCOST\tSTATUS")
		for _, f := range fills {
			price := "-"
			if !math.IsNaN(f.TradePrice) {
				price = fmt.Sprintf("%.6g", f.TradePrice)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%s\t%.6g\t%.6g\t%s\n",
				f.Timestamp.Format(time.RFC3339), f.Symbol, f.Direction,
				f.Amount, f.DealAmount, price, f.TradeValue, f.TradeCost, f.Status)
		}
		return w.Flush()
	},
}

func init() {
	fillsCmd.Flags().StringVar(&fillsRunID, "run", "", "运行 ID，默认最近一次")
	fillsCmd.Flags().StringVar(&fillsSymbol, "symbol", "", "只显示该标的")
	fillsCmd.Flags().IntVar(&fillsLimit, "limit", 200, "最多显示条数")
}
