package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	runNoJournal bool
	runJSON      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "回放订单文件并输出回测结果",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap(!runNoJournal)
		if err != nil {
			return err
		}
		defer e.close()

		report, err := e.app.RunBacktest(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if runJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report.Result)
		}

		res := report.Result
		if report.RunID != "" {
			fmt.Fprintf(out, "run_id        %s\n", report.RunID)
		}
		fmt.Fprintf(out, "steps         %d\n", len(res.Timestamps))
		fmt.Fprintf(out, "trades        %d\n", res.Trades)
		fmt.Fprintf(out, "rejected      %d\n", res.Rejected)
		fmt.Fprintf(out, "errors        %d\n", res.Errors)
		fmt.Fprintf(out, "final_equity  %.4f\n", res.FinalEquity)
		fmt.Fprintf(out, "total_return  %.4f%%\n", res.Metrics.TotalReturn*100)
		fmt.Fprintf(out, "max_drawdown  %.4f%%\n", res.Metrics.MaxDrawdown*100)
		fmt.Fprintf(out, "sharpe        %.4f\n", res.Metrics.SharpeRatio)
		fmt.Fprintf(out, "turnover      %.4f\n", res.Ledger.Turnover)
		fmt.Fprintf(out, "total_cost    %.4f\n", res.Ledger.Cost)
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runNoJournal, "no-journal", false, "不写入运行与成交流水")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "以 JSON 输出完整结果")
}
