package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"crypto-backtest/internal/calendar"
	"crypto-backtest/internal/config"
)

var (
	calendarAll     bool
	calendarFuture  bool
	calendarStart   string
	calendarQuotes  bool
	calendarSymbols []string
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "输出交易日历",
	Long: "默认输出配置窗口内的连续日历；--all 输出自 --start（默认 2000-01-01）至今的完整日历，--future 额外追加一年；" +
		"--quotes 改为输出本地行情实际覆盖的时点（仅日频）。",
	RunE: func(cmd *cobra.Command, args []string) error {
		if calendarAll && calendarQuotes {
			return fmt.Errorf("--all 与 --quotes 不能同时使用")
		}
		e, err := bootstrap(false)
		if err != nil {
			return err
		}
		defer e.close()

		var cal []time.Time
		switch {
		case calendarAll:
			opts := []calendar.ProviderOption{}
			if calendarStart != "" {
				start, err := config.ParseTime(calendarStart)
				if err != nil {
					return err
				}
				opts = append(opts, calendar.WithStart(start))
			}
			cal, err = calendar.NewProvider(opts...).Load(e.cfg.Backtest.Freq, calendarFuture)
		case calendarQuotes:
			cal, err = e.app.QuoteCalendar(cmd.Context(), calendarSymbols)
		default:
			cal, err = e.app.Calendar()
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, ts := range cal {
			fmt.Fprintln(out, ts.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	calendarCmd.Flags().BoolVar(&calendarAll, "all", false, "输出完整日历")
	calendarCmd.Flags().BoolVar(&calendarFuture, "future", false, "与 --all 一起使用，追加未来一年")
	calendarCmd.Flags().StringVar(&calendarStart, "start", "", "与 --all 一起使用，覆盖完整日历的起点")
	calendarCmd.Flags().BoolVar(&calendarQuotes, "quotes", false, "输出本地行情实际覆盖的时点")
	calendarCmd.Flags().StringSliceVar(&calendarSymbols, "symbols", nil, "与 --quotes 一起使用，指定标的")
}
