package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var instrumentsSymbols []string

var instrumentsCmd = &cobra.Command{
	Use:   "instruments",
	Short: "列出配置来源中满足最小成交量的标的",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap(false)
		if err != nil {
			return err
		}
		defer e.close()

		codes, err := e.app.Instruments(cmd.Context(), instrumentsSymbols)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, code := range codes {
			fmt.Fprintln(out, code)
		}
		return nil
	},
}

func init() {
	instrumentsCmd.Flags().StringSliceVar(&instrumentsSymbols, "symbols", nil, "只保留这些标的")
}
