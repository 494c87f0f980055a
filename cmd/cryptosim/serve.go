package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动只读的运行与成交查询接口",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap(true)
		if err != nil {
			return err
		}
		defer e.close()

		return e.app.Serve(cmd.Context())
	},
}
