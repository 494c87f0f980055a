package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crypto-backtest/internal/app"
	"crypto-backtest/internal/config"
	"crypto-backtest/internal/log"
	"crypto-backtest/internal/store"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "cryptosim",
	Short:         "加密市场订单撮合回测",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径，默认使用 configs/config.yaml")
	rootCmd.AddCommand(runCmd, calendarCmd, instrumentsCmd, fillsCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cryptosim: %v\n", err)
		os.Exit(1)
	}
}

// env 为单次命令执行所需的依赖。
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	app    *app.App
	close  func()
}

// bootstrap 加载配置、日志与数据库。withStore 为 false 时不打开数据库。
func bootstrap(withStore bool) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	var sqliteStore *store.Store
	if withStore {
		sqliteStore, err = store.NewSQLite(cfg.Database)
		if err != nil {
			_ = logger.Sync()
			return nil, fmt.Errorf("初始化数据库失败: %w", err)
		}
	}

	a, err := app.New(cfg, logger, sqliteStore)
	if err != nil {
		if sqliteStore != nil {
			_ = sqliteStore.Close()
		}
		_ = logger.Sync()
		return nil, err
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		app:    a,
		close: func() {
			if sqliteStore != nil {
				if closeErr := sqliteStore.Close(); closeErr != nil {
					logger.Warn("关闭数据库失败", zap.Error(closeErr))
				}
			}
			_ = logger.Sync()
		},
	}, nil
}
