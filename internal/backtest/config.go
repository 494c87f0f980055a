package backtest

import (
	"strings"
	"time"

	"crypto-backtest/internal/config"
)

// Config 定义回测参数。
type Config struct {
	Start       time.Time // 开始时间（含）
	End         time.Time // 结束时间（含）
	Freq        string    // 日历频率，如 day、1h
	InitialCash float64   // 初始现金
	Ledger      string    // account 或 position
	SkipOnError bool      // 撮合出错时跳过该订单而非终止
}

func (c *Config) normalize() Config {
	cfg := *c
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = 10000
	}
	if cfg.Freq == "" {
		cfg.Freq = "day"
	}
	if cfg.Ledger == "" {
		cfg.Ledger = config.LedgerAccount
	}
	return cfg
}

// ConfigFrom 将回测配置段转换为引擎参数。
func ConfigFrom(b config.BacktestConfig) (Config, error) {
	start, err := b.StartTime()
	if err != nil {
		return Config{}, err
	}
	end, err := b.EndTime()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Start:       start,
		End:         end,
		Freq:        b.Freq,
		InitialCash: b.InitialCash,
		Ledger:      strings.ToLower(b.Ledger),
		SkipOnError: b.SkipOnError,
	}, nil
}
