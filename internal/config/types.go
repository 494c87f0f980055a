package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"crypto-backtest/internal/calendar"
	"crypto-backtest/internal/quote"
)

// Config 聚合了回测运行所需的全部配置项。
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Exchange    ExchangeConfig    `mapstructure:"exchange"`
	Backtest    BacktestConfig    `mapstructure:"backtest"`
	Cost        CostConfig        `mapstructure:"cost"`
	Instruments InstrumentsConfig `mapstructure:"instruments"`
	Data        DataConfig        `mapstructure:"data"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
	HTTPAddr    string `mapstructure:"http_addr"`
}

// ExchangeConfig 描述行情交易所连接信息，仅用于读取公开行情。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	APIPass    string      `mapstructure:"api_password"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// 账本类型。
const (
	LedgerAccount  = "account"
	LedgerPosition = "position"
)

// 回测策略类型。
const (
	StrategySchedule = "schedule"
	StrategyMACross  = "ma_cross"
)

// BacktestConfig 控制回测窗口与撮合参数。
type BacktestConfig struct {
	Start       string  `mapstructure:"start"`
	End         string  `mapstructure:"end"`
	Freq        string  `mapstructure:"freq"`
	InitialCash float64 `mapstructure:"initial_cash"`
	DealPrice   string  `mapstructure:"deal_price"`
	Ledger      string  `mapstructure:"ledger"`
	OrdersFile  string  `mapstructure:"orders_file"`
	SkipOnError bool    `mapstructure:"skip_on_error"`
	RunName     string  `mapstructure:"run_name"`

	Strategy string        `mapstructure:"strategy"`
	MACross  MACrossConfig `mapstructure:"ma_cross"`
}

// MACrossConfig 描述均线交叉策略参数。
type MACrossConfig struct {
	Kind     string  `mapstructure:"kind"`
	Fast     int     `mapstructure:"fast"`
	Slow     int     `mapstructure:"slow"`
	Fraction float64 `mapstructure:"fraction"`
}

// StartTime 解析回测起点。
func (b BacktestConfig) StartTime() (time.Time, error) {
	return ParseTime(b.Start)
}

// EndTime 解析回测终点。
func (b BacktestConfig) EndTime() (time.Time, error) {
	return ParseTime(b.End)
}

// CostConfig 描述手续费与滑点比例。
type CostConfig struct {
	FeeRate      float64 `mapstructure:"fee_rate"`
	SlippageRate float64 `mapstructure:"slippage_rate"`
}

// InstrumentsConfig 描述标的列表来源。
type InstrumentsConfig struct {
	Source    string        `mapstructure:"source"`
	Market    string        `mapstructure:"market"`
	MinVolume float64       `mapstructure:"min_volume"`
	Symbols   []string      `mapstructure:"symbols"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DataConfig 描述本地行情目录。
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime 解析配置中的时间，空字符串返回零值。
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间 %q", s)
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}

	start, startErr := c.Backtest.StartTime()
	if startErr != nil {
		err = multierr.Append(err, fmt.Errorf("backtest.start: %w", startErr))
	}
	end, endErr := c.Backtest.EndTime()
	if endErr != nil {
		err = multierr.Append(err, fmt.Errorf("backtest.end: %w", endErr))
	}
	if startErr == nil && endErr == nil {
		if start.IsZero() || end.IsZero() {
			err = multierr.Append(err, errors.New("backtest.start 与 backtest.end 不能为空"))
		} else if end.Before(start) {
			err = multierr.Append(err, errors.New("backtest.end 不能早于 backtest.start"))
		}
	}
	if _, freqErr := calendar.ParseFrequency(c.Backtest.Freq); freqErr != nil {
		err = multierr.Append(err, fmt.Errorf("backtest.freq: %w", freqErr))
	}
	if c.Backtest.InitialCash <= 0 {
		err = multierr.Append(err, errors.New("backtest.initial_cash 必须大于0"))
	}
	if _, fieldErr := (quote.Quote{}).Field(c.Backtest.DealPrice); fieldErr != nil {
		err = multierr.Append(err, fmt.Errorf("backtest.deal_price: %w", fieldErr))
	}
	switch strings.ToLower(c.Backtest.Ledger) {
	case LedgerAccount, LedgerPosition:
	default:
		err = multierr.Append(err, fmt.Errorf("backtest.ledger 只能为 %s 或 %s", LedgerAccount, LedgerPosition))
	}

	switch strings.ToLower(c.Backtest.Strategy) {
	case StrategySchedule:
	case StrategyMACross:
		mc := c.Backtest.MACross
		if mc.Fast <= 1 || mc.Slow <= mc.Fast {
			err = multierr.Append(err, errors.New("backtest.ma_cross 需满足 1 < fast < slow"))
		}
		if mc.Fraction <= 0 || mc.Fraction > 1 {
			err = multierr.Append(err, errors.New("backtest.ma_cross.fraction 应位于(0,1]"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("backtest.strategy 只能为 %s 或 %s", StrategySchedule, StrategyMACross))
	}

	if c.Cost.FeeRate < 0 || c.Cost.FeeRate > 1 {
		err = multierr.Append(err, errors.New("cost.fee_rate 应位于[0,1]"))
	}
	if c.Cost.SlippageRate < 0 || c.Cost.SlippageRate > 1 {
		err = multierr.Append(err, errors.New("cost.slippage_rate 应位于[0,1]"))
	}

	if c.Instruments.Source == "" {
		err = multierr.Append(err, errors.New("instruments.source 不能为空"))
	}
	if c.Instruments.Market == "" {
		err = multierr.Append(err, errors.New("instruments.market 不能为空"))
	}
	if c.Instruments.MinVolume < 0 {
		err = multierr.Append(err, errors.New("instruments.min_volume 不能为负"))
	}
	if strings.EqualFold(c.Instruments.Source, "ccxt") && len(c.Instruments.Symbols) == 0 {
		err = multierr.Append(err, errors.New("ccxt 标的来源需要配置 instruments.symbols"))
	}
	if c.Data.Dir == "" {
		err = multierr.Append(err, errors.New("data.dir 不能为空"))
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
