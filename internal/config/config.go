package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "crypto"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.http_addr", ":8090")

	v.SetDefault("exchange.name", "binanceusdm")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("backtest.start", "")
	v.SetDefault("backtest.end", "")
	v.SetDefault("backtest.freq", "day")
	v.SetDefault("backtest.initial_cash", 100000.0)
	v.SetDefault("backtest.deal_price", "close")
	v.SetDefault("backtest.ledger", LedgerAccount)
	v.SetDefault("backtest.orders_file", "")
	v.SetDefault("backtest.skip_on_error", false)
	v.SetDefault("backtest.run_name", "default")
	v.SetDefault("backtest.strategy", StrategySchedule)
	v.SetDefault("backtest.ma_cross.kind", "sma")
	v.SetDefault("backtest.ma_cross.fast", 5)
	v.SetDefault("backtest.ma_cross.slow", 20)
	v.SetDefault("backtest.ma_cross.fraction", 0.5)

	v.SetDefault("cost.fee_rate", 0.001)
	v.SetDefault("cost.slippage_rate", 0.0)

	v.SetDefault("instruments.source", "")
	v.SetDefault("instruments.market", "all")
	v.SetDefault("instruments.min_volume", 0.0)
	v.SetDefault("instruments.timeout", "15s")

	v.SetDefault("data.dir", "data/quotes")

	v.SetDefault("database.path", "data/crypto_backtest.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
