package marketdata

import "time"

// TimeframeDaily 为成交量过滤使用的K线周期。
const TimeframeDaily = "1d"

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// VolumeRow 为单个标的最近一根日线的成交量。
type VolumeRow struct {
	Symbol string
	Volume float64
	AsOf   time.Time
}
