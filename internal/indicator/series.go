// Package indicator 基于行情序列计算技术指标。
package indicator

import (
	"math"
	"time"

	"crypto-backtest/internal/quote"
)

// Series 为单个标的按时间升序的价格序列，无效价格的K线已剔除。
type Series struct {
	Timestamps []time.Time
	Values     []float64
}

// NewSeries 从行情取出 field 字段构造序列，NaN 与非正价格被跳过。
func NewSeries(quotes []quote.Quote, field string) (Series, error) {
	series := Series{
		Timestamps: make([]time.Time, 0, len(quotes)),
		Values:     make([]float64, 0, len(quotes)),
	}
	for _, q := range quotes {
		v, err := q.Field(field)
		if err != nil {
			return Series{}, err
		}
		if math.IsNaN(v) || v <= 0 {
			continue
		}
		series.Timestamps = append(series.Timestamps, q.Timestamp.UTC())
		series.Values = append(series.Values, v)
	}
	return series, nil
}

// Len 返回序列长度。
func (s Series) Len() int {
	return len(s.Values)
}

// Last 返回序列最后一个值，若为空则返回 NaN。
func Last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// Prev 返回序列倒数第二个值，若不足两个元素则返回 NaN。
func Prev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return values[len(values)-2]
}
