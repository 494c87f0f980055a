// Package quote 提供按 (标的, 时间) 索引的只读 OHLCV 行情。
package quote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"crypto-backtest/internal/calendar"
)

var (
	// ErrUnknownField 表示请求了不支持的行情字段。
	ErrUnknownField = errors.New("quote: 不支持的行情字段")
	// ErrNotFound 表示标的行情不存在。
	ErrNotFound = errors.New("quote: 行情不存在")
)

// 支持的字段名。
const (
	FieldOpen   = "open"
	FieldHigh   = "high"
	FieldLow    = "low"
	FieldClose  = "close"
	FieldVolume = "volume"
	FieldFactor = "factor"
)

// DefaultFields 为全部行情字段。
var DefaultFields = []string{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume, FieldFactor}

// Quote 为单根K线及复权因子。
type Quote struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Factor    float64
}

// NormalizeField 去掉 "$" 前缀并转为小写。
func NormalizeField(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "$"))
}

// Field 按名称读取字段值，名称可带 "$" 前缀。
func (q Quote) Field(name string) (float64, error) {
	switch NormalizeField(name) {
	case FieldOpen:
		return q.Open, nil
	case FieldHigh:
		return q.High, nil
	case FieldLow:
		return q.Low, nil
	case FieldClose:
		return q.Close, nil
	case FieldVolume:
		return q.Volume, nil
	case FieldFactor:
		return q.Factor, nil
	default:
		return math.NaN(), fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
}

// ValidateFields 校验字段列表，空列表视为合法。
func ValidateFields(fields []string) error {
	var probe Quote
	for _, f := range fields {
		if _, err := probe.Field(f); err != nil {
			return err
		}
	}
	return nil
}

// Provider 按标的与时间窗口加载行情。
type Provider interface {
	Features(ctx context.Context, instruments []string, fields []string, start, end time.Time, freq string) (*Table, error)
}

// Table 按标的保存时间升序的行情序列，构建完成后只读。
type Table struct {
	series map[string][]Quote
}

// NewTable 创建空行情表。
func NewTable() *Table {
	return &Table{series: make(map[string][]Quote)}
}

// Add 追加行情并保持时间升序，同一时间戳以后写入者为准。
func (t *Table) Add(instrument string, quotes ...Quote) {
	if len(quotes) == 0 {
		if _, ok := t.series[instrument]; !ok {
			t.series[instrument] = nil
		}
		return
	}
	merged := append(t.series[instrument], quotes...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })

	out := merged[:0]
	for _, q := range merged {
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(q.Timestamp) {
			out[n-1] = q
			continue
		}
		out = append(out, q)
	}
	t.series[instrument] = out
}

// Has 判断标的是否存在于表中。
func (t *Table) Has(instrument string) bool {
	_, ok := t.series[instrument]
	return ok
}

// Instruments 返回排序后的标的列表。
func (t *Table) Instruments() []string {
	out := make([]string, 0, len(t.series))
	for inst := range t.series {
		out = append(out, inst)
	}
	sort.Strings(out)
	return out
}

// Series 返回标的全部行情的副本。
func (t *Table) Series(instrument string) []Quote {
	return append([]Quote(nil), t.series[instrument]...)
}

// Window 返回 [start, end] 内的行情，零值边界表示不限。
func (t *Table) Window(instrument string, start, end time.Time) []Quote {
	src := t.series[instrument]
	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(src), func(i int) bool { return !src[i].Timestamp.Before(start) })
	}
	hi := len(src)
	if !end.IsZero() {
		hi = sort.Search(len(src), func(i int) bool { return src[i].Timestamp.After(end) })
	}
	if lo >= hi {
		return nil
	}
	return append([]Quote(nil), src[lo:hi]...)
}

// Last 返回窗口内最后一根K线。
func (t *Table) Last(instrument string, start, end time.Time) (Quote, bool) {
	w := t.Window(instrument, start, end)
	if len(w) == 0 {
		return Quote{}, false
	}
	return w[len(w)-1], true
}

// At 返回指定时间戳上的K线。
func (t *Table) At(instrument string, ts time.Time) (Quote, bool) {
	src := t.series[instrument]
	i := sort.Search(len(src), func(i int) bool { return !src[i].Timestamp.Before(ts) })
	if i < len(src) && src[i].Timestamp.Equal(ts) {
		return src[i], true
	}
	return Quote{}, false
}

// Timestamps 返回全部标的时间戳的并集，升序去重。
func (t *Table) Timestamps() []time.Time {
	var all []time.Time
	for _, s := range t.series {
		for _, q := range s {
			all = append(all, q.Timestamp)
		}
	}
	return calendar.FromTimestamps(all).Between(time.Time{}, time.Time{})
}

// Len 返回行情总条数。
func (t *Table) Len() int {
	n := 0
	for _, s := range t.series {
		n += len(s)
	}
	return n
}

// onGrid 保留落在 [start, end] 且与频率网格对齐的K线，缺失的网格点不补齐。
func onGrid(quotes []Quote, start, end time.Time, freq calendar.Frequency) []Quote {
	out := make([]Quote, 0, len(quotes))
	for _, q := range quotes {
		if !start.IsZero() && q.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && q.Timestamp.After(end) {
			continue
		}
		if !start.IsZero() && q.Timestamp.Sub(start)%freq.Step != 0 {
			continue
		}
		out = append(out, q)
	}
	return out
}

// Memory 为内存行情源，可被多个读者并发访问。
type Memory struct {
	mu    sync.RWMutex
	table *Table
}

// NewMemory 以给定行情表创建内存行情源。
func NewMemory(table *Table) *Memory {
	if table == nil {
		table = NewTable()
	}
	return &Memory{table: table}
}

// Features 返回窗口内对齐到日历网格的行情。
func (m *Memory) Features(ctx context.Context, instruments []string, fields []string, start, end time.Time, freq string) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateFields(fields); err != nil {
		return nil, err
	}
	f, err := calendar.ParseFrequency(freq)
	if err != nil {
		return nil, fmt.Errorf("quote: 解析频率失败: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := NewTable()
	for _, inst := range instruments {
		if !m.table.Has(inst) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, inst)
		}
		out.Add(inst, onGrid(m.table.series[inst], start, end, f)...)
	}
	return out, nil
}

var _ Provider = (*Memory)(nil)
