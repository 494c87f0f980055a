package indicator

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	talib "github.com/markcheno/go-talib"
)

// ErrInsufficientData 表示序列长度不足以计算指标。
var ErrInsufficientData = errors.New("indicator: 数据不足")

// MovingAverage 类型。
const (
	KindSMA = "sma"
	KindEMA = "ema"
)

// Cross 为快慢均线在最近两个点上的交叉状态。
type Cross int

const (
	CrossNone Cross = 0
	CrossUp   Cross = 1
	CrossDown Cross = -1
)

// CrossResult 保存一次均线交叉计算结果。
type CrossResult struct {
	Fast     float64
	Slow     float64
	PrevFast float64
	PrevSlow float64
	Cross    Cross
	At       time.Time
}

type cacheEntry struct {
	key    string
	result CrossResult
}

// Calculator 计算均线交叉并按标的缓存最近一次结果。
type Calculator struct {
	kind string
	fast int
	slow int

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCalculator 创建均线计算器，要求 0 < fast < slow。
func NewCalculator(kind string, fast, slow int) (*Calculator, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = KindSMA
	}
	if kind != KindSMA && kind != KindEMA {
		return nil, fmt.Errorf("indicator: 不支持的均线类型 %q", kind)
	}
	if fast <= 1 || slow <= fast {
		return nil, fmt.Errorf("indicator: 均线周期无效 fast=%d slow=%d", fast, slow)
	}
	return &Calculator{
		kind:  kind,
		fast:  fast,
		slow:  slow,
		cache: make(map[string]cacheEntry),
	}, nil
}

// Compute 计算 symbol 的快慢均线及交叉状态，需要至少 slow+1 个点。
func (c *Calculator) Compute(symbol string, series Series) (CrossResult, error) {
	if series.Len() < c.slow+1 {
		return CrossResult{}, fmt.Errorf("%w: %s 需要 %d 个点，当前 %d", ErrInsufficientData, symbol, c.slow+1, series.Len())
	}

	last := series.Timestamps[series.Len()-1]
	cacheKey := fmt.Sprintf("%d:%d", series.Len(), last.UnixNano())

	c.mu.Lock()
	if entry, ok := c.cache[symbol]; ok && entry.key == cacheKey {
		c.mu.Unlock()
		return entry.result, nil
	}
	c.mu.Unlock()

	fast := c.average(series.Values, c.fast)
	slow := c.average(series.Values, c.slow)

	result := CrossResult{
		Fast:     Last(fast),
		Slow:     Last(slow),
		PrevFast: Prev(fast),
		PrevSlow: Prev(slow),
		At:       last,
	}
	switch {
	case result.PrevFast <= result.PrevSlow && result.Fast > result.Slow:
		result.Cross = CrossUp
	case result.PrevFast >= result.PrevSlow && result.Fast < result.Slow:
		result.Cross = CrossDown
	}

	c.mu.Lock()
	c.cache[symbol] = cacheEntry{key: cacheKey, result: result}
	c.mu.Unlock()

	return result, nil
}

func (c *Calculator) average(values []float64, period int) []float64 {
	if c.kind == KindEMA {
		return talib.Ema(values, period)
	}
	return talib.Sma(values, period)
}
