// Package instrument 列出加密市场的可交易标的，并按市场缓存加载结果。
package instrument

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// MinTime 与 MaxTime 为未指定时间范围时使用的边界，即 int64 纳秒可表示的范围。
	MinTime = time.Unix(0, math.MinInt64).UTC()
	MaxTime = time.Unix(0, math.MaxInt64).UTC()
)

// Criteria 描述一次标的查询。
type Criteria struct {
	Market  string
	Start   time.Time
	End     time.Time
	Freq    string
	Symbols []string
}

// TimeRange 为标的的可交易区间。
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Provider 加载、缓存并过滤标的列表。
type Provider struct {
	loader    Loader
	cache     *Cache
	minVolume float64
	logger    *zap.Logger

	group singleflight.Group
}

// NewProvider 创建标的提供者，cache 为空时新建一个私有缓存。
func NewProvider(loader Loader, cache *Cache, minVolume float64, logger *zap.Logger) (*Provider, error) {
	if loader == nil {
		return nil, errors.New("instrument: loader 不能为空")
	}
	if minVolume < 0 || math.IsNaN(minVolume) {
		return nil, fmt.Errorf("instrument: min_volume 不能为负: %v", minVolume)
	}
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		loader:    loader,
		cache:     cache,
		minVolume: minVolume,
		logger:    logger,
	}, nil
}

// Cache 返回提供者使用的缓存。
func (p *Provider) Cache() *Cache {
	return p.cache
}

// List 返回过滤后的标的代码，保持数据源顺序。
func (p *Provider) List(ctx context.Context, c Criteria) ([]string, error) {
	if c.Market == "" {
		return nil, errors.New("instrument: market 不能为空")
	}
	if !c.Start.IsZero() && !c.End.IsZero() && c.End.Before(c.Start) {
		return nil, fmt.Errorf("instrument: end %s 早于 start %s", c.End.Format(time.RFC3339), c.Start.Format(time.RFC3339))
	}

	frame, err := p.frame(ctx, c.Market)
	if err != nil {
		return nil, err
	}

	rows := frame.FilterMinVolume(p.minVolume)
	var allow map[string]struct{}
	if len(c.Symbols) > 0 {
		allow = make(map[string]struct{}, len(c.Symbols))
		for _, s := range c.Symbols {
			allow[s] = struct{}{}
		}
	}

	out := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if allow != nil {
			if _, ok := allow[r.Symbol]; !ok {
				continue
			}
		}
		if _, dup := seen[r.Symbol]; dup {
			continue
		}
		seen[r.Symbol] = struct{}{}
		out = append(out, r.Symbol)
	}
	return out, nil
}

// ListRanges 将每个标的映射到查询区间，加密标的没有单独的上市区间。
func (p *Provider) ListRanges(ctx context.Context, c Criteria) (map[string][]TimeRange, error) {
	symbols, err := p.List(ctx, c)
	if err != nil {
		return nil, err
	}
	span := TimeRange{Start: c.Start, End: c.End}
	if span.Start.IsZero() {
		span.Start = MinTime
	}
	if span.End.IsZero() {
		span.End = MaxTime
	}

	out := make(map[string][]TimeRange, len(symbols))
	for _, sym := range symbols {
		out[sym] = []TimeRange{span}
	}
	return out, nil
}

func (p *Provider) frame(ctx context.Context, market string) (*Frame, error) {
	key := CacheKey(market)
	if f, ok := p.cache.Get(key); ok {
		return f, nil
	}

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		if f, ok := p.cache.Get(key); ok {
			return f, nil
		}
		f, err := p.loader.Load(ctx, market)
		if err != nil {
			return nil, err
		}
		p.cache.Put(key, f)
		p.logger.Info("已加载标的列表",
			zap.String("market", market),
			zap.Int("count", len(f.Rows)),
			zap.Bool("has_volume", f.HasVolume),
		)
		return f, nil
	})
	if err != nil {
		return nil, fmt.Errorf("instrument: 加载 %s 标的失败: %w", market, err)
	}
	return v.(*Frame), nil
}
