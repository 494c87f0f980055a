// Package calendar 生成连续交易（7x24）市场的时间序列。
//
// 与股票日历不同，这里不会剔除周末或节假日：序列从 start 开始按固定步长递增，
// 直到不超过 end 的最后一个时间点。
package calendar

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// MaxSteps 为单次生成日历的步数上限。
const MaxSteps = 20_000_000

// ErrTooManySteps 表示时间窗与步长组合超出 MaxSteps。
var ErrTooManySteps = errors.New("calendar: 日历步数超出上限")

// Generate 返回 [start, end] 内按 freq 步进的时间序列。
//
// 序列以 start 为锚点严格递增，end 与网格对齐时包含 end。start 晚于 end 时返回空序列。
// 相同参数的调用总是得到相同结果。
func Generate(start, end time.Time, freq string) ([]time.Time, error) {
	f, err := ParseFrequency(freq)
	if err != nil {
		return nil, err
	}
	return f.Range(start, end)
}

// Range 以当前步长生成 [start, end] 的时间序列。
//
// 跨度超出 time.Duration 表示范围（约 292 年）时同样包含对齐的 end。
func (f Frequency) Range(start, end time.Time) ([]time.Time, error) {
	if f.Step <= 0 || end.Before(start) {
		return []time.Time{}, nil
	}

	count, err := f.count(start, end)
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, count)
	for t := start; !t.After(end); t = t.Add(f.Step) {
		out = append(out, t)
	}
	return out, nil
}

// count 估算 [start, end] 的步数并检查上限。
func (f Frequency) count(start, end time.Time) (int, error) {
	span := end.Sub(start)
	var steps int64
	if start.Add(span).Equal(end) {
		steps = int64(span/f.Step) + 1
	} else if stepSecs := int64(f.Step / time.Second); stepSecs > 0 {
		// Sub 已饱和，按整秒差估算。
		steps = (end.Unix()-start.Unix())/stepSecs + 1
	} else {
		steps = math.MaxInt64
	}
	if steps > MaxSteps {
		return 0, fmt.Errorf("%w: %s 至 %s 按 %s 共 %d 步，上限 %d",
			ErrTooManySteps, start.Format(time.RFC3339), end.Format(time.RFC3339), f.Raw, steps, MaxSteps)
	}
	return int(steps), nil
}

// DefaultStart 为日历提供者生成序列的固定起点。
var DefaultStart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Provider 从固定起点生成到当前时间（可选未来一年）的连续日历。
type Provider struct {
	start time.Time
	now   func() time.Time
}

// ProviderOption 配置 Provider。
type ProviderOption func(*Provider)

// WithStart 覆盖默认起点。
func WithStart(start time.Time) ProviderOption {
	return func(p *Provider) {
		p.start = start
	}
}

// WithClock 注入时钟，便于测试。
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// NewProvider 创建日历提供者。
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		start: DefaultStart,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Load 生成从起点到今天的日历，future 为真时延伸 365 天。
func (p *Provider) Load(freq string, future bool) ([]time.Time, error) {
	end := p.now().UTC()
	if future {
		end = end.Add(365 * 24 * time.Hour)
	}
	return Generate(p.start, end, freq)
}

// Memory 以已有行情时间戳构成的日历。
type Memory struct {
	timestamps []time.Time
}

// FromTimestamps 去重并升序排列时间戳。
func FromTimestamps(ts []time.Time) *Memory {
	seen := make(map[int64]struct{}, len(ts))
	out := make([]time.Time, 0, len(ts))
	for _, t := range ts {
		key := t.UnixNano()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t.UTC())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return &Memory{timestamps: out}
}

// Load 返回全部时间戳，仅支持日频。
func (m *Memory) Load(freq string) ([]time.Time, error) {
	f, err := ParseFrequency(freq)
	if err != nil {
		return nil, err
	}
	if !f.Daily() {
		return nil, fmt.Errorf("%w: 行情日历仅支持日频，当前 %q", ErrInvalidFrequency, freq)
	}
	return append([]time.Time(nil), m.timestamps...), nil
}

// Between 返回 [start, end] 内的时间戳，零值边界表示不限。
func (m *Memory) Between(start, end time.Time) []time.Time {
	out := make([]time.Time, 0, len(m.timestamps))
	for _, t := range m.timestamps {
		if !start.IsZero() && t.Before(start) {
			continue
		}
		if !end.IsZero() && t.After(end) {
			continue
		}
		out = append(out, t)
	}
	return out
}
