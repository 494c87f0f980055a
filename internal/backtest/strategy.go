package backtest

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"crypto-backtest/internal/config"
	"crypto-backtest/internal/order"
)

// ScheduledOrder 为订单文件中的一条计划订单。
type ScheduledOrder struct {
	Time      time.Time
	Symbol    string
	Direction order.Direction
	Amount    float64
}

type scheduleFile struct {
	Orders []scheduleEntry `yaml:"orders"`
}

type scheduleEntry struct {
	Time      string  `yaml:"time"`
	Symbol    string  `yaml:"symbol"`
	Direction string  `yaml:"direction"`
	Amount    float64 `yaml:"amount"`
}

// LoadSchedule 读取 YAML 订单文件。
func LoadSchedule(path string) ([]ScheduledOrder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backtest: 打开订单文件失败: %w", err)
	}
	defer f.Close()
	return ParseSchedule(f)
}

// ParseSchedule 解析 YAML 订单并按时间排序，同一时间保持文件顺序。
func ParseSchedule(r io.Reader) ([]ScheduledOrder, error) {
	var file scheduleFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("backtest: 解析订单文件失败: %w", err)
	}

	var errs error
	orders := make([]ScheduledOrder, 0, len(file.Orders))
	for i, entry := range file.Orders {
		ts, err := config.ParseTime(entry.Time)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("orders[%d].time: %w", i, err))
			continue
		}
		if ts.IsZero() {
			errs = multierr.Append(errs, fmt.Errorf("orders[%d].time 不能为空", i))
			continue
		}
		dir, err := order.ParseDirection(entry.Direction)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("orders[%d].direction: %w", i, err))
			continue
		}
		if entry.Symbol == "" {
			errs = multierr.Append(errs, fmt.Errorf("orders[%d].symbol 不能为空", i))
			continue
		}
		orders = append(orders, ScheduledOrder{
			Time:      ts,
			Symbol:    entry.Symbol,
			Direction: dir,
			Amount:    entry.Amount,
		})
	}
	if errs != nil {
		return nil, fmt.Errorf("backtest: 订单文件无效: %w", errs)
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Time.Before(orders[j].Time)
	})
	return orders, nil
}

// ScheduledStrategy 按计划回放订单：每个时点下发计划时间不晚于该时点且尚未下发的订单。
type ScheduledStrategy struct {
	schedule []ScheduledOrder
	next     int
}

// NewScheduledStrategy 创建回放策略，schedule 需按时间升序。
func NewScheduledStrategy(schedule []ScheduledOrder) *ScheduledStrategy {
	return &ScheduledStrategy{schedule: append([]ScheduledOrder(nil), schedule...)}
}

// Symbols 返回计划中出现的标的，按首次出现顺序去重。
func (s *ScheduledStrategy) Symbols() []string {
	seen := make(map[string]struct{}, len(s.schedule))
	out := make([]string, 0, len(s.schedule))
	for _, o := range s.schedule {
		if _, ok := seen[o.Symbol]; ok {
			continue
		}
		seen[o.Symbol] = struct{}{}
		out = append(out, o.Symbol)
	}
	return out
}

// Orders 实现 Strategy。
func (s *ScheduledStrategy) Orders(ctx context.Context, step Step) ([]*order.Order, error) {
	var out []*order.Order
	for s.next < len(s.schedule) && !s.schedule[s.next].Time.After(step.Time) {
		p := s.schedule[s.next]
		out = append(out, order.New(p.Symbol, p.Amount, p.Direction, step.Time, step.Time))
		s.next++
	}
	return out, nil
}

// Remaining 返回尚未下发的计划订单数。
func (s *ScheduledStrategy) Remaining() int {
	return len(s.schedule) - s.next
}
