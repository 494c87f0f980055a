package backtest

import (
	"context"
	"time"

	"crypto-backtest/internal/exchange"
	"crypto-backtest/internal/ledger"
	"crypto-backtest/internal/order"
)

// Step 为驱动器推进到的单个日历时点。
type Step struct {
	Index    int
	Time     time.Time
	Holdings ledger.Holdings
}

// Strategy 在每个时点给出待撮合的订单。返回订单的窗口为空时默认使用当前时点。
type Strategy interface {
	Orders(ctx context.Context, step Step) ([]*order.Order, error)
}

// StrategyFunc 允许使用函数作为策略。
type StrategyFunc func(ctx context.Context, step Step) ([]*order.Order, error)

func (f StrategyFunc) Orders(ctx context.Context, step Step) ([]*order.Order, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx, step)
}

// Dealer 为订单撮合接口，由 *exchange.Exchange 实现。
type Dealer interface {
	DealOrder(o *order.Order, target exchange.Target) (exchange.Result, error)
}

// FillEvent 为单笔订单的撮合结果。
type FillEvent struct {
	Time   time.Time
	Order  *order.Order
	Result exchange.Result
}

// Recorder 持久化撮合结果。
type Recorder interface {
	RecordFill(ctx context.Context, ev FillEvent) error
}

// RecorderFunc 允许使用函数作为记录器。
type RecorderFunc func(ctx context.Context, ev FillEvent) error

func (f RecorderFunc) RecordFill(ctx context.Context, ev FillEvent) error {
	return f(ctx, ev)
}

var _ Dealer = (*exchange.Exchange)(nil)
