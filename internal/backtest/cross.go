package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"crypto-backtest/internal/indicator"
	"crypto-backtest/internal/order"
)

// CrossStrategy 为均线交叉策略：快线上穿慢线且空仓时按现金比例买入，下穿时清仓。
type CrossStrategy struct {
	prices   PriceSource
	calc     *indicator.Calculator
	fraction float64
	logger   *zap.Logger
}

// NewCrossStrategy 创建均线交叉策略，fraction 为每次买入动用的现金比例。
func NewCrossStrategy(prices PriceSource, calc *indicator.Calculator, fraction float64, logger *zap.Logger) (*CrossStrategy, error) {
	if prices == nil || prices.Table() == nil {
		return nil, errors.New("backtest: 行情源不能为空")
	}
	if calc == nil {
		return nil, errors.New("backtest: 指标计算器不能为空")
	}
	if fraction <= 0 || fraction > 1 || math.IsNaN(fraction) {
		return nil, fmt.Errorf("backtest: 买入比例应位于(0,1]: %v", fraction)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrossStrategy{prices: prices, calc: calc, fraction: fraction, logger: logger}, nil
}

// Orders 实现 Strategy。
func (s *CrossStrategy) Orders(ctx context.Context, step Step) ([]*order.Order, error) {
	table := s.prices.Table()
	field := s.prices.DealPrice()

	var out []*order.Order
	for _, sym := range table.Instruments() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := table.At(sym, step.Time); !ok {
			continue
		}

		series, err := indicator.NewSeries(table.Window(sym, time.Time{}, step.Time), field)
		if err != nil {
			return nil, err
		}
		res, err := s.calc.Compute(sym, series)
		if errors.Is(err, indicator.ErrInsufficientData) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !res.At.Equal(step.Time) {
			continue
		}

		held := step.Holdings.Amount(sym)
		price := indicator.Last(series.Values)
		switch {
		case res.Cross == indicator.CrossUp && held <= 0:
			amount := step.Holdings.Cash() * s.fraction / price
			if amount <= 0 {
				continue
			}
			out = append(out, order.New(sym, amount, order.DirectionBuy, step.Time, step.Time))
		case res.Cross == indicator.CrossDown && held > 0:
			out = append(out, order.New(sym, held, order.DirectionSell, step.Time, step.Time))
		default:
			continue
		}
		s.logger.Debug("均线交叉信号",
			zap.String("symbol", sym),
			zap.Time("ts", step.Time),
			zap.Int("cross", int(res.Cross)),
			zap.Float64("fast", res.Fast),
			zap.Float64("slow", res.Slow),
		)
	}
	return out, nil
}
