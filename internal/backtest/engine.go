// Package backtest 沿交易日历推进，将策略订单交给撮合器并统计账户表现。
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"crypto-backtest/internal/calendar"
	"crypto-backtest/internal/config"
	"crypto-backtest/internal/exchange"
	"crypto-backtest/internal/ledger"
	"crypto-backtest/internal/quote"
)

// PriceSource 提供盯市所用的行情表与成交价字段，由 *exchange.QuoteMatcher 实现。
type PriceSource interface {
	Table() *quote.Table
	DealPrice() string
}

// Result 汇总回测结果。
type Result struct {
	Metrics      Metrics         `json:"metrics"`
	Timestamps   []time.Time     `json:"timestamps"`
	EquityCurve  []float64       `json:"equity_curve"`
	ReturnSeries []float64       `json:"return_series"`
	Trades       int             `json:"trades"`
	Rejected     int             `json:"rejected"`
	Errors       int             `json:"errors"`
	FinalEquity  float64         `json:"final_equity"`
	Ledger       ledger.Snapshot `json:"ledger"`
}

type book interface {
	ledger.Holdings
	Symbols() []string
	MarkPrices(prices map[string]float64)
	Value(prices map[string]float64) float64
	Snapshot() ledger.Snapshot
}

// Engine 串联日历、策略、撮合与流水记录。单个 Engine 只能运行一次。
type Engine struct {
	cfg      Config
	freq     calendar.Frequency
	dealer   Dealer
	prices   PriceSource
	strategy Strategy
	recorder Recorder
	logger   *zap.Logger
}

// NewEngine 构建回测引擎，recorder 可为空。
func NewEngine(cfg Config, dealer Dealer, prices PriceSource, strategy Strategy, recorder Recorder, logger *zap.Logger) (*Engine, error) {
	if dealer == nil {
		return nil, fmt.Errorf("backtest: dealer 不能为空")
	}
	if prices == nil || prices.Table() == nil {
		return nil, fmt.Errorf("backtest: 行情源不能为空")
	}
	if strategy == nil {
		return nil, fmt.Errorf("backtest: strategy 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg = cfg.normalize()
	freq, err := calendar.ParseFrequency(cfg.Freq)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	if cfg.Start.IsZero() || cfg.End.IsZero() {
		return nil, fmt.Errorf("backtest: 必须指定开始与结束时间")
	}
	if cfg.End.Before(cfg.Start) {
		return nil, fmt.Errorf("backtest: 结束时间早于开始时间")
	}
	if cfg.Ledger != config.LedgerAccount && cfg.Ledger != config.LedgerPosition {
		return nil, fmt.Errorf("backtest: 未知账本类型 %q", cfg.Ledger)
	}

	return &Engine{
		cfg:      cfg,
		freq:     freq,
		dealer:   dealer,
		prices:   prices,
		strategy: strategy,
		recorder: recorder,
		logger:   logger,
	}, nil
}

func (e *Engine) newBook() (book, exchange.Target) {
	if e.cfg.Ledger == config.LedgerPosition {
		p := ledger.NewPosition(e.cfg.InitialCash)
		return p, exchange.PositionTarget{Position: p}
	}
	a := ledger.NewAccount(e.cfg.InitialCash)
	return a, exchange.AccountTarget{Account: a}
}

// Run 执行完整回测流程。
func (e *Engine) Run(ctx context.Context) (Result, error) {
	steps, err := e.freq.Range(e.cfg.Start, e.cfg.End)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", exchange.ErrConfiguration, err)
	}
	b, target := e.newBook()

	res := Result{
		Timestamps:   make([]time.Time, 0, len(steps)),
		EquityCurve:  make([]float64, 0, len(steps)+1),
		ReturnSeries: make([]float64, 0, len(steps)),
	}
	res.EquityCurve = append(res.EquityCurve, e.cfg.InitialCash)

	for i, ts := range steps {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		if err := e.step(ctx, i, ts, b, target, &res); err != nil {
			return Result{}, err
		}

		prices := e.pricesAt(ts, b)
		b.MarkPrices(prices)
		value := b.Value(prices)
		prev := res.EquityCurve[len(res.EquityCurve)-1]
		if prev != 0 {
			res.ReturnSeries = append(res.ReturnSeries, value/prev-1)
		}
		res.EquityCurve = append(res.EquityCurve, value)
		res.Timestamps = append(res.Timestamps, ts)
	}

	res.Metrics = calculateMetrics(res.EquityCurve, res.ReturnSeries, e.freq.StepsPerYear())
	res.FinalEquity = res.EquityCurve[len(res.EquityCurve)-1]
	res.Ledger = b.Snapshot()

	e.logger.Info("回测完成",
		zap.Int("steps", len(steps)),
		zap.Int("trades", res.Trades),
		zap.Int("rejected", res.Rejected),
		zap.Int("errors", res.Errors),
		zap.Float64("final_equity", res.FinalEquity),
		zap.Float64("total_return", res.Metrics.TotalReturn),
	)
	if s, ok := e.strategy.(*ScheduledStrategy); ok && s.Remaining() > 0 {
		e.logger.Warn("计划订单未在回测窗口内执行", zap.Int("remaining", s.Remaining()))
	}
	return res, nil
}

func (e *Engine) step(ctx context.Context, index int, ts time.Time, b book, target exchange.Target, res *Result) error {
	orders, err := e.strategy.Orders(ctx, Step{Index: index, Time: ts, Holdings: b})
	if err != nil {
		if !e.cfg.SkipOnError {
			return fmt.Errorf("backtest: %s 生成订单失败: %w", ts.Format(time.RFC3339), err)
		}
		res.Errors++
		e.logger.Warn("生成订单失败，跳过该时点", zap.Time("ts", ts), zap.Error(err))
		return nil
	}

	for _, o := range orders {
		if o == nil {
			continue
		}
		if o.Start.IsZero() {
			o.Start = ts
		}
		if o.End.IsZero() {
			o.End = ts
		}

		result, err := e.dealer.DealOrder(o, target)
		if err != nil {
			if exchange.IsConfigurationError(err) || !e.cfg.SkipOnError {
				return fmt.Errorf("backtest: %s 撮合失败 %s: %w", ts.Format(time.RFC3339), o, err)
			}
			res.Errors++
			e.logger.Warn("撮合失败，跳过该订单", zap.Time("ts", ts), zap.Stringer("order", o), zap.Error(err))
			continue
		}

		if result.Rejected() {
			res.Rejected++
		} else {
			res.Trades++
		}

		if e.recorder != nil {
			if err := e.recorder.RecordFill(ctx, FillEvent{Time: ts, Order: o, Result: result}); err != nil {
				return fmt.Errorf("backtest: 记录成交失败: %w", err)
			}
		}
	}
	return nil
}

// pricesAt 取持仓标的在 ts 的成交价字段，缺失或无效的价格不参与盯市。
func (e *Engine) pricesAt(ts time.Time, b book) map[string]float64 {
	symbols := b.Symbols()
	prices := make(map[string]float64, len(symbols))
	table := e.prices.Table()
	field := e.prices.DealPrice()
	for _, sym := range symbols {
		bar, ok := table.At(sym, ts)
		if !ok {
			continue
		}
		px, err := bar.Field(field)
		if err != nil || math.IsNaN(px) || px <= 0 {
			continue
		}
		prices[sym] = px
	}
	return prices
}
