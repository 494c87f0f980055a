package backtest

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"crypto-backtest/internal/calendar"
	"crypto-backtest/internal/exchange"
	"crypto-backtest/internal/order"
	"crypto-backtest/internal/quote"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func testMatcher(t *testing.T) *exchange.QuoteMatcher {
	t.Helper()
	tbl := quote.NewTable()
	tbl.Add("BTC-USDT",
		quote.Quote{Timestamp: day(0), Close: 100, Factor: 1},
		quote.Quote{Timestamp: day(1), Close: 110, Factor: 1},
		quote.Quote{Timestamp: day(2), Close: 121, Factor: 1},
		quote.Quote{Timestamp: day(3), Close: 110, Factor: 1},
	)
	tbl.Add("ETH-USDT",
		quote.Quote{Timestamp: day(0), Close: 10, Factor: 1},
		quote.Quote{Timestamp: day(1), Close: math.NaN(), Factor: 1},
	)
	m, err := exchange.NewTableMatcher(tbl, "close", nil)
	require.NoError(t, err)
	return m
}

func newTestEngine(t *testing.T, cfg Config, strategy Strategy, recorder Recorder) *Engine {
	t.Helper()
	m := testMatcher(t)
	ex, err := exchange.New(m, exchange.Options{}, nil)
	require.NoError(t, err)
	engine, err := NewEngine(cfg, ex, m, strategy, recorder, nil)
	require.NoError(t, err)
	return engine
}

func window() Config {
	return Config{Start: day(0), End: day(3), Freq: "day", InitialCash: 1000}
}

func TestEngineRoundTrip(t *testing.T) {
	for _, ledgerKind := range []string{"account", "position"} {
		t.Run(ledgerKind, func(t *testing.T) {
			cfg := window()
			cfg.Ledger = ledgerKind
			strategy := NewScheduledStrategy([]ScheduledOrder{
				{Time: day(0), Symbol: "BTC-USDT", Direction: order.DirectionBuy, Amount: 1},
				{Time: day(2), Symbol: "BTC-USDT", Direction: order.DirectionSell, Amount: 1},
			})

			res, err := newTestEngine(t, cfg, strategy, nil).Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, []time.Time{day(0), day(1), day(2), day(3)}, res.Timestamps)
			assert.InDeltaSlice(t, []float64{1000, 1000, 1010, 1021, 1021}, res.EquityCurve, 1e-9)
			assert.Len(t, res.ReturnSeries, 4)
			assert.Equal(t, 2, res.Trades)
			assert.Equal(t, 0, res.Rejected)
			assert.InDelta(t, 1021, res.FinalEquity, 1e-9)
			assert.InDelta(t, 0.021, res.Metrics.TotalReturn, 1e-9)
			assert.Zero(t, res.Metrics.MaxDrawdown)
			assert.Empty(t, res.Ledger.Holdings)
			assert.Zero(t, strategy.Remaining())
		})
	}
}

func TestEngineAccountStatistics(t *testing.T) {
	strategy := NewScheduledStrategy([]ScheduledOrder{
		{Time: day(0), Symbol: "BTC-USDT", Direction: order.DirectionBuy, Amount: 2},
	})
	res, err := newTestEngine(t, window(), strategy, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Ledger.Trades)
	assert.InDelta(t, 200, res.Ledger.Turnover, 1e-9)
	assert.InDelta(t, 800, res.Ledger.Cash, 1e-9)
	assert.InDelta(t, 110, res.Ledger.Holdings["BTC-USDT"].LastPrice, 1e-9)
	assert.InDelta(t, 1020, res.FinalEquity, 1e-9)
	assert.Greater(t, res.Metrics.MaxDrawdown, 0.0)
}

func TestEngineRejectsSuspendedAndRecordsFills(t *testing.T) {
	var events []FillEvent
	recorder := RecorderFunc(func(_ context.Context, ev FillEvent) error {
		events = append(events, ev)
		return nil
	})
	strategy := NewScheduledStrategy([]ScheduledOrder{
		{Time: day(2), Symbol: "ETH-USDT", Direction: order.DirectionBuy, Amount: 1},
		{Time: day(2), Symbol: "DOGE-USDT", Direction: order.DirectionBuy, Amount: 1},
		{Time: day(3), Symbol: "BTC-USDT", Direction: order.DirectionBuy, Amount: 1},
	})

	res, err := newTestEngine(t, window(), strategy, recorder).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rejected)
	assert.Equal(t, 1, res.Trades)
	require.Len(t, events, 3)
	assert.True(t, events[0].Result.Rejected())
	assert.Equal(t, order.StatusRejected, events[0].Order.Status)
	assert.Equal(t, day(3), events[2].Time)
	assert.Equal(t, order.StatusSettled, events[2].Order.Status)
	assert.Equal(t, 110.0, events[2].Result.TradePrice)
}

func TestEngineUpstreamErrorPolicy(t *testing.T) {
	orders := []ScheduledOrder{
		{Time: day(1), Symbol: "ETH-USDT", Direction: order.DirectionBuy, Amount: 1},
		{Time: day(1), Symbol: "BTC-USDT", Direction: order.DirectionBuy, Amount: 1},
	}

	_, err := newTestEngine(t, window(), NewScheduledStrategy(orders), nil).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, exchange.ErrUpstreamData)

	cfg := window()
	cfg.SkipOnError = true
	res, err := newTestEngine(t, cfg, NewScheduledStrategy(orders), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Trades)
}

func TestEngineConfigurationErrorAlwaysHalts(t *testing.T) {
	reused := order.New("BTC-USDT", 1, order.DirectionBuy, time.Time{}, time.Time{})
	strategy := StrategyFunc(func(_ context.Context, step Step) ([]*order.Order, error) {
		return []*order.Order{reused}, nil
	})
	cfg := window()
	cfg.SkipOnError = true

	_, err := newTestEngine(t, cfg, strategy, nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, exchange.IsConfigurationError(err))
}

func TestEngineStrategySeesHoldings(t *testing.T) {
	var seen []float64
	strategy := StrategyFunc(func(_ context.Context, step Step) ([]*order.Order, error) {
		seen = append(seen, step.Holdings.Amount("BTC-USDT"))
		if step.Index == 0 {
			return []*order.Order{order.New("BTC-USDT", 1, order.DirectionBuy, time.Time{}, time.Time{})}, nil
		}
		return nil, nil
	})

	_, err := newTestEngine(t, window(), strategy, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 1, 1}, seen)
}

func TestEngineCalendarOverCapIsConfigurationError(t *testing.T) {
	cfg := window()
	cfg.Start = day(0).AddDate(-1, 0, 0)
	cfg.Freq = "1s"
	engine := newTestEngine(t, cfg, StrategyFunc(func(context.Context, Step) ([]*order.Order, error) {
		return nil, nil
	}), nil)

	_, err := engine.Run(context.Background())
	assert.ErrorIs(t, err, exchange.ErrConfiguration)
	assert.ErrorIs(t, err, calendar.ErrTooManySteps)
}

func TestEngineWarnsOnUnfiredSchedule(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m := testMatcher(t)
	ex, err := exchange.New(m, exchange.Options{}, nil)
	require.NoError(t, err)
	strategy := NewScheduledStrategy([]ScheduledOrder{
		{Time: day(1), Symbol: "BTC-USDT", Direction: order.DirectionBuy, Amount: 1},
		{Time: day(10), Symbol: "BTC-USDT", Direction: order.DirectionSell, Amount: 1},
	})
	engine, err := NewEngine(window(), ex, m, strategy, nil, zap.New(core))
	require.NoError(t, err)

	_, err = engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, strategy.Remaining())
	entries := logs.FilterField(zap.Int("remaining", 1)).All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
}

func TestEngineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestEngine(t, window(), NewScheduledStrategy(nil), nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEngineValidation(t *testing.T) {
	m := testMatcher(t)
	ex, err := exchange.New(m, exchange.Options{}, nil)
	require.NoError(t, err)
	s := NewScheduledStrategy(nil)

	_, err = NewEngine(window(), nil, m, s, nil, nil)
	assert.Error(t, err)
	_, err = NewEngine(window(), ex, nil, s, nil, nil)
	assert.Error(t, err)
	_, err = NewEngine(window(), ex, m, nil, nil, nil)
	assert.Error(t, err)

	_, err = NewEngine(Config{Start: day(3), End: day(0)}, ex, m, s, nil, nil)
	assert.Error(t, err)
	_, err = NewEngine(Config{}, ex, m, s, nil, nil)
	assert.Error(t, err)

	cfg := window()
	cfg.Freq = "1M"
	_, err = NewEngine(cfg, ex, m, s, nil, nil)
	assert.Error(t, err)

	cfg = window()
	cfg.Ledger = "margin"
	_, err = NewEngine(cfg, ex, m, s, nil, nil)
	assert.Error(t, err)
}

func TestParseSchedule(t *testing.T) {
	doc := `
orders:
  - time: 2024-01-03
    symbol: ETH-USDT
    direction: sell
    amount: 2
  - time: "2024-01-01T00:00:00Z"
    symbol: BTC-USDT
    direction: buy
    amount: 0.5
`
	schedule, err := ParseSchedule(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, schedule, 2)
	assert.Equal(t, "BTC-USDT", schedule[0].Symbol)
	assert.Equal(t, day(0), schedule[0].Time)
	assert.Equal(t, order.DirectionSell, schedule[1].Direction)

	s := NewScheduledStrategy(schedule)
	assert.Equal(t, []string{"BTC-USDT", "ETH-USDT"}, s.Symbols())

	got, err := s.Orders(context.Background(), Step{Time: day(1)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, day(1), got[0].Start)
	assert.Equal(t, day(1), got[0].End)

	got, err = s.Orders(context.Background(), Step{Time: day(5)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].Amount)
}

func TestParseScheduleAggregatesErrors(t *testing.T) {
	doc := `
orders:
  - time: yesterday
    symbol: BTC-USDT
    direction: buy
  - time: 2024-01-01
    direction: buy
  - time: 2024-01-01
    symbol: BTC-USDT
    direction: sideways
`
	_, err := ParseSchedule(strings.NewReader(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orders[0].time")
	assert.Contains(t, err.Error(), "orders[1].symbol")
	assert.Contains(t, err.Error(), "orders[2].direction")
}

func TestParseScheduleEmpty(t *testing.T) {
	schedule, err := ParseSchedule(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, schedule)
}
