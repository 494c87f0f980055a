package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-backtest/internal/exchange"
	"crypto-backtest/internal/indicator"
	"crypto-backtest/internal/quote"
)

func TestCrossStrategyTradesOnSignals(t *testing.T) {
	tbl := quote.NewTable()
	for i, px := range []float64{3, 2, 1, 2, 3, 2, 1} {
		tbl.Add("BTC-USDT", quote.Quote{Timestamp: day(i), Close: px, Factor: 1})
	}
	m, err := exchange.NewTableMatcher(tbl, "close", nil)
	require.NoError(t, err)
	ex, err := exchange.New(m, exchange.Options{}, nil)
	require.NoError(t, err)

	calc, err := indicator.NewCalculator("sma", 2, 3)
	require.NoError(t, err)
	strategy, err := NewCrossStrategy(m, calc, 0.5, nil)
	require.NoError(t, err)

	var events []FillEvent
	recorder := RecorderFunc(func(_ context.Context, ev FillEvent) error {
		events = append(events, ev)
		return nil
	})

	cfg := Config{Start: day(0), End: day(6), Freq: "day", InitialCash: 1000}
	engine, err := NewEngine(cfg, ex, m, strategy, recorder, nil)
	require.NoError(t, err)

	res, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, day(4), events[0].Time)
	assert.InDelta(t, 500.0/3, events[0].Order.DealAmount, 1e-9)
	assert.Equal(t, day(6), events[1].Time)
	assert.Equal(t, 2, res.Trades)
	assert.Empty(t, res.Ledger.Holdings)
	assert.InDelta(t, 500+500.0/3, res.FinalEquity, 1e-9)
}

func TestNewCrossStrategyValidation(t *testing.T) {
	m := testMatcher(t)
	calc, err := indicator.NewCalculator("sma", 2, 3)
	require.NoError(t, err)

	_, err = NewCrossStrategy(nil, calc, 0.5, nil)
	assert.Error(t, err)
	_, err = NewCrossStrategy(m, nil, 0.5, nil)
	assert.Error(t, err)
	_, err = NewCrossStrategy(m, calc, 1.5, nil)
	assert.Error(t, err)
}
