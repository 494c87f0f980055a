package cost

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-backtest/internal/order"
)

func TestPercentageFee(t *testing.T) {
	rates := []float64{0, 0.0004, 0.001, 0.25, 1}
	prices := []float64{0, 1, 120, 43210.5}
	amounts := []float64{0, 1, -1, 0.25, -3.5}

	for _, r := range rates {
		m, err := NewPercentageFee(r)
		require.NoError(t, err)
		for _, p := range prices {
			for _, a := range amounts {
				assert.Equal(t, math.Abs(a)*p*r, m.Fee(a, p), "rate=%v price=%v amount=%v", r, p, a)
			}
			assert.Equal(t, 0.0, m.Fee(0, p))
		}
	}
}

func TestPercentageFeeSignIgnored(t *testing.T) {
	m := PercentageFee{Rate: 0.001}
	assert.Equal(t, m.Fee(2, 100), m.Fee(-2, 100))
}

func TestNewPercentageFeeRejectsInvalidRate(t *testing.T) {
	for _, r := range []float64{-0.1, 1.5, math.NaN()} {
		_, err := NewPercentageFee(r)
		assert.ErrorIs(t, err, ErrInvalidRate, "rate=%v", r)
	}
}

func TestLinearSlippage(t *testing.T) {
	for _, r := range []float64{0, 0.001, 0.01, 0.5, 1} {
		m, err := NewLinearSlippage(r)
		require.NoError(t, err)
		for _, p := range []float64{0, 1, 120, 98765.4321} {
			assert.Equal(t, p*(1+r), m.TradePrice(p, order.DirectionBuy))
			assert.Equal(t, p*(1-r), m.TradePrice(p, order.DirectionSell))
			assert.Equal(t, p, m.TradePrice(p, order.DirectionHold))
			assert.Equal(t, p, m.TradePrice(p, ""))
		}
	}
}

func TestLinearSlippageZeroRatePassesThrough(t *testing.T) {
	var m LinearSlippage
	assert.Equal(t, 120.0, m.TradePrice(120, order.DirectionBuy))
	assert.Equal(t, 120.0, m.TradePrice(120, order.DirectionSell))
}

func TestNewLinearSlippageRejectsInvalidRate(t *testing.T) {
	for _, r := range []float64{-0.01, 1.0001, 1.5, 2, math.NaN(), math.Inf(1)} {
		_, err := NewLinearSlippage(r)
		assert.ErrorIs(t, err, ErrInvalidRate, "rate=%v", r)
	}
}
