package app

import (
	"context"

	"crypto-backtest/internal/backtest"
	"crypto-backtest/internal/journal"
)

// journalRecorder 将撮合结果写入指定运行的成交流水。
type journalRecorder struct {
	svc   *journal.Service
	runID string
}

func (r journalRecorder) RecordFill(ctx context.Context, ev backtest.FillEvent) error {
	o := ev.Order
	_, err := r.svc.RecordFill(ctx, journal.Fill{
		RunID:      r.runID,
		Timestamp:  ev.Time,
		Symbol:     o.Symbol,
		Direction:  string(o.Direction),
		Amount:     o.Amount,
		DealAmount: o.DealAmount,
		TradePrice: ev.Result.TradePrice,
		TradeValue: ev.Result.TradeValue,
		TradeCost:  ev.Result.TradeCost,
		Status:     string(o.Status),
	})
	return err
}

var _ backtest.Recorder = journalRecorder{}
