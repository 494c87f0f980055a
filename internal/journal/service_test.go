package journal

import (
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-backtest/internal/config"
	"crypto-backtest/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.NewSQLite(config.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "journal.db"),
		MaxOpenConns: 2,
		MaxIdleConns: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, nil)
	require.NoError(t, err)
	return svc
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	runID, err := svc.StartRun(ctx, "smoke", map[string]interface{}{"freq": "day"})
	require.NoError(t, err)
	require.Len(t, runID, 26)

	run, err := svc.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, RunRunning, run.Status)
	assert.JSONEq(t, `{"freq":"day"}`, string(run.Params))

	require.NoError(t, svc.FinishRun(ctx, runID, RunFinished, map[string]float64{"total_return": 0.1}))

	run, err = svc.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, RunFinished, run.Status)
	assert.False(t, run.FinishedAt.IsZero())

	var summary map[string]float64
	require.NoError(t, json.Unmarshal(run.Summary, &summary))
	assert.Equal(t, 0.1, summary["total_return"])

	err = svc.FinishRun(ctx, runID, RunFailed, nil)
	assert.ErrorContains(t, err, "已结束")
}

func TestFinishUnknownRun(t *testing.T) {
	svc := newTestService(t)
	err := svc.FinishRun(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ", RunFinished, nil)
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = svc.LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRecordAndListFills(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	runID, err := svc.StartRun(ctx, "fills", nil)
	require.NoError(t, err)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.RecordFill(ctx, Fill{
		RunID: runID, Timestamp: ts, Symbol: "BTC-USDT", Direction: "buy",
		Amount: 1, DealAmount: 1, TradePrice: 121.2, TradeValue: 121.2, TradeCost: 0.1212, Status: "settled",
	})
	require.NoError(t, err)
	_, err = svc.RecordFill(ctx, Fill{
		RunID: runID, Timestamp: ts.Add(time.Hour), Symbol: "ETH-USDT", Direction: "sell",
		Amount: 2, TradePrice: math.NaN(), Status: "rejected",
	})
	require.NoError(t, err)

	fills, err := svc.ListFills(ctx, FillQuery{RunID: runID})
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, "BTC-USDT", fills[0].Symbol)
	assert.Equal(t, ts, fills[0].Timestamp)
	assert.Equal(t, 121.2, fills[0].TradePrice)
	assert.True(t, math.IsNaN(fills[1].TradePrice))
	assert.Equal(t, "rejected", fills[1].Status)

	eth, err := svc.ListFills(ctx, FillQuery{Symbol: "ETH-USDT"})
	require.NoError(t, err)
	assert.Len(t, eth, 1)

	_, err = svc.RecordFill(ctx, Fill{Symbol: "BTC-USDT"})
	assert.Error(t, err)
}

func TestRecordFillRequiresExistingRun(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.RecordFill(context.Background(), Fill{RunID: "missing", Symbol: "BTC-USDT", Direction: "buy", Status: "settled"})
	assert.Error(t, err)
}

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := NewService(nil, nil)
	assert.Error(t, err)
}
