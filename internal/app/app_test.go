package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-backtest/internal/calendar"
	"crypto-backtest/internal/config"
	"crypto-backtest/internal/journal"
	"crypto-backtest/internal/store"
)

const ordersYAML = `
orders:
  - time: 2024-01-01
    symbol: BTC-USDT
    direction: buy
    amount: 1
  - time: 2024-01-02
    symbol: ETH-USDT
    direction: buy
    amount: 1
  - time: 2024-01-03
    symbol: BTC-USDT
    direction: sell
    amount: 1
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "quotes", "BTC-USDT.csv"),
		"date,close\n2024-01-01,100\n2024-01-02,110\n2024-01-03,121\n2024-01-04,110\n")
	writeFile(t, filepath.Join(dir, "instruments.json"),
		`[{"symbol":"BTC-USDT","volume":500},{"symbol":"ETH-USDT","volume":50}]`)
	writeFile(t, filepath.Join(dir, "orders.yaml"), ordersYAML)

	return &config.Config{
		App: config.AppConfig{Environment: "test"},
		Backtest: config.BacktestConfig{
			Start:       "2024-01-01",
			End:         "2024-01-04",
			Freq:        "day",
			InitialCash: 1000,
			DealPrice:   "close",
			Ledger:      config.LedgerAccount,
			OrdersFile:  filepath.Join(dir, "orders.yaml"),
			RunName:     "smoke",
		},
		Cost: config.CostConfig{FeeRate: 0.001},
		Instruments: config.InstrumentsConfig{
			Source:    filepath.Join(dir, "instruments.json"),
			Market:    "all",
			MinVolume: 100,
		},
		Data:     config.DataConfig{Dir: filepath.Join(dir, "quotes")},
		Database: config.DatabaseConfig{InMemory: true},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	st, err := store.NewSQLite(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	a, err := New(cfg, nil, st)
	require.NoError(t, err)
	return a
}

func TestRunBacktestEndToEnd(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, testConfig(t))

	report, err := a.RunBacktest(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)

	res := report.Result
	assert.Equal(t, 2, res.Trades)
	assert.Equal(t, 1, res.Rejected)
	assert.InDelta(t, 1020.779, res.FinalEquity, 1e-9)
	assert.InDelta(t, 0.221, res.Ledger.Cost, 1e-9)
	assert.InDelta(t, 221, res.Ledger.Turnover, 1e-9)

	run, err := a.Journal().GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, journal.RunFinished, run.Status)
	assert.Equal(t, "smoke", run.Name)

	var summary runSummary
	require.NoError(t, json.Unmarshal(run.Summary, &summary))
	assert.Equal(t, 2, summary.Trades)
	assert.InDelta(t, 1020.779, summary.FinalEquity, 1e-9)

	fills, err := a.Journal().ListFills(ctx, journal.FillQuery{RunID: report.RunID})
	require.NoError(t, err)
	require.Len(t, fills, 3)
	assert.Equal(t, "settled", fills[0].Status)
	assert.Equal(t, "rejected", fills[1].Status)
	assert.Equal(t, "ETH-USDT", fills[1].Symbol)
	assert.Equal(t, 121.0, fills[2].TradePrice)
}

func TestRunBacktestWithoutStore(t *testing.T) {
	a, err := New(testConfig(t), nil, nil)
	require.NoError(t, err)

	report, err := a.RunBacktest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.RunID)
	assert.Equal(t, 2, report.Result.Trades)
}

func TestRunBacktestRequiresOrdersFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backtest.OrdersFile = ""
	_, err := newTestApp(t, cfg).RunBacktest(context.Background())
	assert.ErrorContains(t, err, "orders_file")
}

func TestRunBacktestMarksFailedRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Backtest.Freq = "1h"
	cfg.Backtest.End = "2024-01-01T03:00:00Z"
	writeFile(t, cfg.Backtest.OrdersFile, `
orders:
  - time: 2024-01-01T02:00:00Z
    symbol: BTC-USDT
    direction: buy
    amount: 1
`)
	writeFile(t, filepath.Join(cfg.Data.Dir, "BTC-USDT.csv"),
		"date,close\n2024-01-01 00:00:00,100\n2024-01-01 02:00:00,nan\n")
	a := newTestApp(t, cfg)

	report, err := a.RunBacktest(ctx)
	require.Error(t, err)
	require.NotEmpty(t, report.RunID)

	run, err := a.Journal().GetRun(ctx, report.RunID)
	require.NoError(t, err)
	assert.Equal(t, journal.RunFailed, run.Status)
	assert.Contains(t, string(run.Summary), "error")
}

func TestInstrumentsAndCalendar(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	codes, err := a.Instruments(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC-USDT"}, codes)

	cal, err := a.Calendar()
	require.NoError(t, err)
	require.Len(t, cal, 4)
	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), cal[3])
}

func TestQuoteCalendarSkipsMissingBars(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, filepath.Join(cfg.Data.Dir, "BTC-USDT.csv"),
		"date,close\n2024-01-01,100\n2024-01-03,121\n2024-01-04,110\n")
	a := newTestApp(t, cfg)

	cal, err := a.QuoteCalendar(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
	}, cal)

	cfg.Backtest.Freq = "1h"
	_, err = a.QuoteCalendar(context.Background(), []string{"BTC-USDT"})
	assert.ErrorIs(t, err, calendar.ErrInvalidFrequency)
}

func TestJournalHandler(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, testConfig(t))
	report, err := a.RunBacktest(ctx)
	require.NoError(t, err)

	srv := httptest.NewServer(newJournalHandler(a.Journal(), a.logger))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs/latest")
	require.NoError(t, err)
	var run journal.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	resp.Body.Close()
	assert.Equal(t, report.RunID, run.ID)

	resp, err = http.Get(srv.URL + "/fills?run_id=" + report.RunID + "&limit=5000")
	require.NoError(t, err)
	var fills []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&fills))
	resp.Body.Close()
	require.Len(t, fills, 3)
	assert.Nil(t, fills[1]["trade_price"])
	assert.Equal(t, 100.0, fills[0]["trade_price"])

	resp, err = http.Get(srv.URL + "/runs/01HZZZZZZZZZZZZZZZZZZZZZZZ")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeRequiresJournal(t *testing.T) {
	a, err := New(testConfig(t), nil, nil)
	require.NoError(t, err)
	assert.Error(t, a.Serve(context.Background()))
}
