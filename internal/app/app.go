// Package app 组装配置、行情、撮合与流水，驱动一次完整回测。
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"crypto-backtest/internal/backtest"
	"crypto-backtest/internal/calendar"
	"crypto-backtest/internal/config"
	"crypto-backtest/internal/cost"
	"crypto-backtest/internal/exchange"
	"crypto-backtest/internal/indicator"
	"crypto-backtest/internal/instrument"
	"crypto-backtest/internal/journal"
	"crypto-backtest/internal/marketdata"
	"crypto-backtest/internal/quote"
	"crypto-backtest/internal/store"
)

// App 聚合核心依赖。
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *store.Store
	journal *journal.Service
	cache   *instrument.Cache
}

// Report 为一次回测运行的结果。
type Report struct {
	RunID  string
	Result backtest.Result
}

// New 创建 App 实例，store 为空时不记录流水。
func New(cfg *config.Config, logger *zap.Logger, st *store.Store) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: 配置不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		store:  st,
		cache:  instrument.NewCache(),
	}
	if st != nil {
		svc, err := journal.NewService(st, logger.Named("journal"))
		if err != nil {
			return nil, err
		}
		a.journal = svc
	}
	return a, nil
}

// Journal 返回流水服务，未配置数据库时为 nil。
func (a *App) Journal() *journal.Service {
	return a.journal
}

// Calendar 生成配置窗口内的交易日历。
func (a *App) Calendar() ([]time.Time, error) {
	start, end, err := a.window()
	if err != nil {
		return nil, err
	}
	return calendar.Generate(start, end, a.cfg.Backtest.Freq)
}

// QuoteCalendar 以本地行情的实际时间戳构建日历，只覆盖有数据的时点，仅支持日频。
// symbols 为空时使用标的列表。
func (a *App) QuoteCalendar(ctx context.Context, symbols []string) ([]time.Time, error) {
	start, end, err := a.window()
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		if symbols, err = a.Instruments(ctx, nil); err != nil {
			return nil, fmt.Errorf("app: 获取标的列表失败: %w", err)
		}
	}
	quotes, err := quote.NewCSVProvider(a.cfg.Data.Dir, a.logger.Named("quote"))
	if err != nil {
		return nil, err
	}
	table, err := quotes.Features(ctx, symbols, quote.DefaultFields, start, end, a.cfg.Backtest.Freq)
	if err != nil {
		return nil, err
	}
	return calendar.FromTimestamps(table.Timestamps()).Load(a.cfg.Backtest.Freq)
}

// Instruments 从配置的来源列出标的，symbols 非空时取交集。
func (a *App) Instruments(ctx context.Context, symbols []string) ([]string, error) {
	provider, err := a.instrumentProvider()
	if err != nil {
		return nil, err
	}
	start, end, err := a.window()
	if err != nil {
		return nil, err
	}
	return provider.List(ctx, instrument.Criteria{
		Market:  a.cfg.Instruments.Market,
		Start:   start,
		End:     end,
		Freq:    a.cfg.Backtest.Freq,
		Symbols: symbols,
	})
}

func (a *App) instrumentProvider() (*instrument.Provider, error) {
	opts := instrument.LoaderOptions{
		HTTPTimeout: a.cfg.Instruments.Timeout,
		Symbols:     a.cfg.Instruments.Symbols,
	}
	if strings.EqualFold(strings.TrimSpace(a.cfg.Instruments.Source), instrument.SourceCCXT) {
		client, err := marketdata.NewClient(a.cfg.Exchange, a.logger.Named("marketdata"))
		if err != nil {
			return nil, err
		}
		opts.Volumes = marketdata.NewVolumeService(client, a.logger.Named("marketdata"))
	}

	loader, err := instrument.NewLoader(a.cfg.Instruments.Source, opts)
	if err != nil {
		return nil, err
	}
	return instrument.NewProvider(loader, a.cache, a.cfg.Instruments.MinVolume, a.logger.Named("instrument"))
}

// RunBacktest 回放订单文件并返回回测结果。配置了数据库时登记运行与成交流水。
func (a *App) RunBacktest(ctx context.Context) (Report, error) {
	btCfg, err := backtest.ConfigFrom(a.cfg.Backtest)
	if err != nil {
		return Report{}, fmt.Errorf("app: 解析回测窗口失败: %w", err)
	}
	kind := strings.ToLower(a.cfg.Backtest.Strategy)
	if kind == "" {
		kind = config.StrategySchedule
	}
	if kind != config.StrategySchedule && kind != config.StrategyMACross {
		return Report{}, fmt.Errorf("app: 未知策略 %q", a.cfg.Backtest.Strategy)
	}

	var (
		schedule *backtest.ScheduledStrategy
		symbols  []string
	)
	if kind == config.StrategySchedule {
		if a.cfg.Backtest.OrdersFile == "" {
			return Report{}, errors.New("app: backtest.orders_file 不能为空")
		}
		orders, err := backtest.LoadSchedule(a.cfg.Backtest.OrdersFile)
		if err != nil {
			return Report{}, err
		}
		schedule = backtest.NewScheduledStrategy(orders)
		symbols = schedule.Symbols()
	}

	codes, err := a.Instruments(ctx, symbols)
	if err != nil {
		return Report{}, fmt.Errorf("app: 获取标的列表失败: %w", err)
	}
	a.logger.Info("标的已确定", zap.Strings("codes", codes), zap.String("strategy", kind))

	ex, matcher, err := a.newExchange(ctx, codes, btCfg)
	if err != nil {
		return Report{}, err
	}

	var strategy backtest.Strategy
	if schedule != nil {
		strategy = schedule
	} else if strategy, err = a.newCrossStrategy(matcher); err != nil {
		return Report{}, err
	}

	var (
		runID    string
		recorder backtest.Recorder
	)
	if a.journal != nil {
		runID, err = a.journal.StartRun(ctx, a.cfg.Backtest.RunName, runParams{
			Backtest: a.cfg.Backtest,
			Cost:     a.cfg.Cost,
			Codes:    codes,
		})
		if err != nil {
			return Report{}, err
		}
		recorder = journalRecorder{svc: a.journal, runID: runID}
	}

	engine, err := backtest.NewEngine(btCfg, ex, matcher, strategy, recorder, a.logger.Named("backtest"))
	if err != nil {
		a.finishRun(runID, journal.RunFailed, map[string]string{"error": err.Error()})
		return Report{}, err
	}

	result, err := engine.Run(ctx)
	if err != nil {
		a.finishRun(runID, journal.RunFailed, map[string]string{"error": err.Error()})
		return Report{RunID: runID}, err
	}
	a.finishRun(runID, journal.RunFinished, summaryOf(result))

	return Report{RunID: runID, Result: result}, nil
}

func (a *App) newCrossStrategy(prices backtest.PriceSource) (backtest.Strategy, error) {
	mc := a.cfg.Backtest.MACross
	calc, err := indicator.NewCalculator(mc.Kind, mc.Fast, mc.Slow)
	if err != nil {
		return nil, err
	}
	return backtest.NewCrossStrategy(prices, calc, mc.Fraction, a.logger.Named("strategy"))
}

func (a *App) newExchange(ctx context.Context, codes []string, btCfg backtest.Config) (*exchange.Exchange, *exchange.QuoteMatcher, error) {
	quotes, err := quote.NewCSVProvider(a.cfg.Data.Dir, a.logger.Named("quote"))
	if err != nil {
		return nil, nil, err
	}
	matcher, err := exchange.NewQuoteMatcher(ctx, quotes, codes, btCfg.Start, btCfg.End, btCfg.Freq,
		a.cfg.Backtest.DealPrice, a.logger.Named("matcher"))
	if err != nil {
		return nil, nil, err
	}

	fee, err := cost.NewPercentageFee(a.cfg.Cost.FeeRate)
	if err != nil {
		return nil, nil, err
	}
	slippage, err := cost.NewLinearSlippage(a.cfg.Cost.SlippageRate)
	if err != nil {
		return nil, nil, err
	}

	ex, err := exchange.New(matcher, exchange.Options{FeeModel: fee, SlippageModel: slippage}, a.logger.Named("exchange"))
	if err != nil {
		return nil, nil, err
	}
	return ex, matcher, nil
}

// finishRun 使用独立上下文，确保运行被取消时仍能落下最终状态。
func (a *App) finishRun(runID string, status journal.RunStatus, summary interface{}) {
	if a.journal == nil || runID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.journal.FinishRun(ctx, runID, status, summary); err != nil {
		a.logger.Warn("更新运行状态失败", zap.String("run_id", runID), zap.Error(err))
	}
}

func (a *App) window() (time.Time, time.Time, error) {
	start, err := a.cfg.Backtest.StartTime()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := a.cfg.Backtest.EndTime()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

type runParams struct {
	Backtest config.BacktestConfig `json:"backtest"`
	Cost     config.CostConfig     `json:"cost"`
	Codes    []string              `json:"codes"`
}

type runSummary struct {
	Metrics     backtest.Metrics `json:"metrics"`
	Trades      int              `json:"trades"`
	Rejected    int              `json:"rejected"`
	Errors      int              `json:"errors"`
	FinalEquity float64          `json:"final_equity"`
	Turnover    float64          `json:"turnover"`
	TotalCost   float64          `json:"total_cost"`
}

func summaryOf(r backtest.Result) runSummary {
	return runSummary{
		Metrics:     r.Metrics,
		Trades:      r.Trades,
		Rejected:    r.Rejected,
		Errors:      r.Errors,
		FinalEquity: r.FinalEquity,
		Turnover:    r.Ledger.Turnover,
		TotalCost:   r.Ledger.Cost,
	}
}
