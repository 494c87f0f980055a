package app

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"crypto-backtest/internal/journal"
)

const maxFillLimit = 1000

// fillView 将拒单的 NaN 价格输出为 null。
type fillView struct {
	journal.Fill
	TradePrice *float64 `json:"trade_price"`
}

func newJournalHandler(svc *journal.Service, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/runs/", func(w http.ResponseWriter, r *http.Request) {
		runID := strings.TrimPrefix(r.URL.Path, "/runs/")
		var (
			run journal.Run
			err error
		)
		if runID == "" || runID == "latest" {
			run, err = svc.LatestRun(r.Context())
		} else {
			run, err = svc.GetRun(r.Context(), runID)
		}
		if errors.Is(err, journal.ErrRunNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, run, logger)
	})

	mux.HandleFunc("/fills", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 200
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				limit = min(v, maxFillLimit)
			}
		}

		fills, err := svc.ListFills(r.Context(), journal.FillQuery{
			RunID:  strings.TrimSpace(q.Get("run_id")),
			Symbol: strings.TrimSpace(q.Get("symbol")),
			Limit:  limit,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		out := make([]fillView, 0, len(fills))
		for _, f := range fills {
			v := fillView{Fill: f}
			if !math.IsNaN(f.TradePrice) {
				price := f.TradePrice
				v.TradePrice = &price
			}
			out = append(out, v)
		}
		writeJSON(w, out, logger)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入查询响应失败", zap.Error(err))
	}
}

// Serve 启动只读流水查询接口，阻塞直到 ctx 结束。
func (a *App) Serve(ctx context.Context) error {
	if a.journal == nil {
		return errors.New("app: 未配置数据库，无法提供流水查询")
	}

	addr := a.cfg.App.HTTPAddr
	srv := &http.Server{
		Addr:              addr,
		Handler:           newJournalHandler(a.journal, a.logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	a.logger.Info("流水查询接口已启动", zap.String("addr", addr))

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("关闭查询接口失败", zap.Error(err))
		return err
	}
	return nil
}
