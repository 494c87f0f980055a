// Package journal 将回测运行与成交记录持久化到 SQLite。
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"crypto-backtest/internal/id"
	"crypto-backtest/internal/store"
)

// ErrRunNotFound 表示运行记录不存在。
var ErrRunNotFound = errors.New("journal: 运行记录不存在")

const timeLayout = time.RFC3339Nano

// Service 负责写入与查询回测流水。
type Service struct {
	store  *store.Store
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化流水服务，创建所需表结构。
func NewService(st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("journal: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:  st,
		db:     st.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	params TEXT,
	summary TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT
);
CREATE TABLE IF NOT EXISTS trade_fills (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
	ts TEXT NOT NULL,
	symbol TEXT NOT NULL,
	direction TEXT NOT NULL,
	amount REAL NOT NULL,
	deal_amount REAL NOT NULL,
	trade_price REAL,
	trade_value REAL NOT NULL,
	trade_cost REAL NOT NULL,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_fills_run ON trade_fills(run_id, id);
CREATE INDEX IF NOT EXISTS idx_trade_fills_symbol ON trade_fills(symbol);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("journal: 初始化表失败: %w", err)
	}
	return nil
}

// StartRun 创建运行记录并返回其 ID。
func (s *Service) StartRun(ctx context.Context, name string, params interface{}) (string, error) {
	raw, err := marshalOptional(params)
	if err != nil {
		return "", fmt.Errorf("journal: 序列化运行参数失败: %w", err)
	}

	now := time.Now().UTC()
	runID := id.At(now)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO backtest_runs (id, name, status, params, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, name, string(RunRunning), raw, now.Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("journal: 写入运行记录失败: %w", err)
	}

	s.logger.Info("回测运行已登记", zap.String("run_id", runID), zap.String("name", name))
	return runID, nil
}

// RecordFill 写入单笔成交记录，ID 为空时自动生成。
func (s *Service) RecordFill(ctx context.Context, f Fill) (string, error) {
	if f.RunID == "" {
		return "", fmt.Errorf("journal: run_id 不能为空")
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	if f.ID == "" {
		f.ID = id.New()
	}

	var price sql.NullFloat64
	if !math.IsNaN(f.TradePrice) {
		price = sql.NullFloat64{Float64: f.TradePrice, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trade_fills (id, run_id, ts, symbol, direction, amount, deal_amount, trade_price, trade_value, trade_cost, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.RunID, f.Timestamp.UTC().Format(timeLayout), f.Symbol, f.Direction,
		f.Amount, f.DealAmount, price, f.TradeValue, f.TradeCost, f.Status,
	)
	if err != nil {
		return "", fmt.Errorf("journal: 写入成交记录失败: %w", err)
	}
	return f.ID, nil
}

// FinishRun 更新运行状态与汇总结果。
func (s *Service) FinishRun(ctx context.Context, runID string, status RunStatus, summary interface{}) error {
	raw, err := marshalOptional(summary)
	if err != nil {
		return fmt.Errorf("journal: 序列化运行汇总失败: %w", err)
	}

	return s.store.WithTx(ctx, func(tx *sql.Tx) error {
		var current string
		if err := tx.QueryRowContext(ctx, `SELECT status FROM backtest_runs WHERE id = ?`, runID).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
			}
			return fmt.Errorf("journal: 查询运行记录失败: %w", err)
		}
		if RunStatus(current) != RunRunning {
			return fmt.Errorf("journal: 运行 %s 已结束 (%s)", runID, current)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE backtest_runs SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
			string(status), raw, time.Now().UTC().Format(timeLayout), runID,
		); err != nil {
			return fmt.Errorf("journal: 更新运行记录失败: %w", err)
		}
		return nil
	})
}

// GetRun 读取单个运行记录。
func (s *Service) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, params, summary, started_at, finished_at FROM backtest_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// LatestRun 返回最近一次运行。
func (s *Service) LatestRun(ctx context.Context) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, params, summary, started_at, finished_at FROM backtest_runs ORDER BY id DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return run, err
}

// ListFills 按写入顺序检索成交记录。
func (s *Service) ListFills(ctx context.Context, q FillQuery) ([]Fill, error) {
	if q.Limit <= 0 {
		q.Limit = 1000
	}

	query := `SELECT id, run_id, ts, symbol, direction, amount, deal_amount, trade_price, trade_value, trade_cost, status FROM trade_fills WHERE 1=1`
	args := make([]interface{}, 0, 3)
	if q.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, q.RunID)
	}
	if q.Symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, q.Symbol)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询成交记录失败: %w", err)
	}
	defer rows.Close()

	fills := make([]Fill, 0)
	for rows.Next() {
		var (
			f     Fill
			ts    string
			price sql.NullFloat64
		)
		if err := rows.Scan(&f.ID, &f.RunID, &ts, &f.Symbol, &f.Direction, &f.Amount, &f.DealAmount,
			&price, &f.TradeValue, &f.TradeCost, &f.Status); err != nil {
			return nil, fmt.Errorf("journal: 解析成交记录失败: %w", err)
		}
		f.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("journal: 解析成交时间失败: %w", err)
		}
		f.TradePrice = math.NaN()
		if price.Valid {
			f.TradePrice = price.Float64
		}
		fills = append(fills, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取成交记录失败: %w", err)
	}

	return fills, nil
}

func scanRun(row *sql.Row) (Run, error) {
	var (
		run             Run
		status          string
		params, summary sql.NullString
		started         string
		finished        sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Name, &status, &params, &summary, &started, &finished); err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	if params.Valid {
		run.Params = json.RawMessage(params.String)
	}
	if summary.Valid {
		run.Summary = json.RawMessage(summary.String)
	}
	ts, err := time.Parse(timeLayout, started)
	if err != nil {
		return Run{}, fmt.Errorf("journal: 解析运行时间失败: %w", err)
	}
	run.StartedAt = ts
	if finished.Valid {
		if ts, err := time.Parse(timeLayout, finished.String); err == nil {
			run.FinishedAt = ts
		}
	}
	return run, nil
}

func marshalOptional(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
