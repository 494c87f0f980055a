package journal

import (
	"encoding/json"
	"time"
)

// RunStatus 表示回测运行状态。
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
)

// Run 为一次回测运行的记录。
type Run struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Status     RunStatus       `json:"status"`
	Params     json.RawMessage `json:"params,omitempty"`
	Summary    json.RawMessage `json:"summary,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitempty"`
}

// Fill 为单笔订单的撮合记录。拒单的 TradePrice 为 NaN。
type Fill struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction"`
	Amount     float64   `json:"amount"`
	DealAmount float64   `json:"deal_amount"`
	TradePrice float64   `json:"trade_price"`
	TradeValue float64   `json:"trade_value"`
	TradeCost  float64   `json:"trade_cost"`
	Status     string    `json:"status"`
}

// FillQuery 为成交查询条件，空字段表示不限。
type FillQuery struct {
	RunID  string
	Symbol string
	Limit  int
}
