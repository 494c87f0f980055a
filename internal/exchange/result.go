package exchange

import "math"

// Result 为一次撮合的结果。
type Result struct {
	TradeValue float64 `json:"trade_value"`
	TradeCost  float64 `json:"trade_cost"`
	TradePrice float64 `json:"trade_price"`
}

// RejectedResult 返回拒单结果 (0, 0, NaN)。
func RejectedResult() Result {
	return Result{TradePrice: math.NaN()}
}

// Rejected 以 NaN 价格判断订单是否被拒绝。
func (r Result) Rejected() bool {
	return math.IsNaN(r.TradePrice)
}
