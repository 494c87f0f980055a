// Package ledger 维护回测中的现金与持仓，每笔成交通过 UpdateOrder 一次性落账。
//
// Position 与 Account 均不是并发安全的，同一账本只能有一个写入者。
package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"crypto-backtest/internal/order"
)

const amountEpsilon = 1e-12

var (
	// ErrInsufficientHoldings 表示卖出数量超过持仓。
	ErrInsufficientHoldings = errors.New("ledger: 持仓不足")
	// ErrUnsupportedDirection 表示账本无法处理的订单方向（如中性方向）。
	ErrUnsupportedDirection = errors.New("ledger: 不支持的订单方向")
	// ErrInvalidTrade 表示成交数据非法。
	ErrInvalidTrade = errors.New("ledger: 成交数据非法")
)

// Ledger 为成交落账的唯一入口。
type Ledger interface {
	UpdateOrder(o *order.Order, tradeVal, cost, tradePrice float64) error
}

// Holdings 为撮合器提供的只读持仓视图。
type Holdings interface {
	Cash() float64
	Amount(symbol string) float64
}

// Holding 为单个标的的持仓。
type Holding struct {
	Amount    float64 `json:"amount"`
	LastPrice float64 `json:"last_price"`
}

// Snapshot 为账本状态的深拷贝。
type Snapshot struct {
	Cash     float64            `json:"cash"`
	Holdings map[string]Holding `json:"holdings"`
	Turnover float64            `json:"turnover"`
	Cost     float64            `json:"cost"`
	Trades   int                `json:"trades"`
}

// Position 记录现金及各标的持仓。
type Position struct {
	cash     float64
	holdings map[string]Holding
}

// NewPosition 以初始现金创建持仓账本。
func NewPosition(cash float64) *Position {
	return &Position{
		cash:     cash,
		holdings: make(map[string]Holding),
	}
}

// Cash 返回当前现金。
func (p *Position) Cash() float64 {
	return p.cash
}

// Amount 返回标的持仓数量。
func (p *Position) Amount(symbol string) float64 {
	return p.holdings[symbol].Amount
}

// Symbols 返回有持仓的标的，按代码排序。
func (p *Position) Symbols() []string {
	out := make([]string, 0, len(p.holdings))
	for sym := range p.holdings {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// UpdateOrder 按成交结果调整现金与持仓，校验失败时账本保持不变。
func (p *Position) UpdateOrder(o *order.Order, tradeVal, cost, tradePrice float64) error {
	if err := validateTrade(o, tradeVal, cost, tradePrice); err != nil {
		return err
	}

	sign := o.Direction.Sign()
	if sign == 0 {
		return fmt.Errorf("%w: %q", ErrUnsupportedDirection, o.Direction)
	}

	current := p.holdings[o.Symbol]
	if sign < 0 && o.DealAmount > current.Amount+amountEpsilon {
		return fmt.Errorf("%w: %s 持有 %v，卖出 %v", ErrInsufficientHoldings, o.Symbol, current.Amount, o.DealAmount)
	}
	p.cash -= sign*tradeVal + cost
	current.Amount += sign * o.DealAmount

	if math.Abs(current.Amount) <= amountEpsilon {
		delete(p.holdings, o.Symbol)
		return nil
	}
	current.LastPrice = tradePrice
	p.holdings[o.Symbol] = current
	return nil
}

// MarkPrices 用最新价格更新持仓的参考价，非正或 NaN 价格被忽略。
func (p *Position) MarkPrices(prices map[string]float64) {
	for sym, h := range p.holdings {
		if px, ok := prices[sym]; ok && px > 0 && !math.IsNaN(px) {
			h.LastPrice = px
			p.holdings[sym] = h
		}
	}
}

// Value 返回现金加持仓市值，缺失的价格使用持仓参考价。
func (p *Position) Value(prices map[string]float64) float64 {
	total := p.cash
	for sym, h := range p.holdings {
		px := h.LastPrice
		if v, ok := prices[sym]; ok && v > 0 && !math.IsNaN(v) {
			px = v
		}
		total += h.Amount * px
	}
	return total
}

// Snapshot 返回当前状态的深拷贝。
func (p *Position) Snapshot() Snapshot {
	holdings := make(map[string]Holding, len(p.holdings))
	for sym, h := range p.holdings {
		holdings[sym] = h
	}
	return Snapshot{Cash: p.cash, Holdings: holdings}
}

func validateTrade(o *order.Order, tradeVal, cost, tradePrice float64) error {
	if o == nil {
		return fmt.Errorf("%w: 订单为空", ErrInvalidTrade)
	}
	if o.Symbol == "" {
		return fmt.Errorf("%w: 标的为空", ErrInvalidTrade)
	}
	if !o.Dealt() {
		return fmt.Errorf("%w: %s 订单尚未成交，状态 %s", ErrInvalidTrade, o.Symbol, o.Status)
	}
	for name, v := range map[string]float64{
		"deal_amount": o.DealAmount,
		"trade_val":   tradeVal,
		"cost":        cost,
		"trade_price": tradePrice,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidTrade, name, v)
		}
	}
	return nil
}

var (
	_ Ledger   = (*Position)(nil)
	_ Holdings = (*Position)(nil)
)
