package ledger

import (
	"crypto-backtest/internal/order"
)

// Account 在持仓账本之上累计成交额、费用与成交笔数。
type Account struct {
	position *Position
	turnover float64
	cost     float64
	trades   int
}

// NewAccount 以初始现金创建账户。
func NewAccount(cash float64) *Account {
	return &Account{position: NewPosition(cash)}
}

// Symbols 返回有持仓的标的，按代码排序。
func (a *Account) Symbols() []string {
	return a.position.Symbols()
}

// Cash 返回当前现金。
func (a *Account) Cash() float64 {
	return a.position.Cash()
}

// Amount 返回标的持仓数量。
func (a *Account) Amount(symbol string) float64 {
	return a.position.Amount(symbol)
}

// UpdateOrder 先落账到持仓，成功后再累计统计。
func (a *Account) UpdateOrder(o *order.Order, tradeVal, cost, tradePrice float64) error {
	if err := a.position.UpdateOrder(o, tradeVal, cost, tradePrice); err != nil {
		return err
	}
	a.turnover += tradeVal
	a.cost += cost
	a.trades++
	return nil
}

// MarkPrices 更新持仓参考价。
func (a *Account) MarkPrices(prices map[string]float64) {
	a.position.MarkPrices(prices)
}

// Value 返回账户总权益。
func (a *Account) Value(prices map[string]float64) float64 {
	return a.position.Value(prices)
}

func (a *Account) Turnover() float64 { return a.turnover }

func (a *Account) TotalCost() float64 { return a.cost }

func (a *Account) TradeCount() int { return a.trades }

// Snapshot 返回包含统计信息的深拷贝。
func (a *Account) Snapshot() Snapshot {
	snap := a.position.Snapshot()
	snap.Turnover = a.turnover
	snap.Cost = a.cost
	snap.Trades = a.trades
	return snap
}

var (
	_ Ledger   = (*Account)(nil)
	_ Holdings = (*Account)(nil)
)
