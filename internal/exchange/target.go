package exchange

import (
	"fmt"

	"crypto-backtest/internal/ledger"
)

// Target 指定成交落账的唯一账本，只能由本包内的类型实现。
type Target interface {
	resolve() (ledger.Ledger, ledger.Holdings, error)
}

// AccountTarget 将成交记入账户。
type AccountTarget struct {
	Account *ledger.Account
}

func (t AccountTarget) resolve() (ledger.Ledger, ledger.Holdings, error) {
	if t.Account == nil {
		return nil, nil, fmt.Errorf("%w: 账户为空", ErrConfiguration)
	}
	return t.Account, t.Account, nil
}

// PositionTarget 将成交记入持仓账本。
type PositionTarget struct {
	Position *ledger.Position
}

func (t PositionTarget) resolve() (ledger.Ledger, ledger.Holdings, error) {
	if t.Position == nil {
		return nil, nil, fmt.Errorf("%w: 持仓账本为空", ErrConfiguration)
	}
	return t.Position, t.Position, nil
}

// TargetOf 从两个可空参数中选出唯一的账本，同时给出或都为空时返回配置错误。
func TargetOf(account *ledger.Account, position *ledger.Position) (Target, error) {
	switch {
	case account != nil && position != nil:
		return nil, fmt.Errorf("%w: account 与 position 不能同时指定", ErrConfiguration)
	case account != nil:
		return AccountTarget{Account: account}, nil
	case position != nil:
		return PositionTarget{Position: position}, nil
	default:
		return nil, fmt.Errorf("%w: 必须指定 account 或 position", ErrConfiguration)
	}
}
