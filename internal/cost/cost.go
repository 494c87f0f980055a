package cost

import (
	"errors"
	"fmt"
	"math"

	"crypto-backtest/internal/order"
)

// ErrInvalidRate 表示费率参数非法。
var ErrInvalidRate = errors.New("cost: 费率参数非法")

// FeeModel 根据成交数量与成交价计算手续费。
type FeeModel interface {
	Fee(amount, price float64) float64
}

// SlippageModel 根据方向调整基础成交价。
type SlippageModel interface {
	TradePrice(price float64, dir order.Direction) float64
}

// PercentageFee 按成交名义价值的固定比例收取手续费。
type PercentageFee struct {
	Rate float64
}

// NewPercentageFee 创建比例手续费模型，rate 必须位于 [0,1]。
func NewPercentageFee(rate float64) (PercentageFee, error) {
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return PercentageFee{}, fmt.Errorf("%w: fee_rate=%v 应位于[0,1]", ErrInvalidRate, rate)
	}
	return PercentageFee{Rate: rate}, nil
}

// Fee 返回 |amount| * price * rate，数量符号不影响结果。
func (m PercentageFee) Fee(amount, price float64) float64 {
	return math.Abs(amount) * price * m.Rate
}

// LinearSlippage 对买入上浮、卖出下调固定比例。
type LinearSlippage struct {
	Rate float64
}

// NewLinearSlippage 创建线性滑点模型，rate 必须位于 [0,1]，否则卖出价会变为负数。
func NewLinearSlippage(rate float64) (LinearSlippage, error) {
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return LinearSlippage{}, fmt.Errorf("%w: slippage_rate=%v 应位于[0,1]", ErrInvalidRate, rate)
	}
	return LinearSlippage{Rate: rate}, nil
}

// TradePrice 返回滑点调整后的成交价，中性方向原样返回。
func (m LinearSlippage) TradePrice(price float64, dir order.Direction) float64 {
	switch dir {
	case order.DirectionBuy:
		return price * (1 + m.Rate)
	case order.DirectionSell:
		return price * (1 - m.Rate)
	default:
		return price
	}
}

var (
	_ FeeModel      = PercentageFee{}
	_ SlippageModel = LinearSlippage{}
)
