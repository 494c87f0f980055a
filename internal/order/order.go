package order

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Direction 表示下单方向。
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	// DirectionHold 为中性方向，成交价不做滑点调整。
	DirectionHold Direction = "hold"
)

// ParseDirection 将文本解析为下单方向，空字符串视为中性方向。
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return DirectionBuy, nil
	case "sell", "short":
		return DirectionSell, nil
	case "", "hold", "none":
		return DirectionHold, nil
	default:
		return "", fmt.Errorf("order: 未知下单方向 %q", s)
	}
}

// Sign 返回方向对应的持仓变化符号：买入 +1，卖出 -1，其余 0。
func (d Direction) Sign() float64 {
	switch d {
	case DirectionBuy:
		return 1
	case DirectionSell:
		return -1
	default:
		return 0
	}
}

// Status 表示订单在撮合流程中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusPriced    Status = "priced"
	StatusCosted    Status = "costed"
	StatusSettled   Status = "settled"
	StatusRejected  Status = "rejected"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusValidated, StatusRejected},
	StatusValidated: {StatusPriced},
	StatusPriced:    {StatusCosted},
	StatusCosted:    {StatusSettled},
}

// ErrInvalidTransition 表示订单状态迁移非法。
var ErrInvalidTransition = errors.New("order: 非法的状态迁移")

// Order 描述一笔交易意图及撮合后的输出。
type Order struct {
	Symbol    string
	Amount    float64
	Direction Direction
	Start     time.Time
	End       time.Time

	// DealAmount 为实际成交数量，仅在 Dealt() 为真时有意义。
	DealAmount float64
	Status     Status
}

// New 创建处于待处理状态的订单。
func New(symbol string, amount float64, dir Direction, start, end time.Time) *Order {
	return &Order{
		Symbol:    symbol,
		Amount:    amount,
		Direction: dir,
		Start:     start,
		End:       end,
		Status:    StatusPending,
	}
}

// Pending 判断订单是否尚未进入撮合流程。零值状态同样视为待处理。
func (o *Order) Pending() bool {
	return o.Status == "" || o.Status == StatusPending
}

// Dealt 判断 DealAmount 是否已被撮合流程写入。
func (o *Order) Dealt() bool {
	return !o.Pending() && o.Status != StatusValidated
}

// Transition 按状态机推进订单状态。
func (o *Order) Transition(to Status) error {
	from := o.Status
	if from == "" {
		from = StatusPending
	}
	for _, next := range transitions[from] {
		if next == to {
			o.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Reject 将订单置为拒绝状态，成交数量归零。
func (o *Order) Reject() error {
	if err := o.Transition(StatusRejected); err != nil {
		return err
	}
	o.DealAmount = 0
	return nil
}

// Fill 写入撮合得到的成交数量并进入已定价状态。
func (o *Order) Fill(amount float64) error {
	if err := o.Transition(StatusPriced); err != nil {
		return err
	}
	o.DealAmount = amount
	return nil
}

// Validate 对订单字段做基本校验。
func (o *Order) Validate() error {
	if strings.TrimSpace(o.Symbol) == "" {
		return errors.New("order: symbol 不能为空")
	}
	if o.Amount < 0 {
		return fmt.Errorf("order: amount 不能为负: %v", o.Amount)
	}
	if !o.End.IsZero() && o.End.Before(o.Start) {
		return fmt.Errorf("order: end %s 早于 start %s", o.End.Format(time.RFC3339), o.Start.Format(time.RFC3339))
	}
	return nil
}

func (o *Order) String() string {
	return fmt.Sprintf("%s %s %g [%s, %s] status=%s deal=%g",
		o.Direction, o.Symbol, o.Amount,
		o.Start.Format(time.RFC3339), o.End.Format(time.RFC3339),
		o.Status, o.DealAmount,
	)
}
