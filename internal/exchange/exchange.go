// Package exchange 实现加密市场的订单撮合：校验、定价、滑点、手续费，
// 最后把结果原子地记入唯一的账本。
package exchange

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"crypto-backtest/internal/calendar"
	"crypto-backtest/internal/cost"
	"crypto-backtest/internal/ledger"
	"crypto-backtest/internal/order"
)

// Options 配置费用与滑点模型，为空时使用零费率。
type Options struct {
	FeeModel      cost.FeeModel
	SlippageModel cost.SlippageModel
}

// Exchange 为订单撮合器。单线程使用，同一账本只能有一个调用方。
type Exchange struct {
	matcher  Matcher
	fee      cost.FeeModel
	slippage cost.SlippageModel
	logger   *zap.Logger
}

// New 创建撮合器。基础撮合器的成本字段必须全部为零，否则返回 ErrConfiguration。
func New(matcher Matcher, opts Options, logger *zap.Logger) (*Exchange, error) {
	if matcher == nil {
		return nil, fmt.Errorf("%w: 基础撮合器为空", ErrConfiguration)
	}
	if err := checkBaseCosts(matcher.Costs()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FeeModel == nil {
		opts.FeeModel = cost.PercentageFee{}
	}
	if opts.SlippageModel == nil {
		opts.SlippageModel = cost.LinearSlippage{}
	}
	return &Exchange{
		matcher:  matcher,
		fee:      opts.FeeModel,
		slippage: opts.SlippageModel,
		logger:   logger,
	}, nil
}

func checkBaseCosts(c BaseCosts) error {
	var err error
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"open_cost", c.OpenCost},
		{"close_cost", c.CloseCost},
		{"min_cost", c.MinCost},
		{"impact_cost", c.ImpactCost},
	} {
		if field.value != 0 {
			err = multierr.Append(err, fmt.Errorf("基础撮合器 %s 必须为0，当前 %v", field.name, field.value))
		}
	}
	return err
}

// DealOrder 撮合订单并记入 target 指定的账本。
//
// 校验失败的订单被拒绝：DealAmount 置零，返回 RejectedResult() 且不返回错误，账本不变。
// 配置错误在写入成交数量或修改账本之前返回。
func (e *Exchange) DealOrder(o *order.Order, target Target) (Result, error) {
	if target == nil {
		return Result{}, fmt.Errorf("%w: 未指定落账账本", ErrConfiguration)
	}
	book, holdings, err := target.resolve()
	if err != nil {
		return Result{}, err
	}
	if o == nil {
		return Result{}, fmt.Errorf("%w: 订单为空", ErrConfiguration)
	}
	if !o.Pending() {
		return Result{}, fmt.Errorf("%w: 订单已处理 (%s)", ErrConfiguration, o.Status)
	}

	if !e.matcher.CheckOrder(o) {
		if err := o.Reject(); err != nil {
			return Result{}, err
		}
		e.logger.Debug("订单校验未通过，已拒绝",
			zap.String("symbol", o.Symbol),
			zap.String("direction", string(o.Direction)),
			zap.Float64("amount", o.Amount),
		)
		return RejectedResult(), nil
	}
	if err := o.Transition(order.StatusValidated); err != nil {
		return Result{}, err
	}

	fill, err := e.matcher.TradeInfo(o, holdings)
	if err != nil {
		return Result{}, fmt.Errorf("exchange: 获取 %s 成交信息失败: %w", o.Symbol, err)
	}
	if math.IsNaN(fill.Price) || fill.Price <= 0 || math.IsNaN(fill.Amount) || fill.Amount < 0 {
		return Result{}, fmt.Errorf("%w: %s 成交信息无效 price=%v amount=%v", ErrUpstreamData, o.Symbol, fill.Price, fill.Amount)
	}
	price := e.slippage.TradePrice(fill.Price, o.Direction)
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return Result{}, fmt.Errorf("%w: %s 滑点调整后成交价非法 base=%v trade=%v", ErrConfiguration, o.Symbol, fill.Price, price)
	}
	if err := o.Fill(fill.Amount); err != nil {
		return Result{}, err
	}

	value := o.DealAmount * price
	fee := e.fee.Fee(o.DealAmount, price)
	if err := o.Transition(order.StatusCosted); err != nil {
		return Result{}, err
	}

	if err := book.UpdateOrder(o, value, fee, price); err != nil {
		return Result{}, fmt.Errorf("exchange: %s 落账失败: %w", o.Symbol, err)
	}
	if err := o.Transition(order.StatusSettled); err != nil {
		return Result{}, err
	}

	e.logger.Debug("订单已成交",
		zap.String("symbol", o.Symbol),
		zap.String("direction", string(o.Direction)),
		zap.Float64("deal_amount", o.DealAmount),
		zap.Float64("base_price", fill.Price),
		zap.Float64("trade_price", price),
		zap.Float64("trade_value", value),
		zap.Float64("trade_cost", fee),
	)

	return Result{TradeValue: value, TradeCost: fee, TradePrice: price}, nil
}

// DealOrderWith 接受两个可空账本参数，恰好给出一个时才撮合。
func (e *Exchange) DealOrderWith(o *order.Order, account *ledger.Account, position *ledger.Position) (Result, error) {
	target, err := TargetOf(account, position)
	if err != nil {
		return Result{}, err
	}
	return e.DealOrder(o, target)
}

// Calendar 返回连续交易日历。
func (e *Exchange) Calendar(start, end time.Time, freq string) ([]time.Time, error) {
	cal, err := calendar.Generate(start, end, freq)
	if err != nil {
		return nil, fmt.Errorf("exchange: 生成日历失败: %w", err)
	}
	return cal, nil
}

// IsConfigurationError 判断错误是否为配置错误。
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
