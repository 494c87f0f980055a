package exchange

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"crypto-backtest/internal/ledger"
	"crypto-backtest/internal/order"
	"crypto-backtest/internal/quote"
)

// BaseCosts 为撮合器自带的成本参数。加密市场的费用由 Exchange 的费用模型统一计算，
// 因此这些字段必须全部为零。
type BaseCosts struct {
	OpenCost   float64
	CloseCost  float64
	MinCost    float64
	ImpactCost float64
}

// Fill 为撮合器给出的基础成交价与成交数量。
type Fill struct {
	Price  float64
	Amount float64
}

// Matcher 为基础撮合器：负责订单校验与基础成交信息。
type Matcher interface {
	CheckOrder(o *order.Order) bool
	TradeInfo(o *order.Order, holdings ledger.Holdings) (Fill, error)
	Costs() BaseCosts
}

// QuoteMatcher 基于行情表撮合，按订单窗口内最后一根K线的成交价字段成交。
type QuoteMatcher struct {
	table     *quote.Table
	dealPrice string
	logger    *zap.Logger
}

// NewQuoteMatcher 在构造时加载指定标的与窗口的行情。
func NewQuoteMatcher(ctx context.Context, provider quote.Provider, codes []string, start, end time.Time, freq, dealPrice string, logger *zap.Logger) (*QuoteMatcher, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: 行情源为空", ErrConfiguration)
	}
	table, err := provider.Features(ctx, codes, quote.DefaultFields, start, end, freq)
	if err != nil {
		return nil, fmt.Errorf("exchange: 加载行情失败: %w", err)
	}
	return NewTableMatcher(table, dealPrice, logger)
}

// NewTableMatcher 使用已加载的行情表创建撮合器。
func NewTableMatcher(table *quote.Table, dealPrice string, logger *zap.Logger) (*QuoteMatcher, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: 行情表为空", ErrConfiguration)
	}
	if dealPrice == "" {
		dealPrice = quote.FieldClose
	}
	if _, err := (quote.Quote{}).Field(dealPrice); err != nil {
		return nil, fmt.Errorf("%w: deal_price: %v", ErrConfiguration, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuoteMatcher{
		table:     table,
		dealPrice: quote.NormalizeField(dealPrice),
		logger:    logger,
	}, nil
}

// Table 返回撮合器使用的行情表。
func (m *QuoteMatcher) Table() *quote.Table {
	return m.table
}

// DealPrice 返回成交价字段名。
func (m *QuoteMatcher) DealPrice() string {
	return m.dealPrice
}

// CheckOrder 拒绝未知标的、窗口内无K线（停牌）、非正数量以及中性方向的订单。
func (m *QuoteMatcher) CheckOrder(o *order.Order) bool {
	if o == nil || o.Validate() != nil {
		return false
	}
	if o.Amount <= 0 || math.IsNaN(o.Amount) {
		return false
	}
	if o.Direction != order.DirectionBuy && o.Direction != order.DirectionSell {
		return false
	}
	if !m.table.Has(o.Symbol) {
		return false
	}
	_, ok := m.table.Last(o.Symbol, o.Start, o.End)
	return ok
}

// TradeInfo 返回基础成交价及成交数量。卖出不超过持仓，买入不超过现金可买数量。
func (m *QuoteMatcher) TradeInfo(o *order.Order, holdings ledger.Holdings) (Fill, error) {
	bar, ok := m.table.Last(o.Symbol, o.Start, o.End)
	if !ok {
		return Fill{}, fmt.Errorf("%w: %s 在 [%s, %s] 内无行情", ErrUpstreamData, o.Symbol,
			o.Start.Format(time.RFC3339), o.End.Format(time.RFC3339))
	}
	price, err := bar.Field(m.dealPrice)
	if err != nil {
		return Fill{}, fmt.Errorf("%w: %v", ErrUpstreamData, err)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return Fill{}, fmt.Errorf("%w: %s 在 %s 的 %s 价格无效 (%v)", ErrUpstreamData, o.Symbol,
			bar.Timestamp.Format(time.RFC3339), m.dealPrice, price)
	}

	amount := o.Amount
	if holdings != nil {
		switch o.Direction {
		case order.DirectionSell:
			amount = math.Min(amount, math.Max(holdings.Amount(o.Symbol), 0))
		case order.DirectionBuy:
			amount = math.Min(amount, math.Max(holdings.Cash(), 0)/price)
		}
	}
	if amount < o.Amount {
		m.logger.Debug("成交数量被截断",
			zap.String("symbol", o.Symbol),
			zap.String("direction", string(o.Direction)),
			zap.Float64("requested", o.Amount),
			zap.Float64("filled", amount),
		)
	}

	return Fill{Price: price, Amount: amount}, nil
}

// Costs 返回零成本：加密市场的费用全部由费用模型计算。
func (m *QuoteMatcher) Costs() BaseCosts {
	return BaseCosts{}
}

var _ Matcher = (*QuoteMatcher)(nil)
