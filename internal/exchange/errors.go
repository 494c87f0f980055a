package exchange

import "errors"

var (
	// ErrConfiguration 表示调用方或撮合器配置错误，发生时不会修改任何账本。
	ErrConfiguration = errors.New("exchange: 配置错误")
	// ErrUpstreamData 表示通过校验后仍无法取得价格或成交数量。
	ErrUpstreamData = errors.New("exchange: 行情数据不可用")
)
