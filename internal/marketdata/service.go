package marketdata

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultVolumeConcurrency = 4

type candleSource interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int64) ([]Candle, error)
}

// VolumeService 并行查询候选标的最近日线成交量。
type VolumeService struct {
	client      candleSource
	concurrency int
	logger      *zap.Logger
}

// NewVolumeService 创建成交量查询服务。
func NewVolumeService(client candleSource, logger *zap.Logger) *VolumeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VolumeService{
		client:      client,
		concurrency: defaultVolumeConcurrency,
		logger:      logger,
	}
}

// LatestVolumes 按输入顺序返回各标的最近一根日线的成交量。
// 没有K线的标的不出现在结果中。
func (s *VolumeService) LatestVolumes(ctx context.Context, symbols []string) ([]VolumeRow, error) {
	if s.client == nil {
		return nil, fmt.Errorf("marketdata: 行情客户端未配置")
	}

	rows := make([]*VolumeRow, len(symbols))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for i, symbol := range symbols {
		group.Go(func() error {
			candles, err := s.client.FetchCandles(groupCtx, symbol, TimeframeDaily, 1)
			if err != nil {
				return err
			}
			if len(candles) == 0 {
				s.logger.Warn("标的无日线数据，已忽略", zap.String("symbol", symbol))
				return nil
			}
			last := candles[len(candles)-1]
			rows[i] = &VolumeRow{Symbol: symbol, Volume: last.Volume, AsOf: last.Timestamp}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := make([]VolumeRow, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			out = append(out, *row)
		}
	}

	s.logger.Debug("日线成交量查询完成",
		zap.Int("requested", len(symbols)),
		zap.Int("returned", len(out)),
	)

	return out, nil
}
