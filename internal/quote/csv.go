package quote

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crypto-backtest/internal/calendar"
)

const defaultLoadConcurrency = 8

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// CSVProvider 从目录中读取 <dir>/<instrument>.csv 行情文件。
//
// 文件首列为时间索引，其余列名对应行情字段（可带 "$" 前缀），缺失的 factor 列按 1 处理。
type CSVProvider struct {
	dir         string
	concurrency int
	logger      *zap.Logger
}

// NewCSVProvider 创建 CSV 行情源。
func NewCSVProvider(dir string, logger *zap.Logger) (*CSVProvider, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("quote: 行情目录不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVProvider{
		dir:         dir,
		concurrency: defaultLoadConcurrency,
		logger:      logger,
	}, nil
}

// FileName 将标的代码转为文件名，"/" 替换为 "_"。
func FileName(instrument string) string {
	return strings.ReplaceAll(instrument, "/", "_") + ".csv"
}

// Path 返回标的行情文件路径。
func (p *CSVProvider) Path(instrument string) string {
	return filepath.Join(p.dir, FileName(instrument))
}

// Features 并行加载各标的行情，并按日历网格对齐。
func (p *CSVProvider) Features(ctx context.Context, instruments []string, fields []string, start, end time.Time, freq string) (*Table, error) {
	if err := ValidateFields(fields); err != nil {
		return nil, err
	}
	f, err := calendar.ParseFrequency(freq)
	if err != nil {
		return nil, fmt.Errorf("quote: 解析频率失败: %w", err)
	}

	var mu sync.Mutex
	out := NewTable()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.concurrency)
	for _, inst := range instruments {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			quotes, err := p.readFile(inst)
			if err != nil {
				return err
			}
			selected := onGrid(quotes, start, end, f)

			mu.Lock()
			out.Add(inst, selected...)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	p.logger.Debug("行情加载完成",
		zap.Int("instruments", len(instruments)),
		zap.Int("rows", out.Len()),
		zap.String("freq", freq),
	)
	return out, nil
}

func (p *CSVProvider) readFile(instrument string) ([]Quote, error) {
	path := p.Path(instrument)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrNotFound, instrument, path)
		}
		return nil, fmt.Errorf("quote: 打开行情文件失败: %w", err)
	}
	defer file.Close()

	quotes, err := ParseCSV(file)
	if err != nil {
		return nil, fmt.Errorf("quote: 解析 %s 失败: %w", path, err)
	}
	return quotes, nil
}

// ParseCSV 解析带表头的行情 CSV，空值记为 NaN。
func ParseCSV(r io.Reader) ([]Quote, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("表头列数不足: %v", header)
	}

	columns := make([]string, len(header))
	hasFactor := false
	for i, name := range header {
		columns[i] = NormalizeField(name)
		if i > 0 && columns[i] == FieldFactor {
			hasFactor = true
		}
	}

	var quotes []Quote
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}

		ts, err := parseTimestamp(record[0])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}
		q := Quote{Timestamp: ts, Factor: 1}
		if hasFactor {
			q.Factor = math.NaN()
		}
		for i := 1; i < len(record) && i < len(columns); i++ {
			v, err := parseValue(record[i])
			if err != nil {
				return nil, fmt.Errorf("第 %d 行 %s 列: %w", line, columns[i], err)
			}
			assign(&q, columns[i], v)
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func assign(q *Quote, field string, v float64) {
	switch field {
	case FieldOpen:
		q.Open = v
	case FieldHigh:
		q.High = v
	case FieldLow:
		q.Low = v
	case FieldClose:
		q.Close = v
	case FieldVolume:
		q.Volume = v
	case FieldFactor:
		q.Factor = v
	}
}

func parseValue(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间 %q", raw)
}

var _ Provider = (*CSVProvider)(nil)
