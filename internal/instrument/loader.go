package instrument

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crypto-backtest/internal/marketdata"
)

// SourceCCXT 表示从交易所读取候选标的的日线成交量。
const SourceCCXT = "ccxt"

const maxPayloadBytes = 32 << 20

// Loader 加载某个市场的原始标的表。
type Loader interface {
	Load(ctx context.Context, market string) (*Frame, error)
}

// FileLoader 从 .json 或 .csv 文件加载标的。
type FileLoader struct {
	Path string
}

// Load 按扩展名解析文件。
func (l FileLoader) Load(ctx context.Context, _ string) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(l.Path)
	if err != nil {
		return nil, fmt.Errorf("instrument: 打开标的文件失败: %w", err)
	}
	defer file.Close()

	switch ext := strings.ToLower(filepath.Ext(l.Path)); ext {
	case ".json":
		payload, err := io.ReadAll(io.LimitReader(file, maxPayloadBytes))
		if err != nil {
			return nil, fmt.Errorf("instrument: 读取标的文件失败: %w", err)
		}
		return ParseJSON(payload)
	case ".csv":
		return ParseCSV(file)
	default:
		return nil, fmt.Errorf("instrument: 不支持的文件格式 %q", ext)
	}
}

// HTTPLoader 从交易所 HTTP 接口加载标的，响应体按 JSON 解析。
type HTTPLoader struct {
	URL    string
	Client *http.Client
}

// Load 发起 GET 请求并解析响应。
func (l HTTPLoader) Load(ctx context.Context, _ string) (*Frame, error) {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("instrument: 构造请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("instrument: 请求标的接口失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("instrument: 标的接口返回状态 %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("instrument: 读取响应失败: %w", err)
	}
	return ParseJSON(payload)
}

type volumeLookup interface {
	LatestVolumes(ctx context.Context, symbols []string) ([]marketdata.VolumeRow, error)
}

// VolumeLoader 以候选标的最近一根日线成交量构造标的表。
type VolumeLoader struct {
	Volumes volumeLookup
	Symbols []string
}

// Load 查询成交量，保持候选顺序。
func (l VolumeLoader) Load(ctx context.Context, _ string) (*Frame, error) {
	if l.Volumes == nil {
		return nil, errors.New("instrument: 未配置成交量查询服务")
	}
	if len(l.Symbols) == 0 {
		return nil, ErrEmptyPayload
	}
	rows, err := l.Volumes.LatestVolumes(ctx, l.Symbols)
	if err != nil {
		return nil, fmt.Errorf("instrument: 查询日线成交量失败: %w", err)
	}

	frame := &Frame{Rows: make([]Row, 0, len(rows)), HasVolume: true}
	for _, r := range rows {
		vol := r.Volume
		frame.Rows = append(frame.Rows, Row{Symbol: r.Symbol, Volume: &vol})
	}
	return frame, nil
}

// LoaderOptions 为 NewLoader 提供依赖。
type LoaderOptions struct {
	HTTPTimeout time.Duration
	Volumes     volumeLookup
	Symbols     []string
}

// NewLoader 根据来源字符串选择加载器：http(s) 地址、"ccxt" 或本地文件路径。
func NewLoader(source string, opts LoaderOptions) (Loader, error) {
	source = strings.TrimSpace(source)
	switch {
	case source == "":
		return nil, errors.New("instrument: 标的来源不能为空")
	case strings.EqualFold(source, SourceCCXT):
		return VolumeLoader{Volumes: opts.Volumes, Symbols: opts.Symbols}, nil
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		timeout := opts.HTTPTimeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		return HTTPLoader{URL: source, Client: &http.Client{Timeout: timeout}}, nil
	default:
		return FileLoader{Path: source}, nil
	}
}
