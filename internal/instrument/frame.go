package instrument

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
)

const (
	columnSymbol = "symbol"
	columnVolume = "volume"
)

// ErrEmptyPayload 表示数据源没有任何标的。
var ErrEmptyPayload = errors.New("instrument: 标的数据为空")

// Row 为标的表中的一行，Volume 为空表示该行没有成交量。
type Row struct {
	Symbol string
	Volume *float64
}

// Frame 为按数据源顺序排列的标的表。加载完成后只读。
type Frame struct {
	Rows []Row
	// HasVolume 表示数据源带有成交量列。
	HasVolume bool
}

// Symbols 返回全部标的代码。
func (f *Frame) Symbols() []string {
	out := make([]string, 0, len(f.Rows))
	for _, r := range f.Rows {
		out = append(out, r.Symbol)
	}
	return out
}

// FilterMinVolume 保留成交量不低于阈值的行。
// 阈值非正或表中没有成交量列时原样返回；有成交量列但某行缺失成交量时该行被剔除。
func (f *Frame) FilterMinVolume(minVolume float64) []Row {
	if minVolume <= 0 || !f.HasVolume {
		return append([]Row(nil), f.Rows...)
	}
	out := make([]Row, 0, len(f.Rows))
	for _, r := range f.Rows {
		if r.Volume != nil && *r.Volume >= minVolume {
			out = append(out, r)
		}
	}
	return out
}

// ParseJSON 解析 JSON 标的数据。支持以下形状：
//   - 记录数组 [{"symbol": "...", "volume": 1}, ...]
//   - 字符串数组 ["BTC-USDT", ...]
//   - 列式对象 {"symbol": [...], "volume": [...]} 或 {"symbol": {"0": ...}, ...}
//   - 以 "data" 或 "symbols" 包裹的上述任一形状
//
// 缺少 symbol 字段时使用第一列作为代码。
func ParseJSON(payload []byte) (*Frame, error) {
	if !gjson.ValidBytes(payload) {
		return nil, errors.New("instrument: JSON 格式非法")
	}
	root := gjson.ParseBytes(payload)
	if root.IsObject() {
		if data := root.Get("data"); data.Exists() {
			root = data
		} else if symbols := root.Get("symbols"); symbols.Exists() {
			root = symbols
		}
	}

	switch {
	case root.IsArray():
		return parseRecords(root.Array())
	case root.IsObject():
		return parseColumns(root)
	default:
		return nil, fmt.Errorf("instrument: 不支持的 JSON 结构: %s", root.Type)
	}
}

func parseRecords(items []gjson.Result) (*Frame, error) {
	if len(items) == 0 {
		return nil, ErrEmptyPayload
	}

	frame := &Frame{Rows: make([]Row, 0, len(items))}
	var errs error
	for i, item := range items {
		if !item.IsObject() {
			sym := strings.TrimSpace(item.String())
			if sym == "" {
				errs = multierr.Append(errs, fmt.Errorf("第 %d 条记录缺少标的代码", i))
				continue
			}
			frame.Rows = append(frame.Rows, Row{Symbol: sym})
			continue
		}

		symbol := item.Get(columnSymbol)
		if !symbol.Exists() {
			item.ForEach(func(_, value gjson.Result) bool {
				symbol = value
				return false
			})
		}
		row := Row{Symbol: strings.TrimSpace(symbol.String())}
		if row.Symbol == "" {
			errs = multierr.Append(errs, fmt.Errorf("第 %d 条记录缺少标的代码", i))
			continue
		}

		if vol := item.Get(columnVolume); vol.Exists() {
			frame.HasVolume = true
			v, err := jsonVolume(vol)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", row.Symbol, err))
				continue
			}
			row.Volume = v
		}
		frame.Rows = append(frame.Rows, row)
	}

	if errs != nil {
		return nil, fmt.Errorf("instrument: 标的数据校验失败: %w", errs)
	}
	return frame, nil
}

func parseColumns(obj gjson.Result) (*Frame, error) {
	var (
		first   gjson.Result
		found   bool
		symbols gjson.Result
		volumes gjson.Result
	)
	obj.ForEach(func(key, value gjson.Result) bool {
		if !found {
			first, found = value, true
		}
		switch key.String() {
		case columnSymbol:
			symbols = value
		case columnVolume:
			volumes = value
		}
		return true
	})
	if !found {
		return nil, ErrEmptyPayload
	}
	if !symbols.Exists() {
		symbols = first
	}

	symbolCells := columnCells(symbols)
	if len(symbolCells) == 0 {
		return nil, ErrEmptyPayload
	}
	var volumeCells []gjson.Result
	if volumes.Exists() {
		volumeCells = columnCells(volumes)
	}

	frame := &Frame{Rows: make([]Row, 0, len(symbolCells)), HasVolume: volumes.Exists()}
	var errs error
	for i, cell := range symbolCells {
		row := Row{Symbol: strings.TrimSpace(cell.String())}
		if row.Symbol == "" {
			errs = multierr.Append(errs, fmt.Errorf("第 %d 行缺少标的代码", i))
			continue
		}
		if i < len(volumeCells) {
			v, err := jsonVolume(volumeCells[i])
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", row.Symbol, err))
				continue
			}
			row.Volume = v
		}
		frame.Rows = append(frame.Rows, row)
	}

	if errs != nil {
		return nil, fmt.Errorf("instrument: 标的数据校验失败: %w", errs)
	}
	return frame, nil
}

func columnCells(col gjson.Result) []gjson.Result {
	if col.IsArray() {
		return col.Array()
	}
	if col.IsObject() {
		var cells []gjson.Result
		col.ForEach(func(_, value gjson.Result) bool {
			cells = append(cells, value)
			return true
		})
		return cells
	}
	return nil
}

func jsonVolume(v gjson.Result) (*float64, error) {
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.Number:
		f := v.Float()
		return &f, nil
	case gjson.String:
		return parseVolume(v.String())
	default:
		return nil, fmt.Errorf("volume 类型非法: %s", v.Raw)
	}
}

func parseVolume(raw string) (*float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("volume 无法解析: %q", raw)
	}
	return &f, nil
}

// ParseCSV 解析带表头的 CSV 标的数据，缺少 symbol 列时使用第一列。
func ParseCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyPayload
		}
		return nil, fmt.Errorf("instrument: 读取 CSV 表头失败: %w", err)
	}

	symbolIdx, volumeIdx := 0, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case columnSymbol:
			symbolIdx = i
		case columnVolume:
			volumeIdx = i
		}
	}

	frame := &Frame{HasVolume: volumeIdx >= 0}
	var errs error
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("instrument: 第 %d 行: %w", line, err)
		}

		row := Row{Symbol: strings.TrimSpace(record[symbolIdx])}
		if row.Symbol == "" {
			errs = multierr.Append(errs, fmt.Errorf("第 %d 行缺少标的代码", line))
			continue
		}
		if volumeIdx >= 0 {
			v, err := parseVolume(record[volumeIdx])
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("第 %d 行 %w", line, err))
				continue
			}
			row.Volume = v
		}
		frame.Rows = append(frame.Rows, row)
	}

	if errs != nil {
		return nil, fmt.Errorf("instrument: 标的数据校验失败: %w", errs)
	}
	if len(frame.Rows) == 0 {
		return nil, ErrEmptyPayload
	}
	return frame, nil
}
