package calendar

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidFrequency 表示无法识别的步长单位。
var ErrInvalidFrequency = errors.New("calendar: 无法识别的频率")

var units = map[string]time.Duration{
	"s":      time.Second,
	"sec":    time.Second,
	"second": time.Second,
	"t":      time.Minute,
	"m":      time.Minute,
	"min":    time.Minute,
	"minute": time.Minute,
	"h":      time.Hour,
	"hour":   time.Hour,
	"d":      24 * time.Hour,
	"day":    24 * time.Hour,
	"w":      7 * 24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

// Frequency 为解析后的日历步长。
type Frequency struct {
	Raw  string
	Step time.Duration
}

// ParseFrequency 解析形如 "1min"、"15m"、"4h"、"day"、"1d"、"D" 的频率字符串。
// 单位大小写不敏感，但大写 "M"（月）不是固定步长，视为非法。
func ParseFrequency(freq string) (Frequency, error) {
	raw := strings.TrimSpace(freq)
	if raw == "" {
		return Frequency{}, fmt.Errorf("%w: 频率为空", ErrInvalidFrequency)
	}

	idx := 0
	for idx < len(raw) && raw[idx] >= '0' && raw[idx] <= '9' {
		idx++
	}
	numPart, unitPart := raw[:idx], raw[idx:]
	if unitPart == "M" {
		return Frequency{}, fmt.Errorf("%w: %q (月度步长不固定)", ErrInvalidFrequency, freq)
	}

	n := 1
	if numPart != "" {
		v, err := strconv.Atoi(numPart)
		if err != nil || v <= 0 {
			return Frequency{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, freq)
		}
		n = v
	}

	key := strings.ToLower(unitPart)
	unit, ok := units[key]
	if !ok && len(key) > 3 {
		unit, ok = units[strings.TrimSuffix(key, "s")]
	}
	if !ok {
		return Frequency{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, freq)
	}

	if int64(n) > math.MaxInt64/int64(unit) {
		return Frequency{}, fmt.Errorf("%w: %q (步长溢出)", ErrInvalidFrequency, freq)
	}

	return Frequency{Raw: raw, Step: time.Duration(n) * unit}, nil
}

// StepsPerYear 返回一年（365 天，连续交易）内的步数，用于年化统计。
func (f Frequency) StepsPerYear() float64 {
	if f.Step <= 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(f.Step)
}

// Daily 判断频率是否为单日步长。
func (f Frequency) Daily() bool {
	return f.Step == 24*time.Hour
}
