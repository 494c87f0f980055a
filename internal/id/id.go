// Package id 生成按时间排序的 ULID 标识，用于回测运行与成交记录。
package id

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// New 以当前时间生成 ULID。
func New() string {
	return At(time.Now())
}

// At 以给定时间生成 ULID，同一毫秒内生成的标识保持递增。
func At(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t.UTC()), ulid.DefaultEntropy()).String()
}

// Time 解析 ULID 中的毫秒时间戳。
func Time(s string) (time.Time, error) {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("id: 解析 ULID %q 失败: %w", s, err)
	}
	return ulid.Time(u.Time()).UTC(), nil
}
