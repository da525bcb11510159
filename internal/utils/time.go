// Package utils 提供通用的小工具函数
package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseDuration 解析时长字符串，在标准单位之外额外支持 d（天）后缀。
// 支持的单位：
//   - ns/us/µs/ms/s/m/h: 与 time.ParseDuration 相同
//   - d: 天（1d = 24h），用于限额类的长周期配置
//
// 示例："1d"、"24h"、"90m" 均合法；纯数字视为非法，必须显式带单位。
func ParseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		daysStr := strings.TrimSuffix(s, "d")
		days, err := strconv.Atoi(daysStr)
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q: %w", s, err)
		}
		if days < 0 {
			return 0, fmt.Errorf("invalid day duration %q: negative", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
