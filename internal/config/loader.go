package config

import (
	"fmt"
	"os"
)

// LoadConfigFile 从指定路径或默认路径列表加载配置文件
//
// 参数说明：
//   - path: 指定的配置文件路径。如果为空字符串，则按顺序尝试 defaultPaths
//   - defaultPaths: 默认路径列表，找到第一个存在的文件即返回
//
// 返回文件内容、实际使用的路径以及错误。指定路径读取失败视为硬错误；
// 默认路径全部缺失时返回 "not found" 错误，由调用方决定是否容忍。
func LoadConfigFile(path string, defaultPaths []string) ([]byte, string, error) {
	// 如果指定了路径，直接使用
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read config file %s: %v", path, err)
		}
		return data, path, nil
	}

	// 否则尝试默认路径
	for _, p := range defaultPaths {
		if _, err := os.Stat(p); err == nil {
			data, err := os.ReadFile(p)
			if err != nil {
				return nil, "", fmt.Errorf("failed to read config file %s: %v", p, err)
			}
			return data, p, nil
		}
	}

	return nil, "", fmt.Errorf("config file not found in default paths: %v", defaultPaths)
}
