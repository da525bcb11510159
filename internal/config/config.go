// 配置包：定义服务端、目录、采集与重试配置结构，提供 YAML 加载能力
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"quota-exporter/internal/utils"

	"gopkg.in/yaml.v3"
)

// expandEnv replaces ${var} or $var in the string according to the values
// of the current environment variables. It supports default values using
// the ${var:-default} syntax.
func expandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		// Handle ${VAR:-default}
		if k, def, cut := strings.Cut(key, ":-"); cut {
			if v, ok := os.LookupEnv(k); ok && v != "" {
				return v
			}
			return def
		}
		return os.Getenv(key)
	})
}

// Config 汇总导出器全部配置
type Config struct {
	Server     *ServerConf     `yaml:"server"`
	Directory  *DirectoryConf  `yaml:"directory"`
	Collection *CollectionConf `yaml:"collection"`
	Retry      *RetryConf      `yaml:"retry"`

	// QuotaConfigPath 配额定义文件目录，环境变量 QUOTA_CONFIG_PATH 优先
	QuotaConfigPath string `yaml:"quota_config_path"`
}

// ServerConf HTTP 服务与日志配置
type ServerConf struct {
	Port int        `yaml:"port"`
	Log  *LogConfig `yaml:"log"`

	AdminAuthEnabled bool        `yaml:"admin_auth_enabled"`
	AdminAuth        []BasicAuth `yaml:"admin_auth"`
}

// DirectoryConf CMDB 目录（关系库）连接配置
type DirectoryConf struct {
	// DSN Postgres 连接串，建议通过 ${CMDB_DSN} 注入
	DSN string `yaml:"dsn"`
	// QueryTimeout 单次目录查询超时，默认 10s
	QueryTimeout string `yaml:"query_timeout"`
}

// CollectionConf 采集编排配置
type CollectionConf struct {
	// WorkerPoolSize 采集工作池大小，默认 3
	WorkerPoolSize int `yaml:"worker_pool_size"`
	// InterCallDelay 同一 worker 相邻外部调用之间的间隔，默认 100ms
	InterCallDelay string `yaml:"inter_call_delay"`
	// ProberPoolSize 活跃区域探测的独立并发池大小，默认 5
	ProberPoolSize int `yaml:"prober_pool_size"`

	// LimitRefreshInterval 限额刷新周期，默认 24h；支持 d 后缀（1d = 24h）
	LimitRefreshInterval string `yaml:"limit_refresh_interval"`
	// UsageRefreshInterval 用量刷新周期，默认 1h
	UsageRefreshInterval string `yaml:"usage_refresh_interval"`
	// LimitCacheTTL 限额缓存生命周期，默认 24h
	LimitCacheTTL string `yaml:"limit_cache_ttl"`
	// UsageCacheTTL 用量缓存生命周期，默认 1h
	UsageCacheTTL string `yaml:"usage_cache_ttl"`

	// CacheFile 限额缓存落盘路径，默认 data/quota-cache.json
	CacheFile string `yaml:"cache_file"`

	// Services 仅采集列出的服务；为空表示采集全部已注册服务
	Services []string `yaml:"services"`
}

// RetryConf 分类感知重试配置
type RetryConf struct {
	// MaxAttempts 最大尝试次数（包括首次），默认 3
	MaxAttempts int `yaml:"max_attempts"`
	// BaseDelay 首次重试前等待，默认 2s
	BaseDelay string `yaml:"base_delay"`
	// MaxDelay 单次等待上限，默认 30s
	MaxDelay string `yaml:"max_delay"`
	// Multiplier 退避因子，默认 2.0
	Multiplier float64 `yaml:"multiplier"`
}

type FileLogConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"` // in MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // in days
	Compress   bool   `yaml:"compress"`
}

type LogConfig struct {
	Level  string         `yaml:"level"`  // debug, info, warn, error
	Format string         `yaml:"format"` // json, console
	Output string         `yaml:"output"` // stdout, file, both
	File   *FileLogConfig `yaml:"file"`
}

type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// duration 解析字符串时长，空串或解析失败时返回默认值
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := utils.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// WorkerPool 返回采集工作池大小
func (c *Config) WorkerPool() int {
	if c.Collection != nil && c.Collection.WorkerPoolSize > 0 {
		return c.Collection.WorkerPoolSize
	}
	return 3
}

// ProberPool 返回区域探测池大小
func (c *Config) ProberPool() int {
	if c.Collection != nil && c.Collection.ProberPoolSize > 0 {
		return c.Collection.ProberPoolSize
	}
	return 5
}

// InterCallDelay 返回 worker 相邻外部调用的间隔
func (c *Config) InterCallDelay() time.Duration {
	if c.Collection != nil {
		return duration(c.Collection.InterCallDelay, 100*time.Millisecond)
	}
	return 100 * time.Millisecond
}

// LimitRefreshInterval 返回限额刷新周期
func (c *Config) LimitRefreshInterval() time.Duration {
	if c.Collection != nil {
		return duration(c.Collection.LimitRefreshInterval, 24*time.Hour)
	}
	return 24 * time.Hour
}

// UsageRefreshInterval 返回用量刷新周期
func (c *Config) UsageRefreshInterval() time.Duration {
	if c.Collection != nil {
		return duration(c.Collection.UsageRefreshInterval, time.Hour)
	}
	return time.Hour
}

// LimitCacheTTL 返回限额缓存 TTL
func (c *Config) LimitCacheTTL() time.Duration {
	if c.Collection != nil {
		return duration(c.Collection.LimitCacheTTL, 24*time.Hour)
	}
	return 24 * time.Hour
}

// UsageCacheTTL 返回用量缓存 TTL
func (c *Config) UsageCacheTTL() time.Duration {
	if c.Collection != nil {
		return duration(c.Collection.UsageCacheTTL, time.Hour)
	}
	return time.Hour
}

// CacheFile 返回限额缓存落盘路径
func (c *Config) CacheFile() string {
	if c.Collection != nil && c.Collection.CacheFile != "" {
		return c.Collection.CacheFile
	}
	return "data/quota-cache.json"
}

// DirectoryQueryTimeout 返回目录查询超时
func (c *Config) DirectoryQueryTimeout() time.Duration {
	if c.Directory != nil {
		return duration(c.Directory.QueryTimeout, 10*time.Second)
	}
	return 10 * time.Second
}

// RetryBaseDelay 返回重试初始等待
func (c *Config) RetryBaseDelay() time.Duration {
	if c.Retry != nil {
		return duration(c.Retry.BaseDelay, 2*time.Second)
	}
	return 2 * time.Second
}

// RetryMaxDelay 返回重试等待上限
func (c *Config) RetryMaxDelay() time.Duration {
	if c.Retry != nil {
		return duration(c.Retry.MaxDelay, 30*time.Second)
	}
	return 30 * time.Second
}

// RetryMaxAttempts 返回最大尝试次数
func (c *Config) RetryMaxAttempts() int {
	if c.Retry != nil && c.Retry.MaxAttempts > 0 {
		return c.Retry.MaxAttempts
	}
	return 3
}

// RetryMultiplier 返回退避因子
func (c *Config) RetryMultiplier() float64 {
	if c.Retry != nil && c.Retry.Multiplier > 0 {
		return c.Retry.Multiplier
	}
	return 2.0
}

// Validate 验证配置的完整性和合法性
func (c *Config) Validate() error {
	var errs []string

	// 验证 Server 配置
	if c.Server == nil {
		errs = append(errs, "server config is required")
	} else {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("invalid port: %d (must be 1-65535)", c.Server.Port))
		}

		// 验证日志配置
		if c.Server.Log != nil {
			level := strings.ToLower(c.Server.Log.Level)
			validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
			if !validLevels[level] {
				errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Server.Log.Level))
			}

			output := strings.ToLower(c.Server.Log.Output)
			validOutputs := map[string]bool{"": true, "stdout": true, "console": true, "file": true, "both": true}
			if !validOutputs[output] {
				errs = append(errs, fmt.Sprintf("invalid log output: %s", c.Server.Log.Output))
			}
		}
	}

	// 验证目录配置
	if c.Directory == nil || c.Directory.DSN == "" {
		errs = append(errs, "directory.dsn is required")
	}

	// 验证采集配置
	if c.Collection != nil {
		if c.Collection.WorkerPoolSize < 0 || c.Collection.WorkerPoolSize > 50 {
			errs = append(errs, fmt.Sprintf("invalid worker_pool_size: %d (must be 0-50)", c.Collection.WorkerPoolSize))
		}
		if c.Collection.ProberPoolSize < 0 || c.Collection.ProberPoolSize > 50 {
			errs = append(errs, fmt.Sprintf("invalid prober_pool_size: %d (must be 0-50)", c.Collection.ProberPoolSize))
		}
		for _, field := range []struct{ name, val string }{
			{"inter_call_delay", c.Collection.InterCallDelay},
			{"limit_refresh_interval", c.Collection.LimitRefreshInterval},
			{"usage_refresh_interval", c.Collection.UsageRefreshInterval},
			{"limit_cache_ttl", c.Collection.LimitCacheTTL},
			{"usage_cache_ttl", c.Collection.UsageCacheTTL},
		} {
			if field.val == "" {
				continue
			}
			if _, err := utils.ParseDuration(field.val); err != nil {
				errs = append(errs, fmt.Sprintf("invalid %s: %q", field.name, field.val))
			}
		}
	}

	// 验证重试配置
	if c.Retry != nil {
		if c.Retry.MaxAttempts < 0 || c.Retry.MaxAttempts > 10 {
			errs = append(errs, fmt.Sprintf("invalid retry.max_attempts: %d (must be 0-10)", c.Retry.MaxAttempts))
		}
		if c.Retry.BaseDelay != "" {
			if _, err := utils.ParseDuration(c.Retry.BaseDelay); err != nil {
				errs = append(errs, fmt.Sprintf("invalid retry.base_delay: %q", c.Retry.BaseDelay))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// LoadConfig 从 CONFIG_PATH 或默认路径加载主配置
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	data, actualPath, err := LoadConfigFile(path, []string{"/app/configs/config.yaml", "./configs/config.yaml", "./config.yaml"})
	if err != nil {
		return nil, err
	}

	expanded := expandEnv(string(data))
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from %s: %v", actualPath, err)
	}

	return &cfg, nil
}
