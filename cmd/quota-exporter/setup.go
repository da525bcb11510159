package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"quota-exporter/internal/cache"
	"quota-exporter/internal/config"
	"quota-exporter/internal/directory"
	"quota-exporter/internal/logger"
	"quota-exporter/internal/utils"
)

// setupConfig 加载并验证主配置，随后初始化日志系统
func setupConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Server != nil && cfg.Server.Log != nil {
		logger.Init(cfg.Server.Log)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides 环境变量覆盖常用采集参数（环境变量 > 配置文件 > 默认值）
// 无效值只告警不生效，沿用配置文件中的取值
func applyEnvOverrides(cfg *config.Config) {
	if cfg.Collection == nil {
		cfg.Collection = &config.CollectionConf{}
	}
	if v := getEnv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Collection.WorkerPoolSize = n
		} else {
			logger.Log.Warnf("环境变量 WORKER_POOL_SIZE 无效: %q", v)
		}
	}
	if v := getEnv("LIMIT_REFRESH_INTERVAL"); v != "" {
		if _, err := utils.ParseDuration(v); err == nil {
			cfg.Collection.LimitRefreshInterval = v
		} else {
			logger.Log.Warnf("环境变量 LIMIT_REFRESH_INTERVAL 无效: %v", err)
		}
	}
	if v := getEnv("USAGE_REFRESH_INTERVAL"); v != "" {
		if _, err := utils.ParseDuration(v); err == nil {
			cfg.Collection.UsageRefreshInterval = v
		} else {
			logger.Log.Warnf("环境变量 USAGE_REFRESH_INTERVAL 无效: %v", err)
		}
	}
}

// setupQuotas 加载配额定义并按 collection.services 过滤
// 定义目录优先取 QUOTA_CONFIG_PATH 环境变量，其次配置文件
func setupQuotas(cfg *config.Config) (*config.QuotaConfig, error) {
	path := getEnv("QUOTA_CONFIG_PATH")
	if path == "" {
		path = cfg.QuotaConfigPath
	}
	quotas, err := config.LoadQuotaFiles(path)
	if err != nil {
		return nil, err
	}
	if cfg.Collection != nil {
		quotas = quotas.Filter(cfg.Collection.Services)
	}
	if len(quotas.Services) == 0 {
		return nil, fmt.Errorf("配额定义过滤后为空，请检查 collection.services")
	}

	static, dynamic := 0, 0
	for _, svc := range quotas.Services {
		static += len(svc.Static)
		if svc.Dynamic() {
			dynamic++
		}
	}
	logger.Log.Infof("配额定义加载完成 services=%d static_quotas=%d dynamic_services=%d",
		len(quotas.Services), static, dynamic)
	return quotas, nil
}

// setupCaches 创建分层缓存，恢复上次落盘内容并启动定期保存
func setupCaches(cfg *config.Config) *cache.Tiered {
	caches := cache.NewTiered(cfg.LimitCacheTTL(), cfg.UsageCacheTTL(), cfg.CacheFile())
	if err := caches.Limits.Load(); err != nil {
		logger.Log.Warnf("恢复限额缓存失败，以空缓存启动: %v", err)
	}
	caches.Limits.StartAutoFlush(10 * time.Minute)
	return caches
}

// setupDirectory 连接 CMDB 并套上快照缓存
// 启动时预热一次账号快照：查询失败时 Cached 内部会退回落盘快照，
// 连兜底快照都没有才算启动失败
func setupDirectory(ctx context.Context, cfg *config.Config, caches *cache.Tiered) (directory.Directory, *directory.Postgres, error) {
	pg, err := directory.NewPostgres(ctx, cfg.Directory.DSN, cfg.DirectoryQueryTimeout())
	if err != nil {
		return nil, nil, err
	}
	cached := directory.NewCached(pg, caches.Limits)

	accounts, err := cached.Accounts(ctx)
	if err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("目录快照预热失败: %w", err)
	}
	logger.Log.Infof("目录快照预热完成，账号数=%d", len(accounts))
	return cached, pg, nil
}
