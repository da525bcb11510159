package providers

import (
	"context"
	"sort"
	"sync"

	"quota-exporter/internal/config"
	"quota-exporter/internal/directory"
	"quota-exporter/internal/quota"
)

// Adapter 定义单个云服务的配额采集接口
type Adapter interface {
	// Service 返回服务代码（如 ec2、s3）
	Service() string
	// Scope 返回配额作用域（regional 或 global）
	Scope() quota.Scope
	// Definitions 返回该服务当前生效的配额定义（静态列表 + 动态发现）
	Definitions(ctx context.Context, creds directory.Credentials, region string) ([]quota.Definition, error)
	// Limit 查询单个配额的限额值
	Limit(ctx context.Context, creds directory.Credentials, region string, def quota.Definition) (float64, error)
	// Usage 查询单个配额的用量，第二个返回值为 false 表示该配额没有用量来源
	Usage(ctx context.Context, creds directory.Credentials, region string, def quota.Definition) (float64, bool, error)
}

// Factory 根据服务的配额配置创建 Adapter 实例
type Factory func(svc *config.ServiceQuotas) (Adapter, error)

var (
	registry = make(map[string]Factory)
	mu       sync.RWMutex
)

// Register 注册服务适配器工厂
func Register(service string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[service] = factory
}

// GetFactory 获取指定服务的 Factory
func GetFactory(service string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[service]
	return f, ok
}

// GetAllServices 返回所有已注册的服务代码（排序后，保证任务顺序稳定）
func GetAllServices() []string {
	mu.RLock()
	defer mu.RUnlock()
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
