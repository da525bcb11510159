// Package quota 定义配额领域模型：配额定义、作用域与用量来源
package quota

import "fmt"

// Scope 表示配额的作用域
type Scope string

const (
	// ScopeRegional 区域级配额：每个 账号×区域 一个观测值
	ScopeRegional Scope = "regional"
	// ScopeGlobal 全局配额：每个账号仅一个观测值，region 标签使用哨兵值
	ScopeGlobal Scope = "global"
)

// GlobalRegionLabel 全局配额在指标中的 region 哨兵标签
const GlobalRegionLabel = "global"

// GlobalAPIRegion 全局服务统一使用 us-east-1 端点调用
const GlobalAPIRegion = "us-east-1"

// UsageSource 表示配额用量的获取方式
type UsageSource string

const (
	// UsageSourceNone 用量不可采集，指标中省略 usage 样本
	UsageSourceNone UsageSource = "none"
	// UsageSourceCloudWatch 用量来自 CloudWatch AWS/Usage 指标查询
	UsageSourceCloudWatch UsageSource = "cloudwatch"
	// UsageSourceResourceCount 用量来自资源清单计数（Describe/List 类接口）
	UsageSourceResourceCount UsageSource = "resource-count"
)

// CloudWatchMapping 描述一条 CloudWatch 用量查询的维度映射
type CloudWatchMapping struct {
	Namespace  string            `yaml:"namespace"`
	MetricName string            `yaml:"metric"`
	Statistic  string            `yaml:"statistic"`
	Dimensions map[string]string `yaml:"dimensions"`
}

// Definition 描述一条被监控的配额
type Definition struct {
	Service      string             `yaml:"-"`
	Code         string             `yaml:"code"`
	Name         string             `yaml:"name"`
	Scope        Scope              `yaml:"-"`
	UsageSource  UsageSource        `yaml:"usage_source"`
	CloudWatch   *CloudWatchMapping `yaml:"cloudwatch"`
	DefaultLimit *float64           `yaml:"default_limit"`
}

// Key 返回配额在缓存与日志中使用的自然键
func (d Definition) Key() string {
	return d.Service + "/" + d.Code
}

// Validate 检查定义自身的一致性
func (d Definition) Validate() error {
	if d.Service == "" {
		return fmt.Errorf("quota definition missing service")
	}
	if d.Code == "" {
		return fmt.Errorf("quota definition missing code (service=%s)", d.Service)
	}
	switch d.UsageSource {
	case "", UsageSourceNone, UsageSourceResourceCount:
	case UsageSourceCloudWatch:
		if d.CloudWatch == nil {
			return fmt.Errorf("quota %s: usage_source=cloudwatch requires a cloudwatch mapping", d.Key())
		}
		if d.CloudWatch.Namespace == "" || d.CloudWatch.MetricName == "" {
			return fmt.Errorf("quota %s: cloudwatch mapping requires namespace and metric", d.Key())
		}
	default:
		return fmt.Errorf("quota %s: unknown usage_source %q", d.Key(), d.UsageSource)
	}
	return nil
}

// APIRegion 返回该配额实际调用 API 时使用的区域
// 全局配额固定走 us-east-1，区域配额使用任务下发的区域
func (d Definition) APIRegion(taskRegion string) string {
	if d.Scope == ScopeGlobal {
		return GlobalAPIRegion
	}
	return taskRegion
}

// RegionLabel 返回该配额观测值发布时的 region 标签
func (d Definition) RegionLabel(taskRegion string) string {
	if d.Scope == ScopeGlobal {
		return GlobalRegionLabel
	}
	return taskRegion
}
