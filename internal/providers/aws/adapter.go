// Package aws 实现 AWS 服务配额适配器：限额来自 Service Quotas，
// 用量按配额定义路由到 CloudWatch 或各服务的 Describe 调用
package aws

import (
	"context"
	"sort"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"

	"quota-exporter/internal/config"
	"quota-exporter/internal/directory"
	"quota-exporter/internal/logger"
	"quota-exporter/internal/metrics"
	"quota-exporter/internal/providers"
	"quota-exporter/internal/providers/common"
	"quota-exporter/internal/quota"
)

// recordAPI 记录一次云 API 调用结果
func recordAPI(service, api string, err error) {
	status := "success"
	if err != nil {
		status = common.ClassifyAWSError(err)
	}
	metrics.RequestTotal.WithLabelValues(service, api, status).Inc()
	metrics.RecordRequest(service, api, status)
}

// serviceAdapter 覆盖静态配额与动态发现两类服务
type serviceAdapter struct {
	svc     *config.ServiceQuotas
	clients ClientFactory
	log     *logger.ContextLogger
}

// NewAdapter 创建使用默认客户端工厂的适配器
func NewAdapter(svc *config.ServiceQuotas) (providers.Adapter, error) {
	return newServiceAdapter(svc, &defaultClientFactory{}), nil
}

func newServiceAdapter(svc *config.ServiceQuotas, clients ClientFactory) *serviceAdapter {
	return &serviceAdapter{
		svc:     svc,
		clients: clients,
		log:     logger.NewContextLogger("AWSAdapter", "service", svc.Service),
	}
}

func (a *serviceAdapter) Service() string {
	return a.svc.Service
}

func (a *serviceAdapter) Scope() quota.Scope {
	return a.svc.Scope
}

// apiRegion 将任务区域转换为 API 接入区域，global 服务固定走 us-east-1
func (a *serviceAdapter) apiRegion(region string) string {
	if a.svc.Scope == quota.ScopeGlobal {
		return quota.GlobalAPIRegion
	}
	return region
}

// Definitions 返回静态配额定义，动态服务追加目录发现结果
func (a *serviceAdapter) Definitions(ctx context.Context, creds directory.Credentials, region string) ([]quota.Definition, error) {
	defs := make([]quota.Definition, 0, len(a.svc.Static))
	defs = append(defs, a.svc.Static...)

	if a.svc.Dynamic() {
		discovered, err := a.discover(ctx, creds, region)
		if err != nil {
			return nil, err
		}
		defs = mergeDefinitions(defs, discovered)
	}
	return defs, nil
}

// discover 枚举服务的完整配额目录并套用匹配规则过滤
func (a *serviceAdapter) discover(ctx context.Context, creds directory.Credentials, region string) ([]quota.Definition, error) {
	client, err := a.clients.NewServiceQuotasClient(ctx, a.apiRegion(region), creds.AccessKeyID, creds.SecretAccessKey)
	if err != nil {
		return nil, err
	}

	var catalog []quota.Definition
	paginator := servicequotas.NewListServiceQuotasPaginator(client, &servicequotas.ListServiceQuotasInput{
		ServiceCode: awssdk.String(a.svc.Service),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		recordAPI(a.svc.Service, "ListServiceQuotas", err)
		if err != nil {
			return nil, err
		}
		for _, q := range page.Quotas {
			code := awssdk.ToString(q.QuotaCode)
			if code == "" {
				continue
			}
			catalog = append(catalog, quota.Definition{
				Service:     a.svc.Service,
				Code:        code,
				Name:        awssdk.ToString(q.QuotaName),
				Scope:       a.svc.Scope,
				UsageSource: quota.UsageSourceNone,
			})
		}
	}

	matched := a.svc.Matcher.Match(catalog)
	a.log.Infof("动态发现完成 region=%s catalog=%d matched=%d", region, len(catalog), len(matched))
	return matched, nil
}

// mergeDefinitions 合并静态与发现的定义，同码时静态定义优先
func mergeDefinitions(static, discovered []quota.Definition) []quota.Definition {
	seen := make(map[string]struct{}, len(static))
	for _, d := range static {
		seen[d.Code] = struct{}{}
	}
	merged := static
	for _, d := range discovered {
		if _, ok := seen[d.Code]; ok {
			continue
		}
		seen[d.Code] = struct{}{}
		merged = append(merged, d)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Code < merged[j].Code })
	return merged
}
