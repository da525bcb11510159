package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"

	"quota-exporter/internal/directory"
	"quota-exporter/internal/providers/common"
	"quota-exporter/internal/quota"
)

// Limit 查询配额限额
//
// 取值顺序：账号生效值（GetServiceQuota）→ AWS 默认配额
// （GetAWSDefaultServiceQuota）→ 配置内的 default_limit
// CloudFront 的部分配额两级 API 都查不到，靠 default_limit 兜底
func (a *serviceAdapter) Limit(ctx context.Context, creds directory.Credentials, region string, def quota.Definition) (float64, error) {
	client, err := a.clients.NewServiceQuotasClient(ctx, def.APIRegion(region), creds.AccessKeyID, creds.SecretAccessKey)
	if err != nil {
		return 0, err
	}

	applied, aerr := client.GetServiceQuota(ctx, &servicequotas.GetServiceQuotaInput{
		ServiceCode: awssdk.String(def.Service),
		QuotaCode:   awssdk.String(def.Code),
	})
	recordAPI(def.Service, "GetServiceQuota", aerr)
	if aerr == nil && applied.Quota != nil && applied.Quota.Value != nil {
		return *applied.Quota.Value, nil
	}
	if aerr != nil && !common.IsNotApplicable(aerr) {
		return 0, aerr
	}

	dflt, derr := client.GetAWSDefaultServiceQuota(ctx, &servicequotas.GetAWSDefaultServiceQuotaInput{
		ServiceCode: awssdk.String(def.Service),
		QuotaCode:   awssdk.String(def.Code),
	})
	recordAPI(def.Service, "GetAWSDefaultServiceQuota", derr)
	if derr == nil && dflt.Quota != nil && dflt.Quota.Value != nil {
		return *dflt.Quota.Value, nil
	}
	if derr != nil && !common.IsNotApplicable(derr) {
		return 0, derr
	}

	if def.DefaultLimit != nil {
		a.log.Debugf("配额 %s 两级查询无结果，使用配置默认限额 %v", def.Code, *def.DefaultLimit)
		return *def.DefaultLimit, nil
	}

	// 保留 NoSuchResourceException 语义，调用方据此记录缺失而非失败
	if aerr != nil {
		return 0, aerr
	}
	if derr != nil {
		return 0, derr
	}
	return 0, fmt.Errorf("配额 %s/%s 无可用限额值", def.Service, def.Code)
}
