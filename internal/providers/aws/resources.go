package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"quota-exporter/internal/directory"
	"quota-exporter/internal/quota"
)

// resource-count 配额对应的 Describe 统计
const (
	quotaCodeCLB          = "L-E9E9831D" // Classic Load Balancers per region
	quotaCodeALB          = "L-53DA6B97" // Application Load Balancers per region
	quotaCodeNLB          = "L-69A177A2" // Network Load Balancers per region
	quotaCodeTargetGroups = "L-B22855CB" // Target groups per region
	quotaCodeS3Buckets    = "L-DC2B2D3D" // General purpose buckets
)

// resourceCountUsage 通过各服务的 Describe 调用直接统计资源数量
func (a *serviceAdapter) resourceCountUsage(ctx context.Context, creds directory.Credentials, region string, def quota.Definition) (float64, bool, error) {
	apiRegion := def.APIRegion(region)
	switch def.Code {
	case quotaCodeCLB:
		return countResult(a.countClassicLBs(ctx, creds, apiRegion))
	case quotaCodeALB:
		return countResult(a.countV2LBs(ctx, creds, apiRegion, elbv2types.LoadBalancerTypeEnumApplication))
	case quotaCodeNLB:
		return countResult(a.countV2LBs(ctx, creds, apiRegion, elbv2types.LoadBalancerTypeEnumNetwork))
	case quotaCodeTargetGroups:
		return countResult(a.countTargetGroups(ctx, creds, apiRegion))
	case quotaCodeS3Buckets:
		return countResult(a.countBuckets(ctx, creds, apiRegion))
	default:
		return 0, false, fmt.Errorf("配额 %s 没有对应的资源统计实现", def.Code)
	}
}

func countResult(n float64, err error) (float64, bool, error) {
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// countClassicLBs 统计经典负载均衡器数量
func (a *serviceAdapter) countClassicLBs(ctx context.Context, creds directory.Credentials, region string) (float64, error) {
	client, err := a.clients.NewELBClient(ctx, region, creds.AccessKeyID, creds.SecretAccessKey)
	if err != nil {
		return 0, err
	}

	count := 0
	paginator := elasticloadbalancing.NewDescribeLoadBalancersPaginator(client, &elasticloadbalancing.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		recordAPI(a.Service(), "DescribeLoadBalancers", err)
		if err != nil {
			return 0, err
		}
		count += len(page.LoadBalancerDescriptions)
	}
	return float64(count), nil
}

// countV2LBs 按类型统计 ALB/NLB 数量
func (a *serviceAdapter) countV2LBs(ctx context.Context, creds directory.Credentials, region string, lbType elbv2types.LoadBalancerTypeEnum) (float64, error) {
	client, err := a.clients.NewELBV2Client(ctx, region, creds.AccessKeyID, creds.SecretAccessKey)
	if err != nil {
		return 0, err
	}

	count := 0
	paginator := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(client, &elasticloadbalancingv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		recordAPI(a.Service(), "DescribeLoadBalancers", err)
		if err != nil {
			return 0, err
		}
		for _, lb := range page.LoadBalancers {
			if lb.Type == lbType {
				count++
			}
		}
	}
	return float64(count), nil
}

// countTargetGroups 统计目标组数量
func (a *serviceAdapter) countTargetGroups(ctx context.Context, creds directory.Credentials, region string) (float64, error) {
	client, err := a.clients.NewELBV2Client(ctx, region, creds.AccessKeyID, creds.SecretAccessKey)
	if err != nil {
		return 0, err
	}

	count := 0
	paginator := elasticloadbalancingv2.NewDescribeTargetGroupsPaginator(client, &elasticloadbalancingv2.DescribeTargetGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		recordAPI(a.Service(), "DescribeTargetGroups", err)
		if err != nil {
			return 0, err
		}
		count += len(page.TargetGroups)
	}
	return float64(count), nil
}

// countBuckets 统计 S3 桶数量
// ListBuckets 是全局接口，region 固定走 us-east-1
func (a *serviceAdapter) countBuckets(ctx context.Context, creds directory.Credentials, region string) (float64, error) {
	client, err := a.clients.NewS3Client(ctx, region, creds.AccessKeyID, creds.SecretAccessKey)
	if err != nil {
		return 0, err
	}

	out, err := client.ListBuckets(ctx, &s3.ListBucketsInput{})
	recordAPI(a.Service(), "ListBuckets", err)
	if err != nil {
		return 0, err
	}
	return float64(len(out.Buckets)), nil
}
