package aws

import (
	"context"

	"quota-exporter/internal/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/servicequotas"
)

// API 接口只声明适配器用到的调用，SDK 客户端天然满足，测试中可替换为假实现

type ServiceQuotasAPI interface {
	GetServiceQuota(ctx context.Context, params *servicequotas.GetServiceQuotaInput, optFns ...func(*servicequotas.Options)) (*servicequotas.GetServiceQuotaOutput, error)
	GetAWSDefaultServiceQuota(ctx context.Context, params *servicequotas.GetAWSDefaultServiceQuotaInput, optFns ...func(*servicequotas.Options)) (*servicequotas.GetAWSDefaultServiceQuotaOutput, error)
	ListServiceQuotas(ctx context.Context, params *servicequotas.ListServiceQuotasInput, optFns ...func(*servicequotas.Options)) (*servicequotas.ListServiceQuotasOutput, error)
}

type CloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeRegions(ctx context.Context, params *ec2.DescribeRegionsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRegionsOutput, error)
}

type ELBAPI interface {
	DescribeLoadBalancers(ctx context.Context, params *elasticloadbalancing.DescribeLoadBalancersInput, optFns ...func(*elasticloadbalancing.Options)) (*elasticloadbalancing.DescribeLoadBalancersOutput, error)
}

type ELBV2API interface {
	DescribeLoadBalancers(ctx context.Context, params *elasticloadbalancingv2.DescribeLoadBalancersInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error)
	DescribeTargetGroups(ctx context.Context, params *elasticloadbalancingv2.DescribeTargetGroupsInput, optFns ...func(*elasticloadbalancingv2.Options)) (*elasticloadbalancingv2.DescribeTargetGroupsOutput, error)
}

type S3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
}

// ClientFactory 按区域和凭证创建各服务客户端
type ClientFactory interface {
	NewServiceQuotasClient(ctx context.Context, region, ak, sk string) (ServiceQuotasAPI, error)
	NewCloudWatchClient(ctx context.Context, region, ak, sk string) (CloudWatchAPI, error)
	NewEC2Client(ctx context.Context, region, ak, sk string) (EC2API, error)
	NewELBClient(ctx context.Context, region, ak, sk string) (ELBAPI, error)
	NewELBV2Client(ctx context.Context, region, ak, sk string) (ELBV2API, error)
	NewS3Client(ctx context.Context, region, ak, sk string) (S3API, error)
}

type defaultClientFactory struct{}

// 所有 SDK 客户端复用同一个带连接池的 HTTP 客户端
var sharedHTTPClient = utils.NewHTTPClient()

func (f *defaultClientFactory) loadCfg(ctx context.Context, region, ak, sk string) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ak, sk, "")),
		awsconfig.WithHTTPClient(sharedHTTPClient),
	)
}

func (f *defaultClientFactory) NewServiceQuotasClient(ctx context.Context, region, ak, sk string) (ServiceQuotasAPI, error) {
	cfg, err := f.loadCfg(ctx, region, ak, sk)
	if err != nil {
		return nil, err
	}
	return servicequotas.NewFromConfig(cfg), nil
}

func (f *defaultClientFactory) NewCloudWatchClient(ctx context.Context, region, ak, sk string) (CloudWatchAPI, error) {
	cfg, err := f.loadCfg(ctx, region, ak, sk)
	if err != nil {
		return nil, err
	}
	return cloudwatch.NewFromConfig(cfg), nil
}

func (f *defaultClientFactory) NewEC2Client(ctx context.Context, region, ak, sk string) (EC2API, error) {
	cfg, err := f.loadCfg(ctx, region, ak, sk)
	if err != nil {
		return nil, err
	}
	return ec2.NewFromConfig(cfg), nil
}

func (f *defaultClientFactory) NewELBClient(ctx context.Context, region, ak, sk string) (ELBAPI, error) {
	cfg, err := f.loadCfg(ctx, region, ak, sk)
	if err != nil {
		return nil, err
	}
	return elasticloadbalancing.NewFromConfig(cfg), nil
}

func (f *defaultClientFactory) NewELBV2Client(ctx context.Context, region, ak, sk string) (ELBV2API, error) {
	cfg, err := f.loadCfg(ctx, region, ak, sk)
	if err != nil {
		return nil, err
	}
	return elasticloadbalancingv2.NewFromConfig(cfg), nil
}

func (f *defaultClientFactory) NewS3Client(ctx context.Context, region, ak, sk string) (S3API, error) {
	cfg, err := f.loadCfg(ctx, region, ak, sk)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg), nil
}
