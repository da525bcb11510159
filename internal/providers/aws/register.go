package aws

import (
	"quota-exporter/internal/providers"
)

// DefaultServices 默认监控的 AWS 服务
var DefaultServices = []string{
	"ec2",
	"ebs",
	"elasticloadbalancing",
	"eks",
	"elasticache",
	"route53",
	"cloudfront",
	"sagemaker",
	"s3",
}

func init() {
	for _, service := range DefaultServices {
		providers.Register(service, NewAdapter)
	}
}
