package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"quota-exporter/internal/directory"
	"quota-exporter/internal/quota"
)

// Usage 按配额定义的用量来源路由采集
// 第二个返回值为 false 表示用量不可得（来源为 none 或监控无数据点）
func (a *serviceAdapter) Usage(ctx context.Context, creds directory.Credentials, region string, def quota.Definition) (float64, bool, error) {
	switch def.UsageSource {
	case quota.UsageSourceCloudWatch:
		return a.cloudWatchUsage(ctx, creds, region, def)
	case quota.UsageSourceResourceCount:
		return a.resourceCountUsage(ctx, creds, region, def)
	default:
		return 0, false, nil
	}
}

// cloudWatchUsage 从 AWS/Usage 命名空间取最近 24 小时内的最新数据点
// 步长 300 秒，统计方式默认 Maximum
func (a *serviceAdapter) cloudWatchUsage(ctx context.Context, creds directory.Credentials, region string, def quota.Definition) (float64, bool, error) {
	if def.CloudWatch == nil {
		return 0, false, fmt.Errorf("配额 %s 缺少 CloudWatch 维度映射", def.Code)
	}

	client, err := a.clients.NewCloudWatchClient(ctx, def.APIRegion(region), creds.AccessKeyID, creds.SecretAccessKey)
	if err != nil {
		return 0, false, err
	}

	stat := def.CloudWatch.Statistic
	if stat == "" {
		stat = "Maximum"
	}

	endTime := time.Now()
	startTime := endTime.Add(-24 * time.Hour)

	out, err := client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  awssdk.String(def.CloudWatch.Namespace),
		MetricName: awssdk.String(def.CloudWatch.MetricName),
		Dimensions: buildDimensions(def.CloudWatch.Dimensions),
		StartTime:  &startTime,
		EndTime:    &endTime,
		Period:     awssdk.Int32(300),
		Statistics: []cwtypes.Statistic{cwtypes.Statistic(stat)},
	})
	recordAPI(def.Service, "GetMetricStatistics", err)
	if err != nil {
		return 0, false, err
	}

	latest := latestDatapoint(out.Datapoints)
	if latest == nil {
		a.log.Debugf("配额 %s 在 CloudWatch 无数据点 region=%s", def.Code, region)
		return 0, false, nil
	}
	return datapointValue(latest, stat), true, nil
}

// buildDimensions 按键排序构建维度列表，保证请求稳定
func buildDimensions(dims map[string]string) []cwtypes.Dimension {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]cwtypes.Dimension, 0, len(keys))
	for _, k := range keys {
		out = append(out, cwtypes.Dimension{
			Name:  awssdk.String(k),
			Value: awssdk.String(dims[k]),
		})
	}
	return out
}

// latestDatapoint 返回时间戳最新的数据点
func latestDatapoint(datapoints []cwtypes.Datapoint) *cwtypes.Datapoint {
	var latest *cwtypes.Datapoint
	for i := range datapoints {
		if datapoints[i].Timestamp == nil {
			continue
		}
		if latest == nil || datapoints[i].Timestamp.After(*latest.Timestamp) {
			latest = &datapoints[i]
		}
	}
	return latest
}

// datapointValue 按统计方式取数据点的值
func datapointValue(dp *cwtypes.Datapoint, stat string) float64 {
	switch stat {
	case "Average":
		if dp.Average != nil {
			return *dp.Average
		}
	case "Sum":
		if dp.Sum != nil {
			return *dp.Sum
		}
	case "Minimum":
		if dp.Minimum != nil {
			return *dp.Minimum
		}
	default:
		if dp.Maximum != nil {
			return *dp.Maximum
		}
	}
	return 0
}
