package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

// 配额指标的标签集合
var quotaLabels = []string{"provider", "account_id", "region", "service", "quota_name", "quota_code"}

// QuotaCollector 实现 prometheus.Collector，抓取时从 Sink 读出观测
// 使用率在读取时计算，避免限额与用量各自过期造成的偏差
type QuotaCollector struct {
	sink *Sink

	limitDesc   *prometheus.Desc
	usageDesc   *prometheus.Desc
	percentDesc *prometheus.Desc
}

// NewQuotaCollector 创建配额指标收集器
func NewQuotaCollector(sink *Sink) *QuotaCollector {
	return &QuotaCollector{
		sink: sink,
		limitDesc: prometheus.NewDesc(
			"cloud_service_quota_limit",
			" - 云服务配额限额",
			quotaLabels, nil,
		),
		usageDesc: prometheus.NewDesc(
			"cloud_service_quota_usage",
			" - 云服务配额当前用量",
			quotaLabels, nil,
		),
		percentDesc: prometheus.NewDesc(
			"cloud_quota_usage_percent",
			" - 配额使用率（百分比），缺限额或用量时为 NaN",
			quotaLabels, nil,
		),
	}
}

// Describe 实现 prometheus.Collector
func (c *QuotaCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.limitDesc
	ch <- c.usageDesc
	ch <- c.percentDesc
}

// Collect 实现 prometheus.Collector
// 用量缺失时只省略 usage 样本，percent 输出 NaN，绝不补零
func (c *QuotaCollector) Collect(ch chan<- prometheus.Metric) {
	for _, o := range c.sink.Snapshot() {
		labels := []string{
			o.Provider,
			o.Key.AccountID,
			o.Key.Region,
			o.Key.Service,
			o.QuotaName,
			o.Key.QuotaCode,
		}

		if o.HasLimit {
			ch <- prometheus.MustNewConstMetric(c.limitDesc, prometheus.GaugeValue, o.Limit, labels...)
		}
		if o.HasUsage {
			ch <- prometheus.MustNewConstMetric(c.usageDesc, prometheus.GaugeValue, o.Usage, labels...)
		}

		percent := math.NaN()
		if o.HasLimit && o.HasUsage && o.Limit != 0 {
			percent = o.Usage / o.Limit * 100
		}
		ch <- prometheus.MustNewConstMetric(c.percentDesc, prometheus.GaugeValue, percent, labels...)
	}
}
