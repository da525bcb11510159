// 指标包：定义配额采集器自身的运行指标与配额观测值的暴露
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestTotal 云 API 请求次数，按服务、API、结果分类
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_exporter_request_total",
			Help: " - 云 API 请求次数统计",
		},
		[]string{"service", "api", "status"},
	)
	// ScrapeErrorsTotal 配额采集失败次数，error_type 为分类后的错误状态
	ScrapeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_exporter_scrape_errors_total",
			Help: " - 配额采集错误次数统计",
		},
		[]string{"service", "quota_code", "error_type"},
	)
	// ScrapeDuration 单个服务一次采集任务的耗时
	ScrapeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quota_exporter_scrape_duration_seconds",
			Help:    " - 配额采集任务耗时（秒）",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"service"},
	)
	// ScrapeSkippedTotal 被跳过的采集轮次数，reason 目前只有 overlap（上一轮未结束）
	ScrapeSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_exporter_scrape_skipped_total",
			Help: " - 配额采集跳过次数统计",
		},
		[]string{"kind", "reason"},
	)
	// PassDuration 全量采集轮次耗时，kind 为 limit 或 usage
	PassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quota_exporter_pass_duration_seconds",
			Help:    " - 采集轮次总耗时（秒）",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		},
		[]string{"kind"},
	)
	// PassTotal 采集轮次结果统计，result 为 success、partial、failed 或 skipped
	PassTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_exporter_pass_total",
			Help: " - 采集轮次结果统计",
		},
		[]string{"kind", "result"},
	)
	// CacheEntriesTotal 各层缓存当前条目数
	CacheEntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quota_exporter_cache_entries",
			Help: " - 缓存条目数量",
		},
		[]string{"tier"},
	)
	// CacheSizeBytes 限额缓存落盘文件大小
	CacheSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quota_exporter_cache_size_bytes",
			Help: " - 限额缓存文件大小（字节）",
		},
	)
)
