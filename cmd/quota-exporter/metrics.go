package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"quota-exporter/internal/metrics"
)

// registerPrometheusMetrics 注册运行指标与配额观测收集器
func registerPrometheusMetrics(sink *metrics.Sink) {
	prometheus.MustRegister(metrics.NewQuotaCollector(sink))
	prometheus.MustRegister(metrics.RequestTotal)
	prometheus.MustRegister(metrics.ScrapeErrorsTotal)
	prometheus.MustRegister(metrics.ScrapeDuration)
	prometheus.MustRegister(metrics.ScrapeSkippedTotal)
	prometheus.MustRegister(metrics.PassDuration)
	prometheus.MustRegister(metrics.PassTotal)
	prometheus.MustRegister(metrics.CacheEntriesTotal)
	prometheus.MustRegister(metrics.CacheSizeBytes)
}
