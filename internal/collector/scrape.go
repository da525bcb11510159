package collector

import (
	"context"
	"time"

	"quota-exporter/internal/cache"
	"quota-exporter/internal/directory"
	"quota-exporter/internal/metrics"
	"quota-exporter/internal/providers/common"
	"quota-exporter/internal/quota"
)

// runTask 执行单个任务并返回失败条目数
// 错误只记录与计数，不向工作池传播
func (o *Orchestrator) runTask(ctx context.Context, kind Kind, t task, refresh bool) int {
	start := time.Now()
	defer func() {
		metrics.ScrapeDuration.WithLabelValues(t.service).Observe(time.Since(start).Seconds())
	}()

	defs, err := o.definitions(ctx, kind, t, refresh)
	if err != nil {
		class := common.ClassifyAWSError(err)
		metrics.ScrapeErrorsTotal.WithLabelValues(t.service, "discovery", class).Inc()
		o.log.Warnf("配额定义获取失败 account_id=%s region=%s service=%s type=%s: %v",
			t.account.AccountID, t.region, t.service, class, err)
		return 1
	}

	failed := 0
	for _, def := range defs {
		select {
		case <-ctx.Done():
			return failed
		default:
		}

		switch kind {
		case KindLimit:
			if !o.collectLimit(ctx, t, def, refresh) {
				failed++
			}
		case KindUsage:
			if def.UsageSource == quota.UsageSourceNone {
				continue
			}
			if !o.collectUsage(ctx, t, def, refresh) {
				failed++
			}
		}
	}
	return failed
}

// collectLimit 采集单条配额的限额，返回 false 表示失败
// 配额不适用（not_applicable）记录为缺失而非失败
func (o *Orchestrator) collectLimit(ctx context.Context, t task, def quota.Definition, refresh bool) bool {
	key := cache.LimitKey(t.account.AccountID, t.region, t.service, def.Code)
	sinkKey := metrics.Key{AccountID: t.account.AccountID, Region: t.region, Service: t.service, QuotaCode: def.Code}

	if !refresh {
		var v float64
		if o.caches.Limits.Get(key, &v) {
			at, _ := o.caches.Limits.GetStale(key, nil)
			o.sink.UpdateLimit(sinkKey, directory.ProviderAWS, def.Name, v, at)
			return true
		}
	}

	var value float64
	err := o.retry.Do(ctx, func() error {
		v, e := t.adapter.Limit(ctx, t.creds, t.region, def)
		if e != nil {
			return e
		}
		value = v
		return nil
	})
	o.pause(ctx)
	if err != nil {
		class := common.ClassifyAWSError(err)
		if class == common.ErrorStatusNotApplicable {
			o.log.Debugf("配额不适用 account_id=%s region=%s quota=%s", t.account.AccountID, t.region, def.Key())
			return true
		}
		metrics.ScrapeErrorsTotal.WithLabelValues(t.service, def.Code, class).Inc()
		o.log.Warnf("限额采集失败 account_id=%s region=%s quota=%s type=%s: %v",
			t.account.AccountID, t.region, def.Key(), class, err)
		return false
	}

	if err := o.caches.Limits.Set(key, value); err != nil {
		o.log.Warnf("限额缓存写入失败 key=%s: %v", key, err)
	}
	o.sink.UpdateLimit(sinkKey, directory.ProviderAWS, def.Name, value, time.Now())
	return true
}

// collectUsage 采集单条配额的用量，返回 false 表示失败
// 监控无数据点视为用量不可得，保留最后已知观测
func (o *Orchestrator) collectUsage(ctx context.Context, t task, def quota.Definition, refresh bool) bool {
	key := cache.UsageKey(t.account.AccountID, t.region, t.service, def.Code)
	sinkKey := metrics.Key{AccountID: t.account.AccountID, Region: t.region, Service: t.service, QuotaCode: def.Code}

	if !refresh {
		var v float64
		if o.caches.Usage.Get(key, &v) {
			at, _ := o.caches.Usage.GetStale(key, nil)
			o.sink.UpdateUsage(sinkKey, directory.ProviderAWS, def.Name, v, at, string(def.UsageSource))
			return true
		}
	}

	var (
		value   float64
		present bool
	)
	err := o.retry.Do(ctx, func() error {
		v, ok, e := t.adapter.Usage(ctx, t.creds, t.region, def)
		if e != nil {
			return e
		}
		value, present = v, ok
		return nil
	})
	o.pause(ctx)
	if err != nil {
		class := common.ClassifyAWSError(err)
		if class == common.ErrorStatusNotApplicable {
			o.log.Debugf("用量不适用 account_id=%s region=%s quota=%s", t.account.AccountID, t.region, def.Key())
			return true
		}
		metrics.ScrapeErrorsTotal.WithLabelValues(t.service, def.Code, class).Inc()
		o.log.Warnf("用量采集失败 account_id=%s region=%s quota=%s type=%s: %v",
			t.account.AccountID, t.region, def.Key(), class, err)
		return false
	}
	if !present {
		o.log.Debugf("用量不可得 account_id=%s region=%s quota=%s", t.account.AccountID, t.region, def.Key())
		return true
	}

	if err := o.caches.Usage.Set(key, value); err != nil {
		o.log.Warnf("用量缓存写入失败 key=%s: %v", key, err)
	}
	o.sink.UpdateUsage(sinkKey, directory.ProviderAWS, def.Name, value, time.Now(), string(def.UsageSource))
	return true
}
