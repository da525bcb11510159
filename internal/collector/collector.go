// 采集编排器：把 账号 × 活跃区域 × 服务 展开为任务，在有界工作池内执行，
// 单个任务失败只记录、不中断同轮其他任务
package collector

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quota-exporter/internal/cache"
	"quota-exporter/internal/config"
	"quota-exporter/internal/directory"
	"quota-exporter/internal/logger"
	"quota-exporter/internal/metrics"
	"quota-exporter/internal/providers"
	_ "quota-exporter/internal/providers/aws"
	"quota-exporter/internal/providers/common"
)

// Kind 区分限额轮与用量轮
type Kind string

const (
	KindLimit Kind = "limit"
	KindUsage Kind = "usage"
)

// ParseKind 解析 HTTP 参数中的轮次类型
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindLimit, KindUsage:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown collection kind %q (must be limit or usage)", s)
	}
}

// RegionProber 返回账号实际活跃的区域集合
type RegionProber interface {
	ActiveRegions(ctx context.Context, accountID string, creds directory.Credentials, candidates []string) ([]string, error)
}

// PassStatus 某一 kind 最近一轮的运行概况
type PassStatus struct {
	LastStart time.Time `json:"last_start"`
	LastEnd   time.Time `json:"last_end"`
	Duration  string    `json:"duration"`
	Tasks     int       `json:"tasks"`
	Failed    int       `json:"failed"`
}

// AccountStat 单个账号在最近一轮中的结果
type AccountStat struct {
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"` // running, completed, partial, failed
	FailedTasks int       `json:"failed_tasks"`
}

// Status 采集状态汇总，/status 接口直接序列化返回
type Status struct {
	Passes      map[string]PassStatus  `json:"passes"`       // key: kind
	LastResults map[string]AccountStat `json:"last_results"` // key: kind|account_id
}

// PassResult 一轮采集的结果摘要
type PassResult struct {
	Kind     Kind          `json:"kind"`
	Tasks    int           `json:"tasks"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Orchestrator 持有目录、探测器、缓存与各服务适配器
type Orchestrator struct {
	cfg      *config.Config
	dynamic  map[string]bool
	dir      directory.Directory
	prober   RegionProber
	caches   *cache.Tiered
	sink     *metrics.Sink
	adapters map[string]providers.Adapter
	retry    common.RetryPolicy
	delay    time.Duration
	log      *logger.ContextLogger

	status     Status
	statusLock sync.RWMutex
}

// New 创建编排器并按配额配置实例化各服务适配器
// 没有注册适配器的服务会被跳过并告警，一个适配器都没有时报错
func New(cfg *config.Config, quotas *config.QuotaConfig, dir directory.Directory, prober RegionProber, caches *cache.Tiered, sink *metrics.Sink) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:      cfg,
		dynamic:  make(map[string]bool),
		dir:      dir,
		prober:   prober,
		caches:   caches,
		sink:     sink,
		adapters: make(map[string]providers.Adapter),
		retry: common.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts(),
			BaseDelay:   cfg.RetryBaseDelay(),
			MaxDelay:    cfg.RetryMaxDelay(),
			Multiplier:  cfg.RetryMultiplier(),
			Classifier:  common.AWSClassifier,
		},
		delay: cfg.InterCallDelay(),
		log:   logger.NewContextLogger("Orchestrator"),
		status: Status{
			Passes:      make(map[string]PassStatus),
			LastResults: make(map[string]AccountStat),
		},
	}

	for _, name := range quotas.ServiceNames() {
		svc := quotas.Services[name]
		factory, ok := providers.GetFactory(name)
		if !ok {
			o.log.Warnf("服务 %s 没有注册适配器，跳过", name)
			continue
		}
		adapter, err := factory(svc)
		if err != nil {
			return nil, fmt.Errorf("创建 %s 适配器失败: %w", name, err)
		}
		o.adapters[name] = adapter
		o.dynamic[name] = svc.Dynamic()
	}
	if len(o.adapters) == 0 {
		return nil, fmt.Errorf("没有任何可用的服务适配器")
	}
	return o, nil
}

// GetStatus 返回当前采集状态副本
func (o *Orchestrator) GetStatus() Status {
	o.statusLock.RLock()
	defer o.statusLock.RUnlock()

	passes := make(map[string]PassStatus, len(o.status.Passes))
	for k, v := range o.status.Passes {
		passes[k] = v
	}
	results := make(map[string]AccountStat, len(o.status.LastResults))
	for k, v := range o.status.LastResults {
		results[k] = v
	}
	return Status{Passes: passes, LastResults: results}
}

// Collect 执行一轮全量采集
// refresh 为 true 时绕过缓存读取（定时刷新轮使用），结果总是写穿缓存；
// 为 false 时新鲜缓存直接复用，用于启动回暖与手动触发
func (o *Orchestrator) Collect(ctx context.Context, kind Kind, refresh bool) (PassResult, error) {
	return o.collectInternal(ctx, kind, "", refresh)
}

// CollectFiltered 只采集单个服务，/collect?service= 触发
func (o *Orchestrator) CollectFiltered(ctx context.Context, kind Kind, service string, refresh bool) (PassResult, error) {
	if service != "" {
		if _, ok := o.adapters[service]; !ok {
			return PassResult{}, fmt.Errorf("service %s is not collected", service)
		}
	}
	return o.collectInternal(ctx, kind, service, refresh)
}

func (o *Orchestrator) collectInternal(ctx context.Context, kind Kind, filterService string, refresh bool) (PassResult, error) {
	start := time.Now()
	o.beginPass(kind, start)
	o.log.Infof("开始 %s 轮采集 refresh=%v service=%q", kind, refresh, filterService)

	tasks, err := o.buildTasks(ctx, kind, filterService)
	if err != nil {
		o.finishPass(kind, start, 0, 0)
		metrics.PassTotal.WithLabelValues(string(kind), "failed").Inc()
		return PassResult{Kind: kind}, err
	}

	var (
		mu     sync.Mutex
		failed int
		byAcct = make(map[string]int)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.WorkerPool())
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			if n := o.runTask(gctx, kind, t, refresh); n > 0 {
				mu.Lock()
				failed += n
				byAcct[t.account.AccountID] += n
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	for _, t := range tasks {
		if seen[t.account.AccountID] {
			continue
		}
		seen[t.account.AccountID] = true
		status := "completed"
		if byAcct[t.account.AccountID] > 0 {
			status = "partial"
		}
		o.markAccount(kind, t.account.AccountID, status, byAcct[t.account.AccountID])
	}

	o.finishPass(kind, start, len(tasks), failed)

	result := "success"
	switch {
	case len(tasks) > 0 && failed == len(tasks):
		result = "failed"
	case failed > 0:
		result = "partial"
	}
	metrics.PassTotal.WithLabelValues(string(kind), result).Inc()
	metrics.PassDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	o.log.Infof("%s 轮采集完成 tasks=%d failed=%d duration=%s", kind, len(tasks), failed, time.Since(start).Round(time.Millisecond))
	return PassResult{Kind: kind, Tasks: len(tasks), Failed: failed, Duration: time.Since(start)}, nil
}

func (o *Orchestrator) beginPass(kind Kind, start time.Time) {
	o.statusLock.Lock()
	ps := o.status.Passes[string(kind)]
	ps.LastStart = start
	o.status.Passes[string(kind)] = ps
	o.statusLock.Unlock()
}

func (o *Orchestrator) finishPass(kind Kind, start time.Time, tasks, failed int) {
	o.statusLock.Lock()
	ps := o.status.Passes[string(kind)]
	ps.LastEnd = time.Now()
	ps.Duration = time.Since(start).String()
	ps.Tasks = tasks
	ps.Failed = failed
	o.status.Passes[string(kind)] = ps
	o.statusLock.Unlock()

	metrics.CacheEntriesTotal.WithLabelValues("limit").Set(float64(o.caches.Limits.Len()))
	metrics.CacheEntriesTotal.WithLabelValues("usage").Set(float64(o.caches.Usage.Len()))
	if fi, err := os.Stat(o.caches.Limits.Path()); err == nil {
		metrics.CacheSizeBytes.Set(float64(fi.Size()))
	}
}

func (o *Orchestrator) markAccount(kind Kind, accountID, status string, failedTasks int) {
	o.statusLock.Lock()
	o.status.LastResults[string(kind)+"|"+accountID] = AccountStat{
		Timestamp:   time.Now(),
		Status:      status,
		FailedTasks: failedTasks,
	}
	o.statusLock.Unlock()
}

// pause 在相邻外部调用之间让出节奏，响应上下文取消
func (o *Orchestrator) pause(ctx context.Context) {
	if o.delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(o.delay):
	}
}
