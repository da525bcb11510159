// Package scheduler 以两路独立节拍驱动采集：限额 24h 一轮，用量 1h 一轮
//
// 同一 kind 的轮次不重叠：上一轮未结束时跳过本轮并计数，不排队积压。
// 启动时先做回暖轮（限额在前，保证用量上线时已有对应限额），
// 回暖完成后才进入就绪状态
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"quota-exporter/internal/collector"
	"quota-exporter/internal/logger"
	"quota-exporter/internal/metrics"
)

// Collector 是调度器驱动的采集入口
type Collector interface {
	Collect(ctx context.Context, kind collector.Kind, refresh bool) (collector.PassResult, error)
	CollectFiltered(ctx context.Context, kind collector.Kind, service string, refresh bool) (collector.PassResult, error)
}

// Scheduler 持有两路定时循环与重叠保护状态
type Scheduler struct {
	orch          Collector
	limitInterval time.Duration
	usageInterval time.Duration
	log           *logger.ContextLogger

	limitRunning atomic.Bool
	usageRunning atomic.Bool
	ready        atomic.Bool

	mu          sync.Mutex
	lastSuccess map[collector.Kind]time.Time

	baseCtx   context.Context
	startOnce sync.Once
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New 创建调度器，interval 非法时回退默认节拍
func New(orch Collector, limitInterval, usageInterval time.Duration) *Scheduler {
	if limitInterval <= 0 {
		limitInterval = 24 * time.Hour
	}
	if usageInterval <= 0 {
		usageInterval = time.Hour
	}
	return &Scheduler{
		orch:          orch,
		limitInterval: limitInterval,
		usageInterval: usageInterval,
		log:           logger.NewContextLogger("Scheduler"),
		lastSuccess:   make(map[collector.Kind]time.Time),
		stopChan:      make(chan struct{}),
	}
}

// Start 启动回暖轮与两路定时循环，重复调用只生效一次
// 回暖轮 refresh=false：缓存仍新鲜的条目直接回灌指标，不打云 API
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.baseCtx = ctx
		s.log.Infof("启动采集调度，限额周期=%v 用量周期=%v", s.limitInterval, s.usageInterval)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.tryPass(ctx, collector.KindLimit, false)
			s.tryPass(ctx, collector.KindUsage, false)
			if ctx.Err() != nil {
				return
			}
			s.ready.Store(true)
			s.log.Infof("初始回暖完成，进入定时刷新")
		}()

		s.wg.Add(2)
		go s.loop(ctx, collector.KindLimit, s.limitInterval)
		go s.loop(ctx, collector.KindUsage, s.usageInterval)
	})
}

// Stop 停止定时循环并等待在途轮次退出
// 依赖调用方先取消 Start 传入的上下文，在途任务才能尽快收尾
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
	s.log.Infof("采集调度已停止")
}

// Ready 回暖轮是否已完成，/readyz 由此判定
func (s *Scheduler) Ready() bool {
	return s.ready.Load()
}

// LastSuccess 返回指定 kind 最近一次全量成功轮的时间
func (s *Scheduler) LastSuccess(kind collector.Kind) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastSuccess[kind]
	return t, ok
}

// Trigger 手动触发一轮异步采集（/collect 接口）
// 复用与定时轮相同的重叠保护；同 kind 正在采集时返回错误。
// 手动轮 refresh=false，新鲜缓存直接复用
func (s *Scheduler) Trigger(kind collector.Kind, service string) error {
	running := s.running(kind)
	if !running.CompareAndSwap(false, true) {
		return fmt.Errorf("%s collection already in progress", kind)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer running.Store(false)

		ctx := s.passContext()
		res, err := s.orch.CollectFiltered(ctx, kind, service, false)
		if err != nil {
			s.log.Warnf("手动 %s 轮失败 service=%q: %v", kind, service, err)
			return
		}
		if service == "" {
			s.noteSuccess(kind)
		}
		s.log.Infof("手动 %s 轮完成 service=%q tasks=%d failed=%d", kind, service, res.Tasks, res.Failed)
	}()
	return nil
}

// loop 单一 kind 的定时循环，节拍到来时执行刷新轮
func (s *Scheduler) loop(ctx context.Context, kind collector.Kind, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Infof("%s 刷新循环收到停止信号，退出", kind)
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			if !s.tryPass(ctx, kind, true) {
				s.log.Warnf("上一轮 %s 采集尚未结束，跳过本轮", kind)
				metrics.ScrapeSkippedTotal.WithLabelValues(string(kind), "overlap").Inc()
				metrics.PassTotal.WithLabelValues(string(kind), "skipped").Inc()
			}
		}
	}
}

// tryPass 在重叠保护下执行一轮全量采集
// 返回 false 表示同 kind 的上一轮仍在运行，本轮未执行
func (s *Scheduler) tryPass(ctx context.Context, kind collector.Kind, refresh bool) bool {
	running := s.running(kind)
	if !running.CompareAndSwap(false, true) {
		return false
	}
	defer running.Store(false)

	if ctx.Err() != nil {
		return true
	}
	if _, err := s.orch.Collect(ctx, kind, refresh); err != nil {
		s.log.Warnf("%s 轮执行失败: %v", kind, err)
		return true
	}
	s.noteSuccess(kind)
	return true
}

func (s *Scheduler) running(kind collector.Kind) *atomic.Bool {
	if kind == collector.KindLimit {
		return &s.limitRunning
	}
	return &s.usageRunning
}

func (s *Scheduler) noteSuccess(kind collector.Kind) {
	s.mu.Lock()
	s.lastSuccess[kind] = time.Now()
	s.mu.Unlock()
}

func (s *Scheduler) passContext() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}
