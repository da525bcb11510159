// 导出器主入口：加载配置与配额定义、连接 CMDB、恢复缓存、
// 启动双节拍调度并暴露 /metrics
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quota-exporter/internal/collector"
	"quota-exporter/internal/logger"
	"quota-exporter/internal/metrics"
	"quota-exporter/internal/providers/aws"
	"quota-exporter/internal/scheduler"
)

func main() {
	cfg, err := setupConfig()
	if err != nil {
		logger.Log.Fatalf("加载配置失败: %v", err)
	}
	defer logger.Sync()

	quotas, err := setupQuotas(cfg)
	if err != nil {
		logger.Log.Fatalf("加载配额定义失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	caches := setupCaches(cfg)

	dir, pg, err := setupDirectory(ctx, cfg, caches)
	if err != nil {
		logger.Log.Fatalf("初始化 CMDB 目录失败: %v", err)
	}
	defer pg.Close()

	prober := aws.NewProber(caches.Limits, cfg.ProberPool())
	sink := metrics.NewSink()

	orch, err := collector.New(cfg, quotas, dir, prober, caches, sink)
	if err != nil {
		logger.Log.Fatalf("初始化采集编排器失败: %v", err)
	}

	registerPrometheusMetrics(sink)

	sched := scheduler.New(orch, cfg.LimitRefreshInterval(), cfg.UsageRefreshInterval())
	sched.Start(ctx)

	srv := newHTTPServer(cfg, serverAddr(cfg), orch, sched, sink)
	go func() {
		logger.Log.Infof("服务启动，监听 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatalf("HTTP 服务异常退出: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Log.Infof("收到退出信号，开始优雅停机")

	// 先取消采集上下文，调度器等待在途轮次收尾
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnf("HTTP 服务关闭超时: %v", err)
	}

	// 最后一次落盘，重启后限额层可直接恢复
	caches.Limits.Stop()
	logger.Log.Infof("优雅停机完成")
}
