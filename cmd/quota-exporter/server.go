package main

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quota-exporter/internal/collector"
	"quota-exporter/internal/config"
	"quota-exporter/internal/metrics"
	"quota-exporter/internal/scheduler"
)

// newHTTPServer 组装全部 HTTP 端点
//
//	/metrics  Prometheus 抓取
//	/healthz  存活检查，刷新轮长期缺席时标记 degraded
//	/readyz   就绪检查，回暖轮完成前返回 503
//	/collect  手动触发一轮异步采集（认证）
//	/status   采集状态与 API 调用统计（认证）
func newHTTPServer(cfg *config.Config, addr string, orch *collector.Orchestrator, sched *scheduler.Scheduler, sink *metrics.Sink) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", handleHealthz(cfg, sched))
	mux.HandleFunc("/readyz", handleReadyz(sched))

	authWrapper := createAuthWrapper(cfg)
	mux.HandleFunc("/collect", authWrapper(handleCollect(sched)))
	mux.HandleFunc("/status", authWrapper(handleStatus(orch, sink)))

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// serverAddr 返回监听地址（优先级：环境变量 > 配置文件 > 默认 9100）
func serverAddr(cfg *config.Config) string {
	port := getEnv("EXPORTER_PORT")
	if port == "" {
		if cfg.Server != nil && cfg.Server.Port > 0 {
			port = strconv.Itoa(cfg.Server.Port)
		} else {
			port = "9100"
		}
	}
	return ":" + port
}

// handleHealthz 存活检查：进程活着即返回 200
// 某一 kind 超过 1.5 个刷新周期没有成功轮时整体标记 degraded
func handleHealthz(cfg *config.Config, sched *scheduler.Scheduler) http.HandlerFunc {
	type passHealth struct {
		LastSuccess string `json:"last_success,omitempty"`
		Overdue     bool   `json:"overdue"`
	}
	intervals := map[collector.Kind]time.Duration{
		collector.KindLimit: cfg.LimitRefreshInterval(),
		collector.KindUsage: cfg.UsageRefreshInterval(),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Unix(),
		}
		passes := make(map[string]passHealth, len(intervals))
		for kind, interval := range intervals {
			ph := passHealth{}
			if at, ok := sched.LastSuccess(kind); ok {
				ph.LastSuccess = at.Format(time.RFC3339)
				ph.Overdue = time.Since(at) > interval+interval/2
			}
			if ph.Overdue {
				health["status"] = "degraded"
			}
			passes[string(kind)] = ph
		}
		health["passes"] = passes

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(health)
	}
}

// handleReadyz 就绪检查：回暖轮完成前返回 503，供就绪探针拦截流量
func handleReadyz(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !sched.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "warming-up"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}

// handleCollect 手动触发一轮异步采集
// kind 必填（limit 或 usage），service 可选；同 kind 正在采集时返回 409
func handleCollect(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := collector.ParseKind(r.URL.Query().Get("kind"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		service := r.URL.Query().Get("service")
		if err := sched.Trigger(kind, service); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "triggered",
			"kind":    string(kind),
			"service": service,
		})
	}
}

// handleStatus 返回采集状态、观测数量与 API 调用统计
func handleStatus(orch *collector.Orchestrator, sink *metrics.Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := struct {
			collector.Status
			Observations int               `json:"observations"`
			APIStats     []metrics.APIStat `json:"api_stats"`
		}{
			Status:       orch.GetStatus(),
			Observations: sink.Len(),
			APIStats:     metrics.GetAPIStats(),
		}
		bs, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(bs)
	}
}

// createAuthWrapper 创建 BasicAuth 认证包装器
// 未启用认证或没有账号对时直接返回原始处理器
func createAuthWrapper(cfg *config.Config) func(http.HandlerFunc) http.HandlerFunc {
	return func(h http.HandlerFunc) http.HandlerFunc {
		pairs := collectAuthPairs(cfg)
		if len(pairs) == 0 {
			return h
		}

		return func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="restricted"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// 常量时间比较防止时序攻击
			authed := false
			for _, pair := range pairs {
				if subtle.ConstantTimeCompare([]byte(u), []byte(pair.Username)) == 1 &&
					subtle.ConstantTimeCompare([]byte(p), []byte(pair.Password)) == 1 {
					authed = true
					break
				}
			}
			if !authed {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			h(w, r)
		}
	}
}

// collectAuthPairs 收集所有认证账号对（环境变量优先于配置文件）
func collectAuthPairs(cfg *config.Config) []config.BasicAuth {
	var pairs []config.BasicAuth

	if ev := getEnv("ADMIN_AUTH_ENABLED"); ev != "" {
		if ev == "1" || strings.EqualFold(ev, "true") || strings.EqualFold(ev, "yes") {
			if raw := getEnv("ADMIN_AUTH"); raw != "" {
				var xs []config.BasicAuth
				if json.Unmarshal([]byte(raw), &xs) == nil && len(xs) > 0 {
					pairs = append(pairs, xs...)
				} else {
					for _, seg := range strings.Split(raw, ",") {
						kv := strings.SplitN(strings.TrimSpace(seg), ":", 2)
						if len(kv) == 2 && kv[0] != "" {
							pairs = append(pairs, config.BasicAuth{
								Username: kv[0],
								Password: kv[1],
							})
						}
					}
				}
			}

			u := getEnv("ADMIN_USERNAME")
			p := getEnv("ADMIN_PASSWORD")
			if u != "" && p != "" {
				pairs = append(pairs, config.BasicAuth{Username: u, Password: p})
			}
		}
	}

	if len(pairs) == 0 && cfg.Server != nil && cfg.Server.AdminAuthEnabled {
		pairs = append(pairs, cfg.Server.AdminAuth...)
	}

	return pairs
}
