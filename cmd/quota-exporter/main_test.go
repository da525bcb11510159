package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quota-exporter/internal/collector"
	"quota-exporter/internal/config"
	"quota-exporter/internal/scheduler"
)

type stubCollector struct{}

func (stubCollector) Collect(ctx context.Context, kind collector.Kind, refresh bool) (collector.PassResult, error) {
	return collector.PassResult{Kind: kind}, nil
}

func (stubCollector) CollectFiltered(ctx context.Context, kind collector.Kind, service string, refresh bool) (collector.PassResult, error) {
	return collector.PassResult{Kind: kind}, nil
}

func TestServerAddr(t *testing.T) {
	cfg := &config.Config{Server: &config.ServerConf{Port: 9100}}
	if got := serverAddr(cfg); got != ":9100" {
		t.Fatalf("config port: %s", got)
	}

	t.Setenv("EXPORTER_PORT", "9200")
	if got := serverAddr(cfg); got != ":9200" {
		t.Fatalf("env override: %s", got)
	}

	t.Setenv("EXPORTER_PORT", "")
	if got := serverAddr(&config.Config{}); got != ":9100" {
		t.Fatalf("default port: %s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := &config.Config{Collection: &config.CollectionConf{
		WorkerPoolSize:       3,
		LimitRefreshInterval: "1d",
		UsageRefreshInterval: "1h",
	}}

	t.Setenv("WORKER_POOL_SIZE", "8")
	t.Setenv("LIMIT_REFRESH_INTERVAL", "12h")
	t.Setenv("USAGE_REFRESH_INTERVAL", "30m")
	applyEnvOverrides(cfg)
	if cfg.WorkerPool() != 8 {
		t.Fatalf("worker pool override: %d", cfg.WorkerPool())
	}
	if got := cfg.LimitRefreshInterval(); got != 12*time.Hour {
		t.Fatalf("limit interval override: %v", got)
	}
	if got := cfg.UsageRefreshInterval(); got != 30*time.Minute {
		t.Fatalf("usage interval override: %v", got)
	}

	// 无效值不生效，沿用已有配置
	t.Setenv("WORKER_POOL_SIZE", "lots")
	t.Setenv("LIMIT_REFRESH_INTERVAL", "soon")
	applyEnvOverrides(cfg)
	if cfg.WorkerPool() != 8 {
		t.Fatalf("invalid pool env must be ignored: %d", cfg.WorkerPool())
	}
	if got := cfg.LimitRefreshInterval(); got != 12*time.Hour {
		t.Fatalf("invalid interval env must be ignored: %v", got)
	}

	// Collection 为空时就地补全
	empty := &config.Config{}
	t.Setenv("WORKER_POOL_SIZE", "2")
	applyEnvOverrides(empty)
	if empty.WorkerPool() != 2 {
		t.Fatalf("override on empty collection: %d", empty.WorkerPool())
	}
}

func TestCollectAuthPairs(t *testing.T) {
	cfg := &config.Config{Server: &config.ServerConf{AdminAuthEnabled: false}}
	if pairs := collectAuthPairs(cfg); len(pairs) != 0 {
		t.Fatalf("disabled auth must yield no pairs: %v", pairs)
	}

	cfg.Server.AdminAuthEnabled = true
	cfg.Server.AdminAuth = []config.BasicAuth{{Username: "u", Password: "p"}}
	pairs := collectAuthPairs(cfg)
	if len(pairs) != 1 || pairs[0].Username != "u" {
		t.Fatalf("config pairs mismatch: %v", pairs)
	}

	t.Setenv("ADMIN_AUTH_ENABLED", "true")
	t.Setenv("ADMIN_AUTH", "ops:secret")
	pairs = collectAuthPairs(cfg)
	if len(pairs) != 1 || pairs[0].Username != "ops" || pairs[0].Password != "secret" {
		t.Fatalf("env pairs must win: %v", pairs)
	}
}

func TestAuthWrapper(t *testing.T) {
	cfg := &config.Config{Server: &config.ServerConf{
		AdminAuthEnabled: true,
		AdminAuth:        []config.BasicAuth{{Username: "admin", Password: "s3cret"}},
	}}
	wrapped := createAuthWrapper(cfg)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	wrapped(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing creds: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	wrapped(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong creds: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/status", nil)
	req.SetBasicAuth("admin", "s3cret")
	rec = httptest.NewRecorder()
	wrapped(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("good creds: %d", rec.Code)
	}
}

func TestHandleReadyz(t *testing.T) {
	s := scheduler.New(stubCollector{}, time.Hour, time.Hour)
	handler := handleReadyz(s)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("must be 503 before warmup: %d", rec.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for !s.Ready() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !s.Ready() {
		t.Fatalf("scheduler did not warm up in time")
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("must be 200 after warmup: %d", rec.Code)
	}

	cancel()
	s.Stop()
}

func TestHandleCollectValidation(t *testing.T) {
	s := scheduler.New(stubCollector{}, time.Hour, time.Hour)
	handler := handleCollect(s)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/collect?kind=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus kind must be rejected: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/collect?kind=usage", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("valid kind must be accepted: %d body=%s", rec.Code, rec.Body.String())
	}
	s.Stop()
}
