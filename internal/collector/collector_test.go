package collector

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"quota-exporter/internal/cache"
	"quota-exporter/internal/config"
	"quota-exporter/internal/directory"
	"quota-exporter/internal/logger"
	"quota-exporter/internal/metrics"
	"quota-exporter/internal/providers"
	"quota-exporter/internal/providers/common"
	"quota-exporter/internal/quota"
)

type fakeDirectory struct {
	accounts []directory.Account
	regions  []string
	err      error
}

func (f *fakeDirectory) Accounts(ctx context.Context) ([]directory.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts, nil
}

func (f *fakeDirectory) Credentials(ctx context.Context, accountID string) (directory.Credentials, error) {
	if f.err != nil {
		return directory.Credentials{}, f.err
	}
	return directory.Credentials{AccessKeyID: "ak", SecretAccessKey: "sk"}, nil
}

func (f *fakeDirectory) CandidateRegions(ctx context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.regions, nil
}

type fakeProber struct {
	active []string
}

func (f *fakeProber) ActiveRegions(ctx context.Context, accountID string, creds directory.Credentials, candidates []string) ([]string, error) {
	return f.active, nil
}

// fakeAdapter 可编排的服务适配器：limitErrs 依次弹出，用尽后成功
type fakeAdapter struct {
	service string
	scope   quota.Scope
	defs    []quota.Definition
	limit   float64
	usage   float64
	usageOK bool

	limitErrs []error
	usageErr  error
	blockMS   int

	mu         sync.Mutex
	defsCalls  int
	limitCalls int
	usageCalls int
	active     int
	maxActive  int
}

func (f *fakeAdapter) Service() string    { return f.service }
func (f *fakeAdapter) Scope() quota.Scope { return f.scope }

func (f *fakeAdapter) Definitions(ctx context.Context, creds directory.Credentials, region string) ([]quota.Definition, error) {
	f.mu.Lock()
	f.defsCalls++
	f.mu.Unlock()
	return f.defs, nil
}

func (f *fakeAdapter) Limit(ctx context.Context, creds directory.Credentials, region string, def quota.Definition) (float64, error) {
	f.mu.Lock()
	f.limitCalls++
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	var err error
	if len(f.limitErrs) > 0 {
		err = f.limitErrs[0]
		f.limitErrs = f.limitErrs[1:]
	}
	f.mu.Unlock()

	if f.blockMS > 0 {
		time.Sleep(time.Duration(f.blockMS) * time.Millisecond)
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if err != nil {
		return 0, err
	}
	return f.limit, nil
}

func (f *fakeAdapter) Usage(ctx context.Context, creds directory.Credentials, region string, def quota.Definition) (float64, bool, error) {
	f.mu.Lock()
	f.usageCalls++
	f.mu.Unlock()
	if f.usageErr != nil {
		return 0, false, f.usageErr
	}
	return f.usage, f.usageOK, nil
}

func regionalDef(service, code string, src quota.UsageSource) quota.Definition {
	return quota.Definition{Service: service, Code: code, Name: code + " name", Scope: quota.ScopeRegional, UsageSource: src}
}

func newTestOrchestrator(t *testing.T, dir directory.Directory, prober RegionProber, adapters map[string]providers.Adapter) *Orchestrator {
	t.Helper()
	dynamic := make(map[string]bool, len(adapters))
	for name := range adapters {
		dynamic[name] = false
	}
	return &Orchestrator{
		cfg:      &config.Config{Collection: &config.CollectionConf{WorkerPoolSize: 2}},
		dynamic:  dynamic,
		dir:      dir,
		prober:   prober,
		caches:   cache.NewTiered(time.Hour, time.Hour, filepath.Join(t.TempDir(), "cache.json")),
		sink:     metrics.NewSink(),
		adapters: adapters,
		retry: common.RetryPolicy{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    10 * time.Millisecond,
			Multiplier:  2,
			Classifier:  common.AWSClassifier,
		},
		delay: time.Millisecond,
		log:   logger.NewContextLogger("Orchestrator"),
		status: Status{
			Passes:      make(map[string]PassStatus),
			LastResults: make(map[string]AccountStat),
		},
	}
}

func TestCollectLimitPass(t *testing.T) {
	dir := &fakeDirectory{
		accounts: []directory.Account{{Provider: directory.ProviderAWS, AccountID: "111122223333"}},
		regions:  []string{"us-east-1", "eu-west-1"},
	}
	regional := &fakeAdapter{
		service: "ec2", scope: quota.ScopeRegional, limit: 512,
		defs: []quota.Definition{regionalDef("ec2", "L-1216C47A", quota.UsageSourceNone)},
	}
	global := &fakeAdapter{
		service: "cloudfront", scope: quota.ScopeGlobal, limit: 200,
		defs: []quota.Definition{{Service: "cloudfront", Code: "L-24B04930", Name: "Distributions", Scope: quota.ScopeGlobal, UsageSource: quota.UsageSourceNone}},
	}
	o := newTestOrchestrator(t, dir, &fakeProber{active: []string{"us-east-1", "eu-west-1"}},
		map[string]providers.Adapter{"ec2": regional, "cloudfront": global})

	res, err := o.Collect(context.Background(), KindLimit, true)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if res.Tasks != 3 || res.Failed != 0 {
		t.Fatalf("pass result mismatch: %+v", res)
	}

	obs, ok := o.sink.Get(metrics.Key{AccountID: "111122223333", Region: "us-east-1", Service: "ec2", QuotaCode: "L-1216C47A"})
	if !ok || !obs.HasLimit || obs.Limit != 512 {
		t.Fatalf("regional observation mismatch: %+v ok=%v", obs, ok)
	}
	obs, ok = o.sink.Get(metrics.Key{AccountID: "111122223333", Region: "global", Service: "cloudfront", QuotaCode: "L-24B04930"})
	if !ok || !obs.HasLimit || obs.Limit != 200 {
		t.Fatalf("global observation must use region sentinel: %+v ok=%v", obs, ok)
	}

	var cached float64
	if !o.caches.Limits.Get(cache.LimitKey("111122223333", "global", "cloudfront", "L-24B04930"), &cached) || cached != 200 {
		t.Fatalf("limit must be written through to cache, got=%v", cached)
	}
}

func TestCollectFailureIsolation(t *testing.T) {
	dir := &fakeDirectory{
		accounts: []directory.Account{{Provider: directory.ProviderAWS, AccountID: "111122223333"}},
		regions:  []string{"us-east-1"},
	}
	broken := &fakeAdapter{
		service: "eks", scope: quota.ScopeRegional,
		defs:      []quota.Definition{regionalDef("eks", "L-1194D53C", quota.UsageSourceNone)},
		limitErrs: []error{errors.New("boom"), errors.New("boom")},
	}
	healthy := &fakeAdapter{
		service: "ec2", scope: quota.ScopeRegional, limit: 64,
		defs: []quota.Definition{regionalDef("ec2", "L-1216C47A", quota.UsageSourceNone)},
	}
	o := newTestOrchestrator(t, dir, &fakeProber{active: []string{"us-east-1"}},
		map[string]providers.Adapter{"eks": broken, "ec2": healthy})

	res, err := o.Collect(context.Background(), KindLimit, true)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if res.Failed != 1 {
		t.Fatalf("expected exactly one failed entry, got=%d", res.Failed)
	}

	if _, ok := o.sink.Get(metrics.Key{AccountID: "111122223333", Region: "us-east-1", Service: "ec2", QuotaCode: "L-1216C47A"}); !ok {
		t.Fatalf("healthy service must still be collected")
	}
	if _, ok := o.sink.Get(metrics.Key{AccountID: "111122223333", Region: "us-east-1", Service: "eks", QuotaCode: "L-1194D53C"}); ok {
		t.Fatalf("failed entry must not reach the sink")
	}

	st := o.GetStatus()
	acct := st.LastResults["limit|111122223333"]
	if acct.Status != "partial" || acct.FailedTasks != 1 {
		t.Fatalf("account stat mismatch: %+v", acct)
	}
}

func TestCollectUsagePass(t *testing.T) {
	dir := &fakeDirectory{
		accounts: []directory.Account{{Provider: directory.ProviderAWS, AccountID: "111122223333"}},
		regions:  []string{"us-east-1"},
	}
	ad := &fakeAdapter{
		service: "ec2", scope: quota.ScopeRegional, usage: 42, usageOK: true,
		defs: []quota.Definition{
			regionalDef("ec2", "L-1216C47A", quota.UsageSourceCloudWatch),
			regionalDef("ec2", "L-0263D0A3", quota.UsageSourceNone),
		},
	}
	o := newTestOrchestrator(t, dir, &fakeProber{active: []string{"us-east-1"}},
		map[string]providers.Adapter{"ec2": ad})

	res, err := o.Collect(context.Background(), KindUsage, true)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if res.Failed != 0 {
		t.Fatalf("unexpected failures: %+v", res)
	}
	if ad.usageCalls != 1 {
		t.Fatalf("usage_source=none must be skipped, calls=%d", ad.usageCalls)
	}

	obs, ok := o.sink.Get(metrics.Key{AccountID: "111122223333", Region: "us-east-1", Service: "ec2", QuotaCode: "L-1216C47A"})
	if !ok || !obs.HasUsage || obs.Usage != 42 {
		t.Fatalf("usage observation mismatch: %+v ok=%v", obs, ok)
	}
	if _, ok := o.sink.Get(metrics.Key{AccountID: "111122223333", Region: "us-east-1", Service: "ec2", QuotaCode: "L-0263D0A3"}); ok {
		t.Fatalf("none-source quota must not appear in sink")
	}
}

func TestCollectServesCachedLimit(t *testing.T) {
	dir := &fakeDirectory{
		accounts: []directory.Account{{Provider: directory.ProviderAWS, AccountID: "111122223333"}},
		regions:  []string{"us-east-1"},
	}
	ad := &fakeAdapter{
		service: "ec2", scope: quota.ScopeRegional, limit: 99,
		defs: []quota.Definition{regionalDef("ec2", "L-1216C47A", quota.UsageSourceNone)},
	}
	o := newTestOrchestrator(t, dir, &fakeProber{active: []string{"us-east-1"}},
		map[string]providers.Adapter{"ec2": ad})

	key := cache.LimitKey("111122223333", "us-east-1", "ec2", "L-1216C47A")
	if err := o.caches.Limits.Set(key, 512.0); err != nil {
		t.Fatalf("cache seed error: %v", err)
	}

	if _, err := o.Collect(context.Background(), KindLimit, false); err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if ad.limitCalls != 0 {
		t.Fatalf("fresh cache must suppress the API call, calls=%d", ad.limitCalls)
	}
	obs, ok := o.sink.Get(metrics.Key{AccountID: "111122223333", Region: "us-east-1", Service: "ec2", QuotaCode: "L-1216C47A"})
	if !ok || obs.Limit != 512 {
		t.Fatalf("cached value must reach the sink: %+v ok=%v", obs, ok)
	}
}

func TestCollectRefreshBypassesCache(t *testing.T) {
	dir := &fakeDirectory{
		accounts: []directory.Account{{Provider: directory.ProviderAWS, AccountID: "111122223333"}},
		regions:  []string{"us-east-1"},
	}
	ad := &fakeAdapter{
		service: "ec2", scope: quota.ScopeRegional, limit: 99,
		defs: []quota.Definition{regionalDef("ec2", "L-1216C47A", quota.UsageSourceNone)},
	}
	o := newTestOrchestrator(t, dir, &fakeProber{active: []string{"us-east-1"}},
		map[string]providers.Adapter{"ec2": ad})

	key := cache.LimitKey("111122223333", "us-east-1", "ec2", "L-1216C47A")
	if err := o.caches.Limits.Set(key, 512.0); err != nil {
		t.Fatalf("cache seed error: %v", err)
	}

	if _, err := o.Collect(context.Background(), KindLimit, true); err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if ad.limitCalls != 1 {
		t.Fatalf("refresh must bypass cache reads, calls=%d", ad.limitCalls)
	}

	var cached float64
	if !o.caches.Limits.Get(key, &cached) || cached != 99 {
		t.Fatalf("refresh must write through, cached=%v", cached)
	}
}

func TestCollectBoundedConcurrency(t *testing.T) {
	dir := &fakeDirectory{
		accounts: []directory.Account{{Provider: directory.ProviderAWS, AccountID: "111122223333"}},
		regions:  []string{"r1", "r2", "r3", "r4", "r5", "r6"},
	}
	ad := &fakeAdapter{
		service: "ec2", scope: quota.ScopeRegional, limit: 1, blockMS: 20,
		defs: []quota.Definition{regionalDef("ec2", "L-1216C47A", quota.UsageSourceNone)},
	}
	o := newTestOrchestrator(t, dir, &fakeProber{active: dir.regions},
		map[string]providers.Adapter{"ec2": ad})

	if _, err := o.Collect(context.Background(), KindLimit, true); err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if ad.maxActive > 2 {
		t.Fatalf("worker pool bound exceeded: max concurrent=%d", ad.maxActive)
	}
	if ad.limitCalls != 6 {
		t.Fatalf("all tasks must run, calls=%d", ad.limitCalls)
	}
}

func TestCollectThrottlingRetried(t *testing.T) {
	dir := &fakeDirectory{
		accounts: []directory.Account{{Provider: directory.ProviderAWS, AccountID: "111122223333"}},
		regions:  []string{"us-east-1"},
	}
	ad := &fakeAdapter{
		service: "ec2", scope: quota.ScopeRegional, limit: 7,
		defs:      []quota.Definition{regionalDef("ec2", "L-1216C47A", quota.UsageSourceNone)},
		limitErrs: []error{errors.New("Throttling: Rate exceeded")},
	}
	o := newTestOrchestrator(t, dir, &fakeProber{active: []string{"us-east-1"}},
		map[string]providers.Adapter{"ec2": ad})

	res, err := o.Collect(context.Background(), KindLimit, true)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if res.Failed != 0 {
		t.Fatalf("throttled call must succeed after retry: %+v", res)
	}
	if ad.limitCalls != 2 {
		t.Fatalf("expected one retry, calls=%d", ad.limitCalls)
	}
}

func TestCollectNotApplicableIsAbsence(t *testing.T) {
	dir := &fakeDirectory{
		accounts: []directory.Account{{Provider: directory.ProviderAWS, AccountID: "111122223333"}},
		regions:  []string{"us-east-1"},
	}
	ad := &fakeAdapter{
		service: "ebs", scope: quota.ScopeRegional,
		defs:      []quota.Definition{regionalDef("ebs", "L-D18FCD1D", quota.UsageSourceNone)},
		limitErrs: []error{errors.New("NoSuchResourceException: quota not found")},
	}
	o := newTestOrchestrator(t, dir, &fakeProber{active: []string{"us-east-1"}},
		map[string]providers.Adapter{"ebs": ad})

	res, err := o.Collect(context.Background(), KindLimit, true)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if res.Failed != 0 {
		t.Fatalf("not_applicable must not count as failure: %+v", res)
	}
	if _, ok := o.sink.Get(metrics.Key{AccountID: "111122223333", Region: "us-east-1", Service: "ebs", QuotaCode: "L-D18FCD1D"}); ok {
		t.Fatalf("absent quota must not appear in sink")
	}
}

func TestCollectDirectoryDown(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("connection refused")}
	ad := &fakeAdapter{service: "ec2", scope: quota.ScopeRegional}
	o := newTestOrchestrator(t, dir, &fakeProber{}, map[string]providers.Adapter{"ec2": ad})

	if _, err := o.Collect(context.Background(), KindLimit, true); err == nil {
		t.Fatalf("directory failure must fail the pass")
	}
}

func TestCollectFilteredUnknownService(t *testing.T) {
	dir := &fakeDirectory{accounts: []directory.Account{{AccountID: "1"}}, regions: []string{"us-east-1"}}
	ad := &fakeAdapter{service: "ec2", scope: quota.ScopeRegional}
	o := newTestOrchestrator(t, dir, &fakeProber{}, map[string]providers.Adapter{"ec2": ad})

	if _, err := o.CollectFiltered(context.Background(), KindLimit, "nosuch", false); err == nil {
		t.Fatalf("unknown service filter must error")
	}
}

func TestDiscoveryCatalogCached(t *testing.T) {
	dir := &fakeDirectory{
		accounts: []directory.Account{{Provider: directory.ProviderAWS, AccountID: "111122223333"}},
		regions:  []string{"us-east-1"},
	}
	ad := &fakeAdapter{
		service: "sagemaker", scope: quota.ScopeRegional, usage: 1, usageOK: true,
		defs: []quota.Definition{regionalDef("sagemaker", "L-AAAA0001", quota.UsageSourceNone)},
	}
	o := newTestOrchestrator(t, dir, &fakeProber{active: []string{"us-east-1"}},
		map[string]providers.Adapter{"sagemaker": ad})
	o.dynamic["sagemaker"] = true

	for i := 0; i < 2; i++ {
		if _, err := o.Collect(context.Background(), KindUsage, true); err != nil {
			t.Fatalf("Collect error: %v", err)
		}
	}
	if ad.defsCalls != 1 {
		t.Fatalf("usage passes must reuse the cached catalog, discovery calls=%d", ad.defsCalls)
	}

	// 限额刷新轮强制重新发现
	if _, err := o.Collect(context.Background(), KindLimit, true); err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if ad.defsCalls != 2 {
		t.Fatalf("limit refresh must re-discover, discovery calls=%d", ad.defsCalls)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("limit"); err != nil || k != KindLimit {
		t.Fatalf("parse limit: %v %v", k, err)
	}
	if k, err := ParseKind("usage"); err != nil || k != KindUsage {
		t.Fatalf("parse usage: %v %v", k, err)
	}
	if _, err := ParseKind("bogus"); err == nil {
		t.Fatalf("bogus kind must error")
	}
}
