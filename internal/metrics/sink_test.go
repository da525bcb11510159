package metrics

import (
	"testing"
	"time"
)

func TestSinkLimitThenUsage(t *testing.T) {
	s := NewSink()
	k := Key{AccountID: "111122223333", Region: "ap-southeast-1", Service: "ec2", QuotaCode: "L-1216C47A"}

	limitAt := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	s.UpdateLimit(k, "aws", "Running On-Demand Standard instances", 512, limitAt)

	usageAt := limitAt.Add(30 * time.Minute)
	s.UpdateUsage(k, "aws", "Running On-Demand Standard instances", 128, usageAt, "cloudwatch")

	o, ok := s.Get(k)
	if !ok {
		t.Fatal("observation should exist")
	}
	if !o.HasLimit || o.Limit != 512 || !o.LimitAt.Equal(limitAt) {
		t.Errorf("limit side = %+v", o)
	}
	if !o.HasUsage || o.Usage != 128 || !o.UsageAt.Equal(usageAt) {
		t.Errorf("usage side = %+v", o)
	}
	if o.UsageSource != "cloudwatch" {
		t.Errorf("usage source = %q", o.UsageSource)
	}

	// 用量刷新不得触碰限额侧
	s.UpdateUsage(k, "aws", "", 130, usageAt.Add(time.Hour), "cloudwatch")
	o, _ = s.Get(k)
	if o.Limit != 512 || !o.LimitAt.Equal(limitAt) {
		t.Errorf("usage update clobbered limit side: %+v", o)
	}
	if o.Usage != 130 {
		t.Errorf("usage = %v, want 130", o.Usage)
	}
	// 空名称不覆盖已有名称
	if o.QuotaName != "Running On-Demand Standard instances" {
		t.Errorf("quota name lost: %q", o.QuotaName)
	}
}

func TestSinkUsageBeforeLimit(t *testing.T) {
	s := NewSink()
	k := Key{AccountID: "111122223333", Region: "global", Service: "s3", QuotaCode: "L-DC2B2D3D"}

	s.UpdateUsage(k, "aws", "General purpose buckets", 42, time.Now(), "resource-count")
	o, ok := s.Get(k)
	if !ok || o.HasLimit {
		t.Fatalf("usage-only observation = %+v", o)
	}
	if !o.HasUsage || o.Usage != 42 {
		t.Errorf("usage = %+v", o)
	}

	s.UpdateLimit(k, "aws", "General purpose buckets", 100, time.Now())
	o, _ = s.Get(k)
	if !o.HasLimit || o.Limit != 100 || !o.HasUsage || o.Usage != 42 {
		t.Errorf("both sides should be set: %+v", o)
	}
}

func TestSinkSnapshotIsolated(t *testing.T) {
	s := NewSink()
	for i, code := range []string{"L-1", "L-2", "L-3"} {
		k := Key{AccountID: "a", Region: "r", Service: "ec2", QuotaCode: code}
		s.UpdateLimit(k, "aws", code, float64(i), time.Now())
	}

	snap := s.Snapshot()
	if len(snap) != 3 || s.Len() != 3 {
		t.Fatalf("snapshot len = %d, sink len = %d", len(snap), s.Len())
	}

	// 修改副本不应影响存储
	snap[0].Limit = -1
	for _, o := range s.Snapshot() {
		if o.Limit == -1 {
			t.Error("snapshot mutation leaked into sink")
		}
	}
}

func TestRecordRequestStats(t *testing.T) {
	RecordRequest("servicequotas_test", "GetServiceQuota", "200")
	RecordRequest("servicequotas_test", "GetServiceQuota", "200")
	RecordRequest("servicequotas_test", "GetServiceQuota", "throttling")

	var found *APIStat
	for _, st := range GetAPIStats() {
		if st.Service == "servicequotas_test" && st.API == "GetServiceQuota" {
			stat := st
			found = &stat
			break
		}
	}
	if found == nil {
		t.Fatal("stat entry missing")
	}
	if found.Total != 3 {
		t.Errorf("Total = %d, want 3", found.Total)
	}
	if found.StatusCount["200"] != 2 || found.StatusCount["throttling"] != 1 {
		t.Errorf("StatusCount = %v", found.StatusCount)
	}
	if found.QPS1m <= 0 {
		t.Errorf("QPS1m = %v, want > 0 right after recording", found.QPS1m)
	}
}
