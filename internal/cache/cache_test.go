package cache

import (
	"testing"
	"time"
)

type payload struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

func TestStoreSetGet(t *testing.T) {
	s := NewStore(time.Hour)
	if err := s.Set("k1", payload{Value: 256, Label: "vcpu"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got payload
	if !s.Get("k1", &got) {
		t.Fatal("Get should hit fresh entry")
	}
	if got.Value != 256 || got.Label != "vcpu" {
		t.Errorf("Get = %+v, want {256 vcpu}", got)
	}

	if s.Get("missing", &got) {
		t.Error("Get should miss unknown key")
	}
}

func TestStoreExpiredReadIsMiss(t *testing.T) {
	s := NewStore(time.Hour)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	if err := s.Set("k1", payload{Value: 10}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// TTL 内可读
	s.now = func() time.Time { return base.Add(59 * time.Minute) }
	if !s.Get("k1", nil) {
		t.Fatal("entry should be fresh before TTL")
	}

	// 到期后读取视为未命中，但条目不被驱逐
	s.now = func() time.Time { return base.Add(time.Hour) }
	if s.Get("k1", nil) {
		t.Error("expired entry should read as miss")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, expired entry should be retained", s.Len())
	}

	// GetStale 忽略 TTL，返回原始写入时间
	var got payload
	storedAt, ok := s.GetStale("k1", &got)
	if !ok {
		t.Fatal("GetStale should return retained entry")
	}
	if !storedAt.Equal(base) {
		t.Errorf("GetStale storedAt = %v, want %v", storedAt, base)
	}
	if got.Value != 10 {
		t.Errorf("GetStale value = %v, want 10", got.Value)
	}
}

func TestStoreZeroTTLNeverExpires(t *testing.T) {
	s := NewStore(0)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if err := s.Set("k1", payload{Value: 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.now = func() time.Time { return base.Add(1000 * time.Hour) }
	if !s.Get("k1", nil) {
		t.Error("zero TTL entry should never expire")
	}
}

func TestStoreOverwriteRefreshesTimestamp(t *testing.T) {
	s := NewStore(time.Hour)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if err := s.Set("k1", payload{Value: 1}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	if err := s.Set("k1", payload{Value: 2}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	storedAt, ok := s.GetStale("k1", nil)
	if !ok {
		t.Fatal("GetStale should hit")
	}
	if !storedAt.Equal(base.Add(30 * time.Minute)) {
		t.Errorf("storedAt = %v, want refresh time", storedAt)
	}

	var got payload
	s.Get("k1", &got)
	if got.Value != 2 {
		t.Errorf("value = %v, want 2 after overwrite", got.Value)
	}
}

func TestStoreDelete(t *testing.T) {
	s := NewStore(time.Hour)
	if err := s.Set("k1", 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.Delete("k1")
	if s.Get("k1", nil) {
		t.Error("deleted entry should miss")
	}
	if _, ok := s.GetStale("k1", nil); ok {
		t.Error("deleted entry should miss even via GetStale")
	}
}

func TestStorePurge(t *testing.T) {
	s := NewStore(time.Hour)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base.Add(-48 * time.Hour) }
	if err := s.Set("old", 1); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.now = func() time.Time { return base }
	if err := s.Set("fresh", 2); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if n := s.Purge(24 * time.Hour); n != 1 {
		t.Errorf("Purge removed %d entries, want 1", n)
	}
	if _, ok := s.GetStale("old", nil); ok {
		t.Error("purged entry should be gone")
	}
	if !s.Get("fresh", nil) {
		t.Error("fresh entry should survive purge")
	}
}

func TestKeysDisjoint(t *testing.T) {
	keys := []string{
		LimitKey("111122223333", "ap-southeast-1", "ec2", "L-1216C47A"),
		UsageKey("111122223333", "ap-southeast-1", "ec2", "L-1216C47A"),
		DiscoveryKey("111122223333", "ap-southeast-1", "sagemaker"),
		ActiveRegionsKey("111122223333"),
		DirectoryAccountsKey,
		DirectoryRegionsKey,
	}
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if seen[k] {
			t.Errorf("duplicate cache key %q", k)
		}
		seen[k] = true
	}

	if got := LimitKey("a", "r", "s", "c"); got != "limit/a/r/s/c" {
		t.Errorf("LimitKey = %q", got)
	}
	if got := UsageKey("a", "r", "s", "c"); got != "usage/a/r/s/c" {
		t.Errorf("UsageKey = %q", got)
	}
}
