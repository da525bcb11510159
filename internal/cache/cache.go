// Package cache 提供分层缓存：长期（24h，落盘）与短期（1h，内存）两档 TTL
//
// 两档缓存共享同一套 Get/Set 契约，仅 TTL 与持久化不同：
//   - 限额缓存：限额值、发现目录、目录快照、活跃区域集合，跨重启保留
//   - 用量缓存：用量值，进程生命周期内有效
//
// 过期读取视为未命中；刷新失败的条目不会被驱逐，
// 通过 GetStale 以原始写入时间继续提供最后已知值
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// entry 缓存条目：值以 JSON 原文保存，读取时反序列化到调用方类型
// 这样内存视图与落盘视图一致，重启加载后读取路径不变
type entry struct {
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"stored_at"`
}

// Store 单档 TTL 缓存，并发安全
type Store struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry

	// now 可在测试中替换以控制时间
	now func() time.Time
}

// NewStore 创建指定 TTL 的缓存
func NewStore(ttl time.Duration) *Store {
	return &Store{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// TTL 返回该档缓存的生命周期
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get 读取未过期的条目并反序列化到 out，过期视为未命中
func (s *Store) Get(key string, out interface{}) bool {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if s.ttl > 0 && s.now().Sub(e.StoredAt) >= s.ttl {
		return false
	}
	if out == nil {
		return true
	}
	if err := json.Unmarshal(e.Value, out); err != nil {
		return false
	}
	return true
}

// GetStale 读取条目而不检查 TTL，返回原始写入时间
// 用于刷新失败时继续提供最后已知值
func (s *Store) GetStale(key string, out interface{}) (time.Time, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	if out != nil {
		if err := json.Unmarshal(e.Value, out); err != nil {
			return time.Time{}, false
		}
	}
	return e.StoredAt, true
}

// Set 写入条目并盖上当前时间戳
func (s *Store) Set(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	s.mu.Lock()
	s.entries[key] = entry{Value: data, StoredAt: s.now()}
	s.mu.Unlock()
	return nil
}

// Delete 删除条目
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len 返回条目总数（含已过期未清理的）
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Purge 清理所有已过期条目，返回清理数量
// 过期条目默认保留以支撑 GetStale，仅在显式调用时回收
func (s *Store) Purge(olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-olderThan)
	n := 0
	for k, e := range s.entries {
		if e.StoredAt.Before(cutoff) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// snapshot 复制条目表用于持久化，避免序列化时长时间持锁
func (s *Store) snapshot() map[string]entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// replace 以加载的条目表整体替换当前内容
func (s *Store) replace(entries map[string]entry) {
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
}
