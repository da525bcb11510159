package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"quota-exporter/internal/logger"
)

// DurableStore 在 Store 基础上增加 JSON 落盘能力
// 写入采用临时文件 + rename 原子替换，崩溃不会留下半写文件
type DurableStore struct {
	*Store

	path      string
	saveMu    sync.Mutex
	stopChan  chan struct{}
	flushOnce sync.Once
	stopped   bool
	stopMu    sync.Mutex
}

// NewDurableStore 创建带落盘路径的缓存，目录不存在时自动创建
func NewDurableStore(ttl time.Duration, path string) *DurableStore {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			ctxLog := logger.NewContextLogger("Cache", "path", path)
			ctxLog.Warnf("创建缓存目录失败: %v", err)
		}
	}
	return &DurableStore{
		Store:    NewStore(ttl),
		path:     path,
		stopChan: make(chan struct{}),
	}
}

// Path 返回落盘文件路径
func (d *DurableStore) Path() string {
	return d.path
}

// persistedState 落盘文件结构
type persistedState struct {
	Entries   map[string]entry `json:"entries"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Load 从磁盘加载缓存，文件不存在时静默返回
func (d *DurableStore) Load() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			ctxLog := logger.NewContextLogger("Cache", "path", d.path)
			ctxLog.Infof("缓存文件不存在，以空缓存启动")
			return nil
		}
		return fmt.Errorf("read cache file %s: %w", d.path, err)
	}

	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("parse cache file %s: %w", d.path, err)
	}
	if st.Entries != nil {
		d.replace(st.Entries)
	}
	ctxLog := logger.NewContextLogger("Cache", "path", d.path)
	ctxLog.Infof("缓存加载完成，条目数=%d 上次保存=%s", len(st.Entries), st.UpdatedAt.Format(time.RFC3339))
	return nil
}

// Save 将当前快照原子写入磁盘
func (d *DurableStore) Save() error {
	d.saveMu.Lock()
	defer d.saveMu.Unlock()

	snap := d.snapshot()
	data, err := json.MarshalIndent(persistedState{
		Entries:   snap,
		UpdatedAt: time.Now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache state: %w", err)
	}

	tmp := d.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write cache tmp file: %w", err)
	}
	if err := os.Rename(tmp, d.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename cache file: %w", err)
	}

	ctxLog := logger.NewContextLogger("Cache", "path", d.path)
	ctxLog.Debugf("缓存已保存，条目数=%d", len(snap))
	return nil
}

// StartAutoFlush 启动定期落盘，重复调用只生效一次
func (d *DurableStore) StartAutoFlush(interval time.Duration) {
	d.flushOnce.Do(func() {
		if interval <= 0 {
			interval = 10 * time.Minute
		}
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-d.stopChan:
					return
				case <-ticker.C:
					if err := d.Save(); err != nil {
						ctxLog := logger.NewContextLogger("Cache", "path", d.path)
						ctxLog.Warnf("定期保存缓存失败: %v", err)
					}
				}
			}
		}()
	})
}

// Stop 停止定期落盘并执行最后一次保存
func (d *DurableStore) Stop() {
	d.stopMu.Lock()
	if d.stopped {
		d.stopMu.Unlock()
		return
	}
	d.stopped = true
	close(d.stopChan)
	d.stopMu.Unlock()

	if err := d.Save(); err != nil {
		ctxLog := logger.NewContextLogger("Cache", "path", d.path)
		ctxLog.Warnf("停止时保存缓存失败: %v", err)
	}
}

// Tiered 组合两档缓存：限额（长期、落盘）与用量（短期、内存）
type Tiered struct {
	// Limits 24h 档：限额、发现目录、目录快照、活跃区域
	Limits *DurableStore
	// Usage 1h 档：用量值
	Usage *Store
}

// NewTiered 按配置的 TTL 与落盘路径创建分层缓存
func NewTiered(limitTTL, usageTTL time.Duration, path string) *Tiered {
	return &Tiered{
		Limits: NewDurableStore(limitTTL, path),
		Usage:  NewStore(usageTTL),
	}
}
