package metrics

import (
	"sync"
	"time"
)

// Key 唯一标识一个配额观测：账号 × 区域 × 服务 × 配额码
// global 服务的 Region 固定为 "global"
type Key struct {
	AccountID string `json:"account_id"`
	Region    string `json:"region"`
	Service   string `json:"service"`
	QuotaCode string `json:"quota_code"`
}

// Observation 最近一次成功采集的配额观测
// 限额与用量独立刷新，各自保留采集时间戳
type Observation struct {
	Key       Key    `json:"key"`
	Provider  string `json:"provider"`
	QuotaName string `json:"quota_name"`

	Limit    float64   `json:"limit"`
	HasLimit bool      `json:"has_limit"`
	LimitAt  time.Time `json:"limit_at"`

	Usage       float64   `json:"usage"`
	HasUsage    bool      `json:"has_usage"`
	UsageAt     time.Time `json:"usage_at"`
	UsageSource string    `json:"usage_source"`
}

// Sink 保存全部配额观测，写入方是采集任务，读取方是抓取请求
// 读取永远只能看到完整的历史观测，不会读到写了一半的值
type Sink struct {
	mu  sync.RWMutex
	obs map[Key]Observation
}

// NewSink 创建空的观测存储
func NewSink() *Sink {
	return &Sink{obs: make(map[Key]Observation)}
}

// UpdateLimit 写入限额观测，保留已有的用量侧数据
func (s *Sink) UpdateLimit(k Key, provider, quotaName string, value float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.obs[k]
	o.Key = k
	o.Provider = provider
	if quotaName != "" {
		o.QuotaName = quotaName
	}
	o.Limit = value
	o.HasLimit = true
	o.LimitAt = at
	s.obs[k] = o
}

// UpdateUsage 写入用量观测，保留已有的限额侧数据
func (s *Sink) UpdateUsage(k Key, provider, quotaName string, value float64, at time.Time, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := s.obs[k]
	o.Key = k
	o.Provider = provider
	if quotaName != "" {
		o.QuotaName = quotaName
	}
	o.Usage = value
	o.HasUsage = true
	o.UsageAt = at
	o.UsageSource = source
	s.obs[k] = o
}

// Get 返回指定键的观测
func (s *Sink) Get(k Key) (Observation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.obs[k]
	return o, ok
}

// Snapshot 返回全部观测的副本
func (s *Sink) Snapshot() []Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Observation, 0, len(s.obs))
	for _, o := range s.obs {
		out = append(out, o)
	}
	return out
}

// Len 返回观测数量
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.obs)
}
