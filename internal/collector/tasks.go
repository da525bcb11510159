package collector

import (
	"context"
	"fmt"
	"sort"

	"quota-exporter/internal/cache"
	"quota-exporter/internal/directory"
	"quota-exporter/internal/providers"
	"quota-exporter/internal/quota"
)

// task 一个不可再分的采集单元：账号 × 区域 × 服务
// 全局服务折叠为每账号单任务，region 为哨兵 global
type task struct {
	account directory.Account
	creds   directory.Credentials
	region  string
	service string
	adapter providers.Adapter
}

// buildTasks 从目录与探测结果展开任务列表
// 目录不可用是轮级错误；单个账号的凭证或探测失败只跳过该账号
func (o *Orchestrator) buildTasks(ctx context.Context, kind Kind, filterService string) ([]task, error) {
	accounts, err := o.dir.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取账号目录失败: %w", err)
	}
	if len(accounts) == 0 {
		o.log.Warnf("CMDB 目录没有可用账号，本轮无任务")
		return nil, nil
	}

	services := o.serviceNames(filterService)
	needRegions := false
	for _, name := range services {
		if o.adapters[name].Scope() == quota.ScopeRegional {
			needRegions = true
			break
		}
	}

	var candidates []string
	if needRegions {
		candidates, err = o.dir.CandidateRegions(ctx)
		if err != nil {
			return nil, fmt.Errorf("获取候选区域失败: %w", err)
		}
	}

	var tasks []task
	for _, acct := range accounts {
		o.markAccount(kind, acct.AccountID, "running", 0)

		creds, err := o.dir.Credentials(ctx, acct.AccountID)
		if err != nil {
			o.log.Warnf("账号 %s 凭证解析失败，跳过该账号: %v", acct.AccountID, err)
			o.markAccount(kind, acct.AccountID, "failed", 0)
			continue
		}

		var active []string
		if needRegions {
			active, err = o.prober.ActiveRegions(ctx, acct.AccountID, creds, candidates)
			if err != nil {
				o.log.Warnf("账号 %s 活跃区域探测失败，仅保留全局服务任务: %v", acct.AccountID, err)
				active = nil
			}
		}

		for _, name := range services {
			ad := o.adapters[name]
			if ad.Scope() == quota.ScopeGlobal {
				tasks = append(tasks, task{account: acct, creds: creds, region: quota.GlobalRegionLabel, service: name, adapter: ad})
				continue
			}
			for _, region := range active {
				tasks = append(tasks, task{account: acct, creds: creds, region: region, service: name, adapter: ad})
			}
		}
	}
	return tasks, nil
}

// serviceNames 返回参与本轮的服务名，排序保证任务顺序稳定
func (o *Orchestrator) serviceNames(filter string) []string {
	names := make([]string, 0, len(o.adapters))
	for name := range o.adapters {
		if filter != "" && name != filter {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// definitions 返回任务的配额定义集合
//
// 动态服务的发现目录缓存在限额档（24h）。限额刷新轮绕过缓存重新发现；
// 用量轮频率更高，始终优先复用已缓存目录，避免每小时重复枚举
func (o *Orchestrator) definitions(ctx context.Context, kind Kind, t task, refresh bool) ([]quota.Definition, error) {
	if !o.dynamic[t.service] {
		return t.adapter.Definitions(ctx, t.creds, t.region)
	}

	key := cache.DiscoveryKey(t.account.AccountID, t.region, t.service)
	bypass := refresh && kind == KindLimit
	if !bypass {
		var defs []quota.Definition
		if o.caches.Limits.Get(key, &defs) {
			return defs, nil
		}
	}

	defs, err := t.adapter.Definitions(ctx, t.creds, t.region)
	if err != nil {
		return nil, err
	}
	o.pause(ctx)
	if err := o.caches.Limits.Set(key, defs); err != nil {
		o.log.Warnf("缓存发现目录失败 key=%s: %v", key, err)
	}
	return defs, nil
}
