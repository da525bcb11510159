package directory

import (
	"context"
	"fmt"
	"time"

	"quota-exporter/internal/cache"
	"quota-exporter/internal/logger"
)

// Cached 在底层数据源之上套一层 24h 快照缓存
//
// 快照随限额缓存一起落盘，进程重启后可直接恢复；
// 查询失败时退回最近一次成功的快照（超过 TTL 也可用），只告警不中断
type Cached struct {
	source source
	store  *cache.DurableStore
	log    *logger.ContextLogger
}

// NewCached 包装数据源，快照写入限额层缓存
func NewCached(src source, store *cache.DurableStore) *Cached {
	return &Cached{
		source: src,
		store:  store,
		log:    logger.NewContextLogger("Directory"),
	}
}

// snapshot 返回当前账号快照：缓存命中直接用，
// 未命中则查库，查库失败时回退到过期快照
func (d *Cached) snapshot(ctx context.Context) ([]record, error) {
	var recs []record
	if d.store.Get(cache.DirectoryAccountsKey, &recs) {
		return recs, nil
	}

	recs, err := d.source.fetchAccounts(ctx)
	if err != nil {
		var stale []record
		if at, ok := d.store.GetStale(cache.DirectoryAccountsKey, &stale); ok {
			d.log.Warnf("CMDB 账号查询失败，沿用 %s 的快照（%d 个账号）: %v",
				at.Format(time.RFC3339), len(stale), err)
			return stale, nil
		}
		return nil, fmt.Errorf("CMDB 账号查询失败且无可用快照: %w", err)
	}

	if err := d.store.Set(cache.DirectoryAccountsKey, recs); err != nil {
		d.log.Warnf("缓存账号快照失败: %v", err)
	}
	return recs, nil
}

// Accounts 返回所有启用的 AWS 账号（不含凭证）
func (d *Cached) Accounts(ctx context.Context) ([]Account, error) {
	recs, err := d.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	accounts := make([]Account, 0, len(recs))
	for _, r := range recs {
		accounts = append(accounts, Account{
			Provider:  ProviderAWS,
			AccountID: r.AccountID,
			Alias:     r.Alias,
		})
	}
	return accounts, nil
}

// Credentials 返回指定账号的访问凭证
func (d *Cached) Credentials(ctx context.Context, accountID string) (Credentials, error) {
	recs, err := d.snapshot(ctx)
	if err != nil {
		return Credentials{}, err
	}

	for _, r := range recs {
		if r.AccountID == accountID {
			return Credentials{
				AccessKeyID:     r.AccessKey,
				SecretAccessKey: r.SecretKey,
			}, nil
		}
	}
	return Credentials{}, fmt.Errorf("账号 %s 不在 CMDB 目录中", accountID)
}

// CandidateRegions 返回区域候选集，失败时同样回退到过期快照
func (d *Cached) CandidateRegions(ctx context.Context) ([]string, error) {
	var regions []string
	if d.store.Get(cache.DirectoryRegionsKey, &regions) {
		return regions, nil
	}

	regions, err := d.source.fetchRegions(ctx)
	if err != nil {
		var stale []string
		if at, ok := d.store.GetStale(cache.DirectoryRegionsKey, &stale); ok {
			d.log.Warnf("CMDB 区域查询失败，沿用 %s 的快照（%d 个区域）: %v",
				at.Format(time.RFC3339), len(stale), err)
			return stale, nil
		}
		return nil, fmt.Errorf("CMDB 区域查询失败且无可用快照: %w", err)
	}

	if err := d.store.Set(cache.DirectoryRegionsKey, regions); err != nil {
		d.log.Warnf("缓存区域快照失败: %v", err)
	}
	return regions, nil
}
