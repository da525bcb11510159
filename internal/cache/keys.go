package cache

// 缓存键按 kind/account/region/service/code 组合，保证不同账号、
// 区域、服务与条目种类互不串扰；全局配额使用 region 哨兵 "global"

// LimitKey 限额值条目键
func LimitKey(accountID, region, service, code string) string {
	return "limit/" + accountID + "/" + region + "/" + service + "/" + code
}

// UsageKey 用量值条目键
func UsageKey(accountID, region, service, code string) string {
	return "usage/" + accountID + "/" + region + "/" + service + "/" + code
}

// DiscoveryKey 动态发现目录条目键（按账号×区域×服务）
func DiscoveryKey(accountID, region, service string) string {
	return "discovery/" + accountID + "/" + region + "/" + service
}

// ActiveRegionsKey 账号活跃区域集合条目键
func ActiveRegionsKey(accountID string) string {
	return "active-regions/" + accountID
}

// 目录快照条目键
const (
	DirectoryAccountsKey = "directory/accounts"
	DirectoryRegionsKey  = "directory/regions"
)
