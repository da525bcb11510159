// Package directory 从 CMDB 读取云账号、凭证与区域候选集
// 凭证只在本包内流转，采集层通过 Credentials 方法按账号解析
package directory

import (
	"context"
)

// ProviderAWS 是目前目录中唯一的云厂商标识
const ProviderAWS = "aws"

// Account 表示 CMDB 中的一个云账号（不含凭证）
type Account struct {
	Provider  string `json:"provider"`
	AccountID string `json:"account_id"`
	Alias     string `json:"alias"`
}

// Credentials 保存账号的访问凭证
type Credentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

// record 是账号表的一行，凭证不离开 directory 包
type record struct {
	AccountID string `json:"account_id"`
	Alias     string `json:"alias"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// Directory 定义账号与区域目录的查询接口
type Directory interface {
	// Accounts 返回所有启用的 AWS 账号
	Accounts(ctx context.Context) ([]Account, error)
	// Credentials 返回指定账号的访问凭证
	Credentials(ctx context.Context, accountID string) (Credentials, error)
	// CandidateRegions 返回区域候选集（不含 global）
	CandidateRegions(ctx context.Context) ([]string, error)
}

// source 是 Cached 的底层数据源，便于测试替换
type source interface {
	fetchAccounts(ctx context.Context) ([]record, error)
	fetchRegions(ctx context.Context) ([]string, error)
}
