package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"quota-exporter/internal/logger"
)

// 账号查询：只取启用（is_freeze = '0'）的 AWS 账号
const accountQuery = `
SELECT account_id, alias, access_key, secret_key
FROM cmdb.cloud_account
WHERE origin = 'aws' AND is_freeze = '0'`

// 区域候选集查询：排除 global 与空值
const regionQuery = `
SELECT DISTINCT region
FROM cmdb.cloud_region
WHERE cloud = 'aws'
  AND region <> 'global'
  AND region IS NOT NULL
  AND region <> ''
ORDER BY region`

// Postgres 通过 pgx 连接池访问 CMDB 数据库
type Postgres struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	log     *logger.ContextLogger
}

// NewPostgres 建立 CMDB 连接池并做一次连通性检查
func NewPostgres(ctx context.Context, dsn string, queryTimeout time.Duration) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("CMDB DSN 未配置")
	}
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("解析 CMDB 连接配置失败: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("连接 CMDB 数据库失败: %w", err)
	}

	return &Postgres{
		pool:    pool,
		timeout: queryTimeout,
		log:     logger.NewContextLogger("Directory"),
	}, nil
}

// Close 释放连接池
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) fetchAccounts(ctx context.Context) ([]record, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, accountQuery)
	if err != nil {
		return nil, fmt.Errorf("查询 CMDB 账号表失败: %w", err)
	}
	defer rows.Close()

	var recs []record
	for rows.Next() {
		var r record
		var alias *string
		if err := rows.Scan(&r.AccountID, &alias, &r.AccessKey, &r.SecretKey); err != nil {
			return nil, fmt.Errorf("解析 CMDB 账号行失败: %w", err)
		}
		if alias != nil {
			r.Alias = *alias
		}
		// 缺少凭证的行无法采集，跳过并告警
		if r.AccountID == "" || r.AccessKey == "" || r.SecretKey == "" {
			p.log.Warnf("跳过凭证不完整的账号记录 account_id=%s", r.AccountID)
			continue
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 CMDB 账号结果失败: %w", err)
	}

	p.log.Infof("从 CMDB 读取到 %d 个 AWS 账号", len(recs))
	return recs, nil
}

func (p *Postgres) fetchRegions(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, regionQuery)
	if err != nil {
		return nil, fmt.Errorf("查询 CMDB 区域表失败: %w", err)
	}
	defer rows.Close()

	var regions []string
	for rows.Next() {
		var region string
		if err := rows.Scan(&region); err != nil {
			return nil, fmt.Errorf("解析 CMDB 区域行失败: %w", err)
		}
		if region != "" {
			regions = append(regions, region)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 CMDB 区域结果失败: %w", err)
	}

	p.log.Infof("从 CMDB 读取到 %d 个区域候选: %v", len(regions), regions)
	return regions, nil
}
