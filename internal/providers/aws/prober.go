package aws

import (
	"context"
	"fmt"
	"sort"
	"sync"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"golang.org/x/sync/errgroup"

	"quota-exporter/internal/cache"
	"quota-exporter/internal/directory"
	"quota-exporter/internal/logger"
	"quota-exporter/internal/providers/common"
	"quota-exporter/internal/quota"
)

// probeSkipCodes 出现这些错误码说明区域对该账号不可用（未开通或无权限）
var probeSkipCodes = map[string]bool{
	"AuthFailure":           true,
	"OptInRequired":         true,
	"InvalidEndpoint":       true,
	"InvalidClientTokenId":  true,
	"SignatureDoesNotMatch": true,
	"UnauthorizedOperation": true,
}

// Prober 探测账号实际使用过 EC2 的区域
// 探测有独立的并发池，与采集工作池互不影响
type Prober struct {
	clients ClientFactory
	store   *cache.DurableStore
	pool    int
	log     *logger.ContextLogger
}

// NewProber 创建区域探测器，探测结果缓存 24 小时
func NewProber(store *cache.DurableStore, poolSize int) *Prober {
	return newProber(&defaultClientFactory{}, store, poolSize)
}

func newProber(clients ClientFactory, store *cache.DurableStore, poolSize int) *Prober {
	if poolSize <= 0 {
		poolSize = 5
	}
	return &Prober{
		clients: clients,
		store:   store,
		pool:    poolSize,
		log:     logger.NewContextLogger("RegionProber"),
	}
}

// ActiveRegions 返回账号有 EC2 实例的区域
// 命中缓存直接返回，未命中时并发探测候选集并回写缓存
// CMDB 没有候选区域时退回 DescribeRegions 枚举账号已开通的区域
func (p *Prober) ActiveRegions(ctx context.Context, accountID string, creds directory.Credentials, candidates []string) ([]string, error) {
	key := cache.ActiveRegionsKey(accountID)
	var cached []string
	if p.store.Get(key, &cached) {
		return cached, nil
	}

	if len(candidates) == 0 {
		fallback, err := p.enabledRegions(ctx, accountID, creds)
		if err != nil {
			return nil, err
		}
		candidates = fallback
	}

	active, err := p.probe(ctx, accountID, creds, candidates)
	if err != nil {
		return nil, err
	}

	if err := p.store.Set(key, active); err != nil {
		p.log.Warnf("缓存活跃区域失败 account_id=%s: %v", accountID, err)
	}
	return active, nil
}

// probe 并发探测候选区域，单区域失败不阻断其他区域
func (p *Prober) probe(ctx context.Context, accountID string, creds directory.Credentials, candidates []string) ([]string, error) {
	var (
		mu     sync.Mutex
		active []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.pool)
	for _, region := range candidates {
		region := region
		g.Go(func() error {
			if p.probeRegion(gctx, creds, accountID, region) {
				mu.Lock()
				active = append(active, region)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(active)
	p.log.Infof("账号 %s 活跃区域探测完成 candidates=%d active=%d regions=%v",
		accountID, len(candidates), len(active), active)
	return active, nil
}

// enabledRegions 通过 DescribeRegions 枚举账号已开通的区域，固定走 us-east-1 端点
func (p *Prober) enabledRegions(ctx context.Context, accountID string, creds directory.Credentials) ([]string, error) {
	client, err := p.clients.NewEC2Client(ctx, quota.GlobalAPIRegion, creds.AccessKeyID, creds.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("EC2 客户端创建失败: %w", err)
	}

	out, err := client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{})
	recordAPI("ec2", "DescribeRegions", err)
	if err != nil {
		return nil, fmt.Errorf("枚举账号 %s 已开通区域失败: %w", accountID, err)
	}

	regions := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		if name := awssdk.ToString(r.RegionName); name != "" {
			regions = append(regions, name)
		}
	}
	sort.Strings(regions)
	p.log.Infof("账号 %s 候选区域为空，DescribeRegions 返回 %d 个区域", accountID, len(regions))
	return regions, nil
}

// probeRegion 用一次轻量 DescribeInstances 判断区域是否在用
func (p *Prober) probeRegion(ctx context.Context, creds directory.Credentials, accountID, region string) bool {
	client, err := p.clients.NewEC2Client(ctx, region, creds.AccessKeyID, creds.SecretAccessKey)
	if err != nil {
		p.log.Warnf("区域 %s EC2 客户端创建失败 account_id=%s: %v", region, accountID, err)
		return false
	}

	out, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		MaxResults: awssdk.Int32(5),
	})
	recordAPI("ec2", "DescribeInstances", err)
	if err != nil {
		code := common.APIErrorCode(err)
		if probeSkipCodes[code] {
			p.log.Debugf("区域 %s 不可访问（%s）account_id=%s", region, code, accountID)
		} else {
			p.log.Warnf("区域 %s 探测失败 account_id=%s: %v", region, accountID, err)
		}
		return false
	}

	for _, r := range out.Reservations {
		if len(r.Instances) > 0 {
			return true
		}
	}
	return false
}
