package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"quota-exporter/internal/quota"

	"gopkg.in/yaml.v3"
)

// ServiceQuotaFile 单个服务配额定义文件的 YAML 结构
//
// 示例（configs/quotas/ec2.yaml）：
//
//	service: ec2
//	scope: regional
//	quotas:
//	  - code: L-1216C47A
//	    name: Running On-Demand Standard instances
//	    usage_source: cloudwatch
//	    cloudwatch:
//	      namespace: AWS/Usage
//	      metric: ResourceCount
//	      statistic: Maximum
//	      dimensions:
//	        Service: EC2
//	        Type: Resource
//	        Resource: vCPU
//	        Class: Standard/OnDemand
//
// 动态发现服务（configs/quotas/sagemaker.yaml）：
//
//	service: sagemaker
//	scope: regional
//	discovery:
//	  match_rules:
//	    - name_contains: ["notebook", "instance"]
//	    - name_contains: ["training job"]
type ServiceQuotaFile struct {
	Service   string             `yaml:"service"`
	Scope     string             `yaml:"scope"`
	Quotas    []quota.Definition `yaml:"quotas"`
	Discovery *DiscoveryRules    `yaml:"discovery"`
}

// DiscoveryRules 动态发现配置
type DiscoveryRules struct {
	MatchRules []quota.MatchRule `yaml:"match_rules"`
}

// ServiceQuotas 单个服务的运行时配额视图
type ServiceQuotas struct {
	Service string
	Scope   quota.Scope
	// Static 静态配额定义，Service/Scope 已写入每条定义
	Static []quota.Definition
	// Matcher 非 nil 时该服务启用动态发现，目录按规则过滤
	Matcher *quota.Matcher
}

// Dynamic 判断该服务是否启用动态发现
func (s *ServiceQuotas) Dynamic() bool {
	return s.Matcher != nil
}

// QuotaConfig 全部被监控服务的配额配置
type QuotaConfig struct {
	Services map[string]*ServiceQuotas
}

// ServiceNames 返回排序后的服务名列表
func (q *QuotaConfig) ServiceNames() []string {
	names := make([]string, 0, len(q.Services))
	for name := range q.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Filter 返回仅包含 keep 列表内服务的子集；keep 为空时原样返回
func (q *QuotaConfig) Filter(keep []string) *QuotaConfig {
	if len(keep) == 0 {
		return q
	}
	want := make(map[string]bool, len(keep))
	for _, name := range keep {
		want[strings.ToLower(strings.TrimSpace(name))] = true
	}
	out := &QuotaConfig{Services: make(map[string]*ServiceQuotas)}
	for name, svc := range q.Services {
		if want[name] {
			out.Services[name] = svc
		}
	}
	return out
}

// LoadQuotaFiles 从目录（或单个文件）加载全部配额定义
//
// 路径解析优先级：参数 path > QUOTA_CONFIG_PATH 环境变量 > configs/quotas。
// 目录中的每个 *.yaml 描述一个服务；同名服务重复定义视为错误。
func LoadQuotaFiles(path string) (*QuotaConfig, error) {
	if path == "" {
		path = os.Getenv("QUOTA_CONFIG_PATH")
	}
	if path == "" {
		path = "configs/quotas"
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("quota config path %s: %w", path, err)
	}

	var files []string
	if fi.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.yaml"))
		if err != nil || len(files) == 0 {
			return nil, fmt.Errorf("no quota definition files under %s", path)
		}
		sort.Strings(files)
	} else {
		files = []string{path}
	}

	cfg := &QuotaConfig{Services: make(map[string]*ServiceQuotas)}
	for _, f := range files {
		svc, err := loadQuotaFile(f)
		if err != nil {
			return nil, err
		}
		if _, dup := cfg.Services[svc.Service]; dup {
			return nil, fmt.Errorf("service %s defined more than once (file %s)", svc.Service, f)
		}
		cfg.Services[svc.Service] = svc
	}
	return cfg, nil
}

// loadQuotaFile 加载并校验单个服务配额文件
func loadQuotaFile(path string) (*ServiceQuotas, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quota file %s: %v", path, err)
	}

	var file ServiceQuotaFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	// 拒绝未知字段，尽早暴露拼写错误
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse quota file %s: %v", path, err)
	}

	svc, err := buildServiceQuotas(&file)
	if err != nil {
		return nil, fmt.Errorf("quota file %s: %w", path, err)
	}
	return svc, nil
}

// buildServiceQuotas 将文件结构转换为运行时视图并完成全部校验
func buildServiceQuotas(file *ServiceQuotaFile) (*ServiceQuotas, error) {
	if file.Service == "" {
		return nil, fmt.Errorf("missing service")
	}
	service := strings.ToLower(strings.TrimSpace(file.Service))

	var scope quota.Scope
	switch strings.ToLower(file.Scope) {
	case "", string(quota.ScopeRegional):
		scope = quota.ScopeRegional
	case string(quota.ScopeGlobal):
		scope = quota.ScopeGlobal
	default:
		return nil, fmt.Errorf("invalid scope %q (must be regional or global)", file.Scope)
	}

	if len(file.Quotas) == 0 && (file.Discovery == nil || len(file.Discovery.MatchRules) == 0) {
		return nil, fmt.Errorf("service %s has neither quotas nor discovery rules", service)
	}

	svc := &ServiceQuotas{Service: service, Scope: scope}

	seen := make(map[string]bool, len(file.Quotas))
	for i := range file.Quotas {
		def := file.Quotas[i]
		def.Service = service
		def.Scope = scope
		if def.UsageSource == "" {
			def.UsageSource = quota.UsageSourceNone
		}
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if seen[def.Code] {
			return nil, fmt.Errorf("service %s: duplicate quota code %s", service, def.Code)
		}
		seen[def.Code] = true
		svc.Static = append(svc.Static, def)
	}

	if file.Discovery != nil && len(file.Discovery.MatchRules) > 0 {
		matcher, err := quota.NewMatcher(file.Discovery.MatchRules)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", service, err)
		}
		svc.Matcher = matcher
	}

	return svc, nil
}
