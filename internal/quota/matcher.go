package quota

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// MatchRule 描述动态发现目录的一条过滤规则
// 多条规则之间为 OR 关系；name_contains 内的多个关键词为 AND 关系
type MatchRule struct {
	// NameContains 每个关键词（小写后）都必须出现在配额名称中
	NameContains []string `yaml:"name_contains"`
	// NamePrefix 配额名称（小写后）的前缀
	NamePrefix string `yaml:"name_prefix"`
	// CodePrefix 配额代码的前缀（区分大小写，代码本身即 L-XXXX 形式）
	CodePrefix string `yaml:"code_prefix"`
	// NameRegex 对配额名称的正则匹配，加载时编译
	NameRegex string `yaml:"name_regex"`

	re *regexp.Regexp
}

// Compile 预编译正则规则，配置加载阶段调用
func (r *MatchRule) Compile() error {
	if r.NameRegex == "" {
		return nil
	}
	re, err := regexp.Compile(r.NameRegex)
	if err != nil {
		return fmt.Errorf("invalid name_regex %q: %w", r.NameRegex, err)
	}
	r.re = re
	return nil
}

// Empty 判断规则是否没有任何匹配条件
func (r *MatchRule) Empty() bool {
	return len(r.NameContains) == 0 && r.NamePrefix == "" && r.CodePrefix == "" && r.NameRegex == ""
}

// matches 判断单条配额是否命中该规则
func (r *MatchRule) matches(code, name string) bool {
	if r.Empty() {
		return false
	}
	lower := strings.ToLower(name)
	if len(r.NameContains) > 0 {
		for _, kw := range r.NameContains {
			if !strings.Contains(lower, strings.ToLower(kw)) {
				return false
			}
		}
	}
	if r.NamePrefix != "" && !strings.HasPrefix(lower, strings.ToLower(r.NamePrefix)) {
		return false
	}
	if r.CodePrefix != "" && !strings.HasPrefix(code, r.CodePrefix) {
		return false
	}
	if r.NameRegex != "" {
		if r.re == nil {
			// 未编译的正则视为不匹配，避免在匹配路径上惰性编译
			return false
		}
		if !r.re.MatchString(name) {
			return false
		}
	}
	return true
}

// Matcher 将发现得到的配额目录过滤为关注子集
// 相同输入集合无论顺序如何，输出子集恒定（按 code 排序）
type Matcher struct {
	rules []MatchRule
}

// NewMatcher 构建匹配器并编译所有规则
func NewMatcher(rules []MatchRule) (*Matcher, error) {
	compiled := make([]MatchRule, len(rules))
	copy(compiled, rules)
	for i := range compiled {
		if compiled[i].Empty() {
			return nil, fmt.Errorf("match rule %d has no conditions", i)
		}
		if err := compiled[i].Compile(); err != nil {
			return nil, fmt.Errorf("match rule %d: %w", i, err)
		}
	}
	return &Matcher{rules: compiled}, nil
}

// Match 返回目录中命中任意规则的配额子集，按 code 稳定排序
func (m *Matcher) Match(catalog []Definition) []Definition {
	if m == nil || len(m.rules) == 0 {
		return nil
	}
	var out []Definition
	seen := make(map[string]bool, len(catalog))
	for _, def := range catalog {
		if seen[def.Code] {
			continue
		}
		for i := range m.rules {
			if m.rules[i].matches(def.Code, def.Name) {
				out = append(out, def)
				seen[def.Code] = true
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
