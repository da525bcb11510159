package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"quota-exporter/internal/config"
	"quota-exporter/internal/quota"
)

// 配额定义文件校验工具
// 在部署前检查 configs/quotas 下的 YAML 能否被加载器接受，
// 并汇总没有用量来源的配额，便于跟踪映射覆盖率

func main() {
	var (
		quotasDir    = flag.String("quotas-dir", "configs/quotas", "quota definition directory")
		showUnmapped = flag.Bool("show-unmapped", false, "list quotas without a usage source")
	)
	flag.Parse()

	qc, err := config.LoadQuotaFiles(*quotasDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配额定义加载失败: %v\n", err)
		os.Exit(1)
	}

	var totalStatic, totalUnmapped int
	for _, name := range qc.ServiceNames() {
		svc := qc.Services[name]
		if svc.Dynamic() {
			fmt.Printf("✓ %-22s 动态发现\n", name)
			continue
		}

		unmapped := 0
		for _, def := range svc.Static {
			if def.UsageSource == quota.UsageSourceNone {
				unmapped++
			}
		}
		totalStatic += len(svc.Static)
		totalUnmapped += unmapped
		fmt.Printf("✓ %-22s %d 条配额，%d 条无用量来源\n", name, len(svc.Static), unmapped)
	}

	if *showUnmapped && totalUnmapped > 0 {
		fmt.Println("\n无用量来源的配额:")
		for _, name := range qc.ServiceNames() {
			svc := qc.Services[name]
			var codes []string
			for _, def := range svc.Static {
				if def.UsageSource == quota.UsageSourceNone {
					codes = append(codes, fmt.Sprintf("%s (%s)", def.Code, def.Name))
				}
			}
			sort.Strings(codes)
			for _, c := range codes {
				fmt.Printf("  %s/%s\n", name, c)
			}
		}
	}

	fmt.Printf("\n✓ 所有配额定义验证通过，共 %d 个服务、%d 条静态配额\n", len(qc.Services), totalStatic)
}
