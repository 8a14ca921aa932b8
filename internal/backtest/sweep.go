package backtest

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"alphakit/internal/logger"
	"alphakit/internal/market"
	"alphakit/internal/pkg/errs"
	"alphakit/internal/strategy"
)

// SweepVariant 参数扫描中的一个候选档案。
type SweepVariant struct {
	Name    string           `json:"name"`
	Profile strategy.Profile `json:"profile"`
}

// SweepResult 单个候选的回测绩效。
type SweepResult struct {
	Name   string  `json:"name"`
	Report *Report `json:"report"`
}

// Sweep 并行回测一组候选档案。每个候选独立校验，任何一个失败
// 即终止整批扫描。返回结果按夏普比率降序。scores 可为 nil，
// 此时 ml_score 类候选会在校验阶段失败。
func Sweep(ctx context.Context, panel *market.Panel, scores *market.ScoreMatrix, cfg Config, riskFreeRate float64, variants []SweepVariant, parallelism int) ([]SweepResult, error) {
	if len(variants) == 0 {
		return nil, errs.Validationf("sweep 候选不能为空")
	}
	if parallelism <= 0 {
		parallelism = 4
	}

	results := make([]SweepResult, len(variants))
	analyzer := NewAnalyzer(riskFreeRate)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, v := range variants {
		g.Go(func() error {
			engine, err := buildEventEngine(panel, v.Profile, cfg, scores)
			if err != nil {
				return errs.Validationf("候选 %s 配置非法: %v", v.Name, err)
			}
			res, err := engine.Run(gctx)
			if err != nil {
				return err
			}
			rep, err := analyzer.Analyze(res)
			if err != nil {
				return err
			}
			logger.Debugf("[sweep] %s: 收益 %.2f%% 夏普 %.2f 回撤 %.2f%%",
				v.Name, rep.TotalReturn*100, rep.SharpeRatio, rep.MaxDrawdown*100)
			results[i] = SweepResult{Name: v.Name, Report: rep}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Report.SharpeRatio > results[j].Report.SharpeRatio
	})
	return results, nil
}
