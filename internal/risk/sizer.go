package risk

import (
	"math"
	"sort"
)

// 仓位算法均为无状态纯函数，输入来自成交历史或收益统计。

// EqualWeights 等权分配，权重和为 1。
func EqualWeights(symbols []string) map[string]float64 {
	if len(symbols) == 0 {
		return map[string]float64{}
	}
	w := 1.0 / float64(len(symbols))
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		out[s] = w
	}
	return out
}

// KellyFraction 分数凯利仓位。fraction 默认 0.5（半凯利），
// 胜率与盈亏比来自已实现的成交统计，结果钳制在 [0,1]。
func KellyFraction(winRate, avgWin, avgLoss, fraction float64) float64 {
	if fraction <= 0 {
		fraction = 0.5
	}
	if winRate <= 0 || winRate >= 1 || avgWin <= 0 || avgLoss <= 0 {
		return 0
	}
	b := avgWin / avgLoss
	kelly := winRate - (1-winRate)/b
	kelly *= fraction
	if kelly < 0 {
		return 0
	}
	if kelly > 1 {
		return 1
	}
	return kelly
}

// RiskParityWeights 逆波动率权重，不做协方差修正。
// 波动率非正的标的被剔除。
func RiskParityWeights(vols map[string]float64) map[string]float64 {
	syms := make([]string, 0, len(vols))
	for s, v := range vols {
		if v > 0 {
			syms = append(syms, s)
		}
	}
	sort.Strings(syms)
	out := make(map[string]float64, len(syms))
	if len(syms) == 0 {
		return out
	}
	sum := 0.0
	for _, s := range syms {
		sum += 1 / vols[s]
	}
	for _, s := range syms {
		out[s] = (1 / vols[s]) / sum
	}
	return out
}

// VolatilityTarget 波动率目标仓位：current × target/current vol，
// 钳制在 [0, maxLeverage]。
func VolatilityTarget(currentPosition, targetVol, currentVol, maxLeverage float64) float64 {
	if currentVol <= 0 || targetVol <= 0 {
		return currentPosition
	}
	if maxLeverage <= 0 {
		maxLeverage = 1
	}
	next := currentPosition * targetVol / currentVol
	if next < 0 {
		return 0
	}
	if next > maxLeverage {
		return maxLeverage
	}
	return next
}

// AnnualizedVol 年化波动率（252 交易日）。
func AnnualizedVol(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	_, sigma := meanStd(returns)
	return sigma * math.Sqrt(252)
}
