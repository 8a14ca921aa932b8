package risk

import (
	"math"
	"math/rand"
	"sort"

	"alphakit/internal/pkg/errs"
)

// VaRMethod 估计方法。
type VaRMethod string

const (
	VaRHistorical VaRMethod = "historical"
	VaRParametric VaRMethod = "parametric"
	VaRMonteCarlo VaRMethod = "monte_carlo"
)

// VaRReport 按 1/5/20 日 horizon 汇总的 VaR/CVaR（正数表示损失幅度）。
// 多日 horizon 由 1 日估计按 √horizon 缩放（iid 假设），保持与既有
// 回测输出一致，不做修正。
type VaRReport struct {
	Method     VaRMethod `json:"method"`
	Confidence float64   `json:"confidence"`
	VaR1       float64   `json:"var_1d"`
	VaR5       float64   `json:"var_5d"`
	VaR20      float64   `json:"var_20d"`
	CVaR1      float64   `json:"cvar_1d"`
	CVaR5      float64   `json:"cvar_5d"`
	CVaR20     float64   `json:"cvar_20d"`
}

// VaRCalculator 基于收益率序列估计 VaR/CVaR。
// Monte-Carlo 路径必须显式给种子，组件内部不读全局随机源。
type VaRCalculator struct {
	confidence float64
	numSims    int
}

// NewVaRCalculator 创建计算器，confidence ∈ (0,1)。
func NewVaRCalculator(confidence float64) (*VaRCalculator, error) {
	if confidence <= 0 || confidence >= 1 {
		return nil, errs.Validationf("var confidence 必须位于 (0,1), got %.4f", confidence)
	}
	return &VaRCalculator{confidence: confidence, numSims: 10000}, nil
}

// Historical 历史法：取收益分布 (1-confidence) 分位。
func (c *VaRCalculator) Historical(returns []float64) (float64, error) {
	if len(returns) == 0 {
		return 0, errs.Validationf("returns 序列为空")
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	q := quantile(sorted, 1-c.confidence)
	return math.Max(0, -q), nil
}

// Parametric 参数法：假设正态，VaR = z·σ − μ。
func (c *VaRCalculator) Parametric(returns []float64) (float64, error) {
	if len(returns) < 2 {
		return 0, errs.Validationf("参数法至少需要 2 个收益样本")
	}
	mu, sigma := meanStd(returns)
	z := math.Sqrt2 * math.Erfinv(2*c.confidence-1)
	return math.Max(0, z*sigma-mu), nil
}

// MonteCarlo 蒙特卡洛法：按样本均值/方差模拟正态收益后取分位。
func (c *VaRCalculator) MonteCarlo(returns []float64, seed int64) (float64, error) {
	if len(returns) < 2 {
		return 0, errs.Validationf("蒙特卡洛法至少需要 2 个收益样本")
	}
	mu, sigma := meanStd(returns)
	rng := rand.New(rand.NewSource(seed))
	sims := make([]float64, c.numSims)
	for i := range sims {
		sims[i] = mu + sigma*rng.NormFloat64()
	}
	sort.Float64s(sims)
	q := quantile(sims, 1-c.confidence)
	return math.Max(0, -q), nil
}

// CVaR 条件 VaR：超过 VaR 分位的损失均值。
func (c *VaRCalculator) CVaR(returns []float64) (float64, error) {
	if len(returns) == 0 {
		return 0, errs.Validationf("returns 序列为空")
	}
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	cut := int(math.Floor(float64(len(sorted)) * (1 - c.confidence)))
	if cut < 1 {
		cut = 1
	}
	sum := 0.0
	for _, r := range sorted[:cut] {
		sum += r
	}
	return math.Max(0, -sum/float64(cut)), nil
}

// Report 生成 1/5/20 日 horizon 的完整报告。seed 仅蒙特卡洛法使用。
func (c *VaRCalculator) Report(returns []float64, method VaRMethod, seed int64) (VaRReport, error) {
	var v1 float64
	var err error
	switch method {
	case VaRHistorical:
		v1, err = c.Historical(returns)
	case VaRParametric:
		v1, err = c.Parametric(returns)
	case VaRMonteCarlo:
		v1, err = c.MonteCarlo(returns, seed)
	default:
		return VaRReport{}, errs.Validationf("未知 VaR 方法: %s", method)
	}
	if err != nil {
		return VaRReport{}, err
	}
	cv1, err := c.CVaR(returns)
	if err != nil {
		return VaRReport{}, err
	}
	return VaRReport{
		Method:     method,
		Confidence: c.confidence,
		VaR1:       v1,
		VaR5:       scaleHorizon(v1, 5),
		VaR20:      scaleHorizon(v1, 20),
		CVaR1:      cv1,
		CVaR5:      scaleHorizon(cv1, 5),
		CVaR20:     scaleHorizon(cv1, 20),
	}, nil
}

func scaleHorizon(oneDay float64, days int) float64 {
	return oneDay * math.Sqrt(float64(days))
}

// quantile 线性插值分位数，输入已排序。
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func meanStd(xs []float64) (float64, float64) {
	mu := 0.0
	for _, x := range xs {
		mu += x
	}
	mu /= float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		d := x - mu
		ss += d * d
	}
	sigma := math.Sqrt(ss / float64(len(xs)-1))
	return mu, sigma
}
