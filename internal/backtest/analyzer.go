package backtest

import (
	"math"

	"alphakit/internal/pkg/errs"
	"alphakit/internal/portfolio"
	"alphakit/internal/risk"
)

// 年化按 A 股交易日数折算。
const tradingDaysPerYear = 252.0

// Report 绩效分析结果，覆盖收益、风险、回撤与成交四类指标。
type Report struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	AnnualizedVol    float64 `json:"annualized_vol"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	MaxDrawdownDays  int     `json:"max_drawdown_days"`
	VaR95            float64 `json:"var_95"`
	CVaR95           float64 `json:"cvar_95"`
	BestDay          float64 `json:"best_day"`
	WorstDay         float64 `json:"worst_day"`
	PositiveDayRatio float64 `json:"positive_day_ratio"`
	Skewness         float64 `json:"skewness"`
	Kurtosis         float64 `json:"kurtosis"`
	TradeCount       int     `json:"trade_count"`
	RoundTrips       int     `json:"round_trips"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
	PayoffRatio      float64 `json:"payoff_ratio"`
	TotalCosts       float64 `json:"total_costs"`
	Turnover         float64 `json:"turnover"`
	TradingDays      int     `json:"trading_days"`
}

// Analyzer 根据回测结果计算绩效指标。RiskFreeRate 为年化无风险利率。
type Analyzer struct {
	RiskFreeRate float64
}

// NewAnalyzer 构建绩效分析器。
func NewAnalyzer(riskFreeRate float64) *Analyzer {
	return &Analyzer{RiskFreeRate: riskFreeRate}
}

// Analyze 计算全部指标。权益曲线少于两个点时报错。
func (a *Analyzer) Analyze(res *Result) (*Report, error) {
	if res == nil || len(res.EquityCurve) < 2 {
		return nil, errs.Validationf("权益曲线至少需要两个点")
	}
	returns := res.DailyReturns
	days := len(res.EquityCurve)
	rep := &Report{TradingDays: days, TradeCount: len(res.Trades)}

	first := res.EquityCurve[0].Value
	last := res.EquityCurve[days-1].Value
	rep.TotalReturn = last/first - 1
	years := float64(days) / tradingDaysPerYear
	if years > 0 && last > 0 && first > 0 {
		rep.AnnualizedReturn = math.Pow(last/first, 1/years) - 1
	}

	mean, std := meanStdDev(returns)
	rep.AnnualizedVol = std * math.Sqrt(tradingDaysPerYear)
	dailyRf := a.RiskFreeRate / tradingDaysPerYear
	if std > 0 {
		rep.SharpeRatio = (mean - dailyRf) / std * math.Sqrt(tradingDaysPerYear)
	}
	if dstd := downsideStdDev(returns, dailyRf); dstd > 0 {
		rep.SortinoRatio = (mean - dailyRf) / dstd * math.Sqrt(tradingDaysPerYear)
	}

	rep.MaxDrawdown, rep.MaxDrawdownDays = maxDrawdown(res.EquityCurve)
	if rep.MaxDrawdown > 0 {
		rep.CalmarRatio = rep.AnnualizedReturn / rep.MaxDrawdown
	}

	if len(returns) > 0 {
		if calc, err := risk.NewVaRCalculator(0.95); err == nil {
			if v, err := calc.Historical(returns); err == nil {
				rep.VaR95 = v
			}
			if cv, err := calc.CVaR(returns); err == nil {
				rep.CVaR95 = cv
			}
		}
		rep.BestDay = returns[0]
		rep.WorstDay = returns[0]
		positive := 0
		for _, r := range returns {
			if r > rep.BestDay {
				rep.BestDay = r
			}
			if r < rep.WorstDay {
				rep.WorstDay = r
			}
			if r > 0 {
				positive++
			}
		}
		rep.PositiveDayRatio = float64(positive) / float64(len(returns))
		rep.Skewness, rep.Kurtosis = momentStats(returns, mean, std)
	}

	a.tradeStats(res, rep)
	return rep, nil
}

// tradeStats 按 FIFO 配对买卖得到每笔往返盈亏，再汇总成交类指标。
func (a *Analyzer) tradeStats(res *Result, rep *Report) {
	var grossNotional, totalCosts float64
	type lot struct {
		shares int64
		cost   float64 // 含费用的每股成本
	}
	open := make(map[string][]lot)
	var pnls []float64

	for _, t := range res.Trades {
		grossNotional += t.Notional()
		totalCosts += t.TotalCost()
		switch t.Side {
		case portfolio.SideBuy:
			perShare := (t.Notional() + t.TotalCost()) / float64(t.Shares)
			open[t.Symbol] = append(open[t.Symbol], lot{shares: t.Shares, cost: perShare})
		case portfolio.SideSell:
			remaining := t.Shares
			proceeds := (t.Notional() - t.TotalCost()) / float64(t.Shares)
			var pnl float64
			matched := false
			for remaining > 0 && len(open[t.Symbol]) > 0 {
				l := &open[t.Symbol][0]
				take := l.shares
				if take > remaining {
					take = remaining
				}
				pnl += float64(take) * (proceeds - l.cost)
				l.shares -= take
				remaining -= take
				matched = true
				if l.shares == 0 {
					open[t.Symbol] = open[t.Symbol][1:]
				}
			}
			if matched {
				pnls = append(pnls, pnl)
			}
		}
	}

	rep.TotalCosts = round2(totalCosts)
	if avgEquity := avgEquityValue(res.EquityCurve); avgEquity > 0 {
		years := float64(len(res.EquityCurve)) / tradingDaysPerYear
		if years > 0 {
			rep.Turnover = grossNotional / avgEquity / years
		}
	}

	rep.RoundTrips = len(pnls)
	if len(pnls) == 0 {
		return
	}
	var wins, losses int
	var winSum, lossSum float64
	for _, p := range pnls {
		if p > 0 {
			wins++
			winSum += p
		} else if p < 0 {
			losses++
			lossSum += -p
		}
	}
	rep.WinRate = float64(wins) / float64(len(pnls))
	if lossSum > 0 {
		rep.ProfitFactor = winSum / lossSum
	} else if winSum > 0 {
		rep.ProfitFactor = math.Inf(1)
	}
	if wins > 0 {
		rep.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		rep.AvgLoss = lossSum / float64(losses)
	}
	if rep.AvgLoss > 0 {
		rep.PayoffRatio = rep.AvgWin / rep.AvgLoss
	}
}

// maxDrawdown 返回最大回撤幅度与最长回撤持续天数（峰值到修复）。
func maxDrawdown(curve []EquityPoint) (float64, int) {
	peak := curve[0].Value
	peakIdx := 0
	var maxDD float64
	var maxDays int
	for i, p := range curve {
		if p.Value >= peak {
			if days := i - peakIdx; days > maxDays {
				maxDays = days
			}
			peak = p.Value
			peakIdx = i
			continue
		}
		if peak > 0 {
			if dd := (peak - p.Value) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	// 曲线结尾仍未修复时按未闭合区段计。
	if days := len(curve) - 1 - peakIdx; days > maxDays {
		maxDays = days
	}
	return maxDD, maxDays
}

func meanStdDev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)-1))
}

// downsideStdDev 只统计低于目标收益的偏差，用于 Sortino。
func downsideStdDev(xs []float64, target float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sq float64
	for _, x := range xs {
		if x < target {
			d := x - target
			sq += d * d
		}
	}
	return math.Sqrt(sq / float64(len(xs)))
}

// momentStats 样本偏度与超额峰度。
func momentStats(xs []float64, mean, std float64) (float64, float64) {
	n := float64(len(xs))
	if n < 3 || std == 0 {
		return 0, 0
	}
	var m3, m4 float64
	for _, x := range xs {
		d := (x - mean) / std
		m3 += d * d * d
		m4 += d * d * d * d
	}
	skew := m3 / n
	kurt := m4/n - 3
	return skew, kurt
}

func avgEquityValue(curve []EquityPoint) float64 {
	var sum float64
	for _, p := range curve {
		sum += p.Value
	}
	return sum / float64(len(curve))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
