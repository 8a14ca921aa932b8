package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphakit/internal/portfolio"
)

func buildCurve(values []float64) *Result {
	res := &Result{InitialCapital: values[0]}
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		res.appendEquity(start.AddDate(0, 0, i), v)
	}
	return res
}

func TestAnalyzeReturnsAndDrawdown(t *testing.T) {
	res := buildCurve([]float64{100, 110, 99, 104.5, 121})
	rep, err := NewAnalyzer(0).Analyze(res)
	require.NoError(t, err)

	assert.InDelta(t, 0.21, rep.TotalReturn, 1e-9)
	// 峰值 110 跌到 99
	assert.InDelta(t, 0.1, rep.MaxDrawdown, 1e-9)
	assert.Equal(t, 5, rep.TradingDays)
	assert.InDelta(t, 121.0/104.5-1, rep.BestDay, 1e-9)
	assert.InDelta(t, -0.1, rep.WorstDay, 1e-9)
	assert.InDelta(t, 0.75, rep.PositiveDayRatio, 1e-9)
	assert.Greater(t, rep.AnnualizedReturn, 0.0)
	assert.Greater(t, rep.AnnualizedVol, 0.0)
	assert.Greater(t, rep.SharpeRatio, 0.0)
	assert.Greater(t, rep.CalmarRatio, 0.0)
}

func TestAnalyzeDrawdownDuration(t *testing.T) {
	// 峰值在第 1 日, 第 5 日修复: 持续 4 日
	res := buildCurve([]float64{100, 110, 100, 95, 105, 111, 112})
	rep, err := NewAnalyzer(0).Analyze(res)
	require.NoError(t, err)
	assert.InDelta(t, 15.0/110, rep.MaxDrawdown, 1e-9)
	assert.Equal(t, 4, rep.MaxDrawdownDays)
}

func TestAnalyzeUnrecoveredDrawdown(t *testing.T) {
	// 曲线结尾未修复, 区段按峰值到结尾计
	res := buildCurve([]float64{100, 120, 110, 105, 100})
	rep, err := NewAnalyzer(0).Analyze(res)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.MaxDrawdownDays)
	assert.InDelta(t, 20.0/120, rep.MaxDrawdown, 1e-9)
}

func TestAnalyzeTradeStats(t *testing.T) {
	res := buildCurve([]float64{100000, 101000, 102000, 101500, 103000})
	day := func(i int) time.Time {
		return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	}
	res.Trades = []portfolio.Trade{
		{Date: day(0), Symbol: "600519", Side: portfolio.SideBuy, Shares: 100, Price: 100, Commission: 5},
		{Date: day(2), Symbol: "600519", Side: portfolio.SideSell, Shares: 100, Price: 110, Commission: 5, StampTax: 11},
		{Date: day(1), Symbol: "000001", Side: portfolio.SideBuy, Shares: 200, Price: 50, Commission: 5},
		{Date: day(3), Symbol: "000001", Side: portfolio.SideSell, Shares: 200, Price: 45, Commission: 5, StampTax: 9},
	}
	rep, err := NewAnalyzer(0).Analyze(res)
	require.NoError(t, err)

	assert.Equal(t, 4, rep.TradeCount)
	assert.Equal(t, 2, rep.RoundTrips)
	assert.InDelta(t, 0.5, rep.WinRate, 1e-9)
	// 600519: +1000 - 21 = 979; 000001: -1000 - 19 = -1019
	assert.InDelta(t, 979, rep.AvgWin, 1e-9)
	assert.InDelta(t, 1019, rep.AvgLoss, 1e-9)
	assert.InDelta(t, 979.0/1019, rep.ProfitFactor, 1e-9)
	assert.InDelta(t, 979.0/1019, rep.PayoffRatio, 1e-9)
	assert.InDelta(t, 40, rep.TotalCosts, 1e-9)
	assert.Greater(t, rep.Turnover, 0.0)
}

func TestAnalyzePartialFIFO(t *testing.T) {
	res := buildCurve([]float64{100000, 101000, 102000})
	day := func(i int) time.Time {
		return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	}
	// 两笔买入, 一笔跨两个批次的卖出: 记一次往返
	res.Trades = []portfolio.Trade{
		{Date: day(0), Symbol: "600519", Side: portfolio.SideBuy, Shares: 100, Price: 100},
		{Date: day(1), Symbol: "600519", Side: portfolio.SideBuy, Shares: 100, Price: 102},
		{Date: day(2), Symbol: "600519", Side: portfolio.SideSell, Shares: 150, Price: 105},
	}
	rep, err := NewAnalyzer(0).Analyze(res)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.RoundTrips)
	assert.InDelta(t, 1.0, rep.WinRate, 1e-9)
	// 100*(105-100) + 50*(105-102) = 650
	assert.InDelta(t, 650, rep.AvgWin, 1e-9)
}

func TestAnalyzeVaRMetrics(t *testing.T) {
	values := []float64{100}
	v := 100.0
	rets := []float64{0.01, -0.02, 0.015, -0.01, 0.005, -0.03, 0.02, 0.01, -0.005, 0.012}
	for _, r := range rets {
		v *= 1 + r
		values = append(values, v)
	}
	rep, err := NewAnalyzer(0).Analyze(buildCurve(values))
	require.NoError(t, err)
	assert.Greater(t, rep.VaR95, 0.0)
	assert.GreaterOrEqual(t, rep.CVaR95, rep.VaR95)
	assert.InDelta(t, 0.03, rep.CVaR95, 1e-9)
	assert.False(t, math.IsNaN(rep.Skewness))
	assert.False(t, math.IsNaN(rep.Kurtosis))
}

func TestAnalyzeSortinoOnlyPenalizesDownside(t *testing.T) {
	// 上涨波动大, 下跌波动小: Sortino 应高于 Sharpe
	values := []float64{100}
	v := 100.0
	for _, r := range []float64{0.05, -0.002, 0.04, -0.001, 0.06, -0.002, 0.05, -0.001} {
		v *= 1 + r
		values = append(values, v)
	}
	rep, err := NewAnalyzer(0).Analyze(buildCurve(values))
	require.NoError(t, err)
	assert.Greater(t, rep.SortinoRatio, rep.SharpeRatio)
}

func TestAnalyzeRejectsShortCurve(t *testing.T) {
	_, err := NewAnalyzer(0).Analyze(&Result{})
	assert.Error(t, err)
	_, err = NewAnalyzer(0).Analyze(nil)
	assert.Error(t, err)
}
