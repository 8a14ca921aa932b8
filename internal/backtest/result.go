// Package backtest 驱动模拟时钟：风控评估 → 策略决策 → 退出检查 →
// 撮合执行 → 市值记录，产出不可变的结果包。
package backtest

import (
	"time"

	"alphakit/internal/market"
	"alphakit/internal/portfolio"
	"alphakit/internal/risk"
)

// EquityPoint 资金曲线上的一个点。
type EquityPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// PositionsSnapshot 某交易日收盘后的持仓快照。
type PositionsSnapshot struct {
	Date      time.Time                     `json:"date"`
	Cash      float64                       `json:"cash"`
	Positions map[string]portfolio.Position `json:"positions"`
}

// Result 一次回测的全部产出，引擎完成后不再修改。
// 序列化与持久化由外部协作方负责。
type Result struct {
	InitialCapital   float64             `json:"initial_capital"`
	FinalValue       float64             `json:"final_value"`
	EquityCurve      []EquityPoint       `json:"equity_curve"`
	DailyReturns     []float64           `json:"daily_returns"` // 与 EquityCurve[1:] 对齐
	Trades           []portfolio.Trade   `json:"trades"`
	PositionsHistory []PositionsSnapshot `json:"positions_history"`
	Assessments      []risk.Assessment   `json:"assessments"`
	Diagnostics      []market.Diagnostic `json:"diagnostics"`

	diagSeen map[string]struct{}
}

// 同一 (日期, 标的, 类别) 的诊断只记录一次：一个调仓日内
// 估值与撮合会多次发现同一缺价事实。
func (r *Result) appendDiagnostics(diags ...market.Diagnostic) {
	for _, d := range diags {
		key := d.Kind + "|" + d.Symbol + "|" + d.Date.Format("2006-01-02")
		if _, ok := r.diagSeen[key]; ok {
			continue
		}
		if r.diagSeen == nil {
			r.diagSeen = make(map[string]struct{})
		}
		r.diagSeen[key] = struct{}{}
		r.Diagnostics = append(r.Diagnostics, d)
	}
}

func (r *Result) appendEquity(date time.Time, value float64) {
	if n := len(r.EquityCurve); n > 0 {
		prev := r.EquityCurve[n-1].Value
		ret := 0.0
		if prev > 0 {
			ret = value/prev - 1
		}
		r.DailyReturns = append(r.DailyReturns, ret)
	}
	r.EquityCurve = append(r.EquityCurve, EquityPoint{Date: date, Value: value})
	r.FinalValue = value
}

// 最终清仓后修正最后一个资金点，保持收益序列对齐。
func (r *Result) replaceLastEquity(value float64) {
	n := len(r.EquityCurve)
	if n == 0 {
		return
	}
	r.EquityCurve[n-1].Value = value
	r.FinalValue = value
	if len(r.DailyReturns) > 0 && n >= 2 {
		prev := r.EquityCurve[n-2].Value
		if prev > 0 {
			r.DailyReturns[len(r.DailyReturns)-1] = value/prev - 1
		}
	}
}
