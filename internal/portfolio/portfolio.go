// Package portfolio 维护资金/持仓账本，并由执行引擎负责全部变更。
package portfolio

import (
	"time"

	"alphakit/internal/market"
	"alphakit/internal/pkg/errs"
)

// Side 交易方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Position 单个标的的持仓。买入以 100 股整数手为单位，卖出可为任意整数股。
type Position struct {
	Symbol    string    `json:"symbol"`
	Shares    int64     `json:"shares"`
	AvgCost   float64   `json:"avg_cost"`
	EntryDate time.Time `json:"entry_date"`
}

// Trade 一笔撮合记录，生成后不可变。
type Trade struct {
	Date         time.Time `json:"date"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Shares       int64     `json:"shares"`
	Price        float64   `json:"price"`
	Commission   float64   `json:"commission"`
	StampTax     float64   `json:"stamp_tax"`
	TransferFee  float64   `json:"transfer_fee"`
	SlippageCost float64   `json:"slippage_cost"`
	Note         string    `json:"note,omitempty"`
}

// Notional 成交额（股数 × 价格）。
func (t Trade) Notional() float64 { return float64(t.Shares) * t.Price }

// TotalCost 该笔交易的全部费用。
func (t Trade) TotalCost() float64 {
	return t.Commission + t.StampTax + t.TransferFee + t.SlippageCost
}

// Portfolio 资金与持仓的唯一账本。仅执行引擎可以写入；
// 风控与绩效分析只读。不同回测 run 之间绝不共享。
type Portfolio struct {
	Cash           float64
	InitialCapital float64
	PeakValue      float64
	Positions      map[string]*Position

	lastPrices map[string]float64 // 停牌时沿用的最近已知价
}

// New 创建一个空组合。初始资金必须为正。
func New(initialCapital float64) (*Portfolio, error) {
	if initialCapital <= 0 {
		return nil, errs.Validationf("initial capital 必须 > 0, got %.2f", initialCapital)
	}
	return &Portfolio{
		Cash:           initialCapital,
		InitialCapital: initialCapital,
		PeakValue:      initialCapital,
		Positions:      make(map[string]*Position),
		lastPrices:     make(map[string]float64),
	}, nil
}

// MarkToMarket 计算组合市值：现金 + Σ(股数 × 价格)。
// 持仓标的当日无价时沿用最近已知价并产生 StalePriceWarning，
// 同一价格快照下重复调用结果一致。
func (p *Portfolio) MarkToMarket(prices map[string]float64, date time.Time) (float64, []market.Diagnostic) {
	total := p.Cash
	var diags []market.Diagnostic
	for sym, pos := range p.Positions {
		price, ok := prices[sym]
		if ok {
			p.lastPrices[sym] = price
		} else {
			price, ok = p.lastPrices[sym]
			if !ok {
				// 从未见过价格时退回成本价，同时给出告警
				price = pos.AvgCost
			}
			diags = append(diags, market.Diagnostic{
				Severity: "warning",
				Kind:     market.DiagStalePrice,
				Symbol:   sym,
				Date:     date,
				Message:  sym + " 当日无行情，按最近已知价估值",
			})
		}
		total += float64(pos.Shares) * price
	}
	return total, diags
}

// LastPrice 返回标的最近一次参与估值的价格。
func (p *Portfolio) LastPrice(sym string) (float64, bool) {
	v, ok := p.lastPrices[sym]
	return v, ok
}

// HeldSymbols 返回当前持仓标的（未排序）。
func (p *Portfolio) HeldSymbols() []string {
	out := make([]string, 0, len(p.Positions))
	for sym := range p.Positions {
		out = append(out, sym)
	}
	return out
}

// Snapshot 持仓快照，供结果记录使用。
func (p *Portfolio) Snapshot() map[string]Position {
	out := make(map[string]Position, len(p.Positions))
	for sym, pos := range p.Positions {
		out[sym] = *pos
	}
	return out
}
