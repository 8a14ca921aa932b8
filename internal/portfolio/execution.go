package portfolio

import (
	"fmt"
	"math"
	"sort"
	"time"

	"alphakit/internal/cost"
	"alphakit/internal/market"
	"alphakit/internal/pkg/errs"
)

// LotSize A 股最小申报单位。
const LotSize = 100

// Executor 将目标权重转换为成交序列并更新账本。
// 同一调仓日内卖单严格先于买单执行，释放现金后再买入。
type Executor struct {
	costs   cost.Model
	lotSize int64
}

// NewExecutor 创建执行引擎。lotSize <= 0 时取默认 100。
func NewExecutor(m cost.Model, lotSize int64) *Executor {
	if lotSize <= 0 {
		lotSize = LotSize
	}
	return &Executor{costs: m, lotSize: lotSize}
}

// Rebalance 按 weights × exposure 调整组合。
// 权重中不存在的持仓全部卖出；买入向下取整到整数手；
// 现金不足的买单收缩到可负担的最大手数并在 Note 里说明。
func (e *Executor) Rebalance(p *Portfolio, weights map[string]float64, prices map[string]float64, exposure float64, date time.Time) ([]Trade, []market.Diagnostic, error) {
	if p == nil {
		return nil, nil, errs.Executionf("portfolio 为空")
	}
	if exposure < 0 {
		exposure = 0
	}
	if exposure > 1 {
		exposure = 1
	}
	total, diags := p.MarkToMarket(prices, date)

	var trades []Trade

	// 先卖：目标权重之外的持仓整仓退出，权重缩小的持仓卖出差额
	held := p.HeldSymbols()
	sort.Strings(held)
	for _, sym := range held {
		pos := p.Positions[sym]
		w := weights[sym] * exposure
		targetShares := int64(0)
		if w > 0 {
			price, ok := prices[sym]
			if !ok {
				// 不用卖出且无行情，持仓原样保留
				continue
			}
			targetShares = int64(math.Floor(total * w / price))
		}
		if targetShares >= pos.Shares {
			continue
		}
		sellShares := pos.Shares - targetShares
		if w == 0 {
			sellShares = pos.Shares // 默认策略：整仓退出
		}
		trade, err := e.sell(p, sym, sellShares, prices, date, "")
		if err != nil {
			return nil, diags, err
		}
		trades = append(trades, trade)
	}

	// 后买：按剩余现金逐个买入
	buySyms := make([]string, 0, len(weights))
	for sym, w := range weights {
		if w > 0 {
			buySyms = append(buySyms, sym)
		}
	}
	sort.Strings(buySyms)
	for _, sym := range buySyms {
		price, ok := prices[sym]
		if !ok || price <= 0 {
			diags = append(diags, market.Diagnostic{
				Severity: "info",
				Kind:     market.DiagStalePrice,
				Symbol:   sym,
				Date:     date,
				Message:  sym + " 当日无行情，跳过买入",
			})
			continue
		}
		targetNotional := total * weights[sym] * exposure
		var current float64
		if pos, exists := p.Positions[sym]; exists {
			current = float64(pos.Shares) * price
		}
		delta := targetNotional - current
		if delta <= 0 {
			continue
		}
		lots := int64(math.Floor(delta / price / float64(e.lotSize)))
		if lots <= 0 {
			continue
		}
		trade, ok, err := e.buy(p, sym, lots*e.lotSize, price, date)
		if err != nil {
			return nil, diags, err
		}
		if !ok {
			diags = append(diags, market.Diagnostic{
				Severity: "info",
				Kind:     "insufficient_cash",
				Symbol:   sym,
				Date:     date,
				Message:  fmt.Sprintf("%s 现金不足，买入整体取消", sym),
			})
			continue
		}
		trades = append(trades, trade)
	}
	return trades, diags, nil
}

// Liquidate 强制卖出给定标的（止损触发或回测结束清仓）。
func (e *Executor) Liquidate(p *Portfolio, symbols []string, prices map[string]float64, date time.Time, note string) ([]Trade, error) {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	var trades []Trade
	for _, sym := range sorted {
		pos, ok := p.Positions[sym]
		if !ok || pos.Shares == 0 {
			continue
		}
		trade, err := e.sell(p, sym, pos.Shares, prices, date, note)
		if err != nil {
			return trades, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func (e *Executor) sell(p *Portfolio, sym string, shares int64, prices map[string]float64, date time.Time, note string) (Trade, error) {
	pos, ok := p.Positions[sym]
	if !ok || pos.Shares < shares || shares <= 0 {
		return Trade{}, errs.Executionf("%s 卖出股数非法: 持有 %d, 卖出 %d", sym, posShares(pos), shares)
	}
	price, ok := prices[sym]
	if !ok {
		// 卖出目标无法定价，对本次回测致命
		return Trade{}, errs.Executionf("%s 缺少行情，无法卖出", sym)
	}
	notional := float64(shares) * price
	bd, err := e.costs.Sell(notional, cost.IsPrimaryExchange(sym))
	if err != nil {
		return Trade{}, err
	}
	slip := e.costs.SlippageCost(notional)
	p.Cash += notional - bd.Total - slip
	pos.Shares -= shares
	if pos.Shares == 0 {
		delete(p.Positions, sym)
	}
	return Trade{
		Date:         date,
		Symbol:       sym,
		Side:         SideSell,
		Shares:       shares,
		Price:        price,
		Commission:   bd.Commission,
		StampTax:     bd.StampTax,
		TransferFee:  bd.TransferFee,
		SlippageCost: slip,
		Note:         note,
	}, nil
}

// buy 买入 shares 股；现金不足时按整数手收缩，完全买不起返回 ok=false。
func (e *Executor) buy(p *Portfolio, sym string, shares int64, price float64, date time.Time) (Trade, bool, error) {
	note := ""
	requested := shares
	var bd cost.Breakdown
	var slip float64
	for shares > 0 {
		notional := float64(shares) * price
		var err error
		bd, err = e.costs.Buy(notional, cost.IsPrimaryExchange(sym))
		if err != nil {
			return Trade{}, false, err
		}
		slip = e.costs.SlippageCost(notional)
		if notional+bd.Total+slip <= p.Cash {
			break
		}
		shares -= e.lotSize
	}
	if shares <= 0 {
		return Trade{}, false, nil
	}
	if shares < requested {
		note = fmt.Sprintf("现金不足，%d 股收缩为 %d 股", requested, shares)
	}
	notional := float64(shares) * price
	p.Cash -= notional + bd.Total + slip

	pos, exists := p.Positions[sym]
	if !exists {
		pos = &Position{Symbol: sym, EntryDate: date}
		p.Positions[sym] = pos
	}
	// 含费用的摊薄成本
	newShares := pos.Shares + shares
	pos.AvgCost = (pos.AvgCost*float64(pos.Shares) + notional + bd.Total + slip) / float64(newShares)
	pos.Shares = newShares
	p.lastPrices[sym] = price

	return Trade{
		Date:         date,
		Symbol:       sym,
		Side:         SideBuy,
		Shares:       shares,
		Price:        price,
		Commission:   bd.Commission,
		StampTax:     bd.StampTax,
		TransferFee:  bd.TransferFee,
		SlippageCost: slip,
		Note:         note,
	}, true, nil
}

func posShares(pos *Position) int64 {
	if pos == nil {
		return 0
	}
	return pos.Shares
}
