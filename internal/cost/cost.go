// Package cost 实现 A 股交易成本模型：佣金、印花税、过户费。
// 费用计算用 decimal 精确到分，避免浮点累积误差进入资金账本。
package cost

import (
	"github.com/shopspring/decimal"

	"alphakit/internal/pkg/errs"
	"alphakit/internal/pkg/symbol"
)

// Model 为纯函数集合，费率全部来自配置常量。
type Model struct {
	CommissionRate  float64 `json:"commission_rate"`
	MinCommission   float64 `json:"min_commission"`
	StampTaxRate    float64 `json:"stamp_tax_rate"`
	TransferFeeRate float64 `json:"transfer_fee_rate"`
	SlippageBps     float64 `json:"slippage_bps"`
}

// DefaultModel 返回 A 股默认费率：佣金万 2.5（最低 5 元）、印花税千 1（卖出）、
// 过户费十万 2（仅沪市）。
func DefaultModel() Model {
	return Model{
		CommissionRate:  0.00025,
		MinCommission:   5,
		StampTaxRate:    0.001,
		TransferFeeRate: 0.00002,
		SlippageBps:     0,
	}
}

// Breakdown 单笔买卖的费用拆分。
type Breakdown struct {
	Commission  float64 `json:"commission"`
	TransferFee float64 `json:"transfer_fee"`
	StampTax    float64 `json:"stamp_tax"`
	Total       float64 `json:"total"`
}

// Buy 计算买入费用。印花税买入为零；负的成交额直接报错，不做钳制。
func (m Model) Buy(notional float64, primaryExchange bool) (Breakdown, error) {
	if notional < 0 {
		return Breakdown{}, errs.Validationf("buy notional 不可为负: %.4f", notional)
	}
	return m.breakdown(notional, primaryExchange, false), nil
}

// Sell 计算卖出费用，含印花税。
func (m Model) Sell(notional float64, primaryExchange bool) (Breakdown, error) {
	if notional < 0 {
		return Breakdown{}, errs.Validationf("sell notional 不可为负: %.4f", notional)
	}
	return m.breakdown(notional, primaryExchange, true), nil
}

func (m Model) breakdown(notional float64, primaryExchange, isSell bool) Breakdown {
	n := decimal.NewFromFloat(notional)

	commission := n.Mul(decimal.NewFromFloat(m.CommissionRate))
	minComm := decimal.NewFromFloat(m.MinCommission)
	if notional > 0 && commission.LessThan(minComm) {
		commission = minComm
	}
	commission = commission.Round(2)

	transfer := decimal.Zero
	if primaryExchange {
		transfer = n.Mul(decimal.NewFromFloat(m.TransferFeeRate)).Round(2)
	}

	stamp := decimal.Zero
	if isSell {
		stamp = n.Mul(decimal.NewFromFloat(m.StampTaxRate)).Round(2)
	}

	total := commission.Add(transfer).Add(stamp)
	return Breakdown{
		Commission:  commission.InexactFloat64(),
		TransferFee: transfer.InexactFloat64(),
		StampTax:    stamp.InexactFloat64(),
		Total:       total.InexactFloat64(),
	}
}

// SlippageCost 按 bps 估算滑点成本（成交额 × bps / 10000）。
func (m Model) SlippageCost(notional float64) float64 {
	if notional <= 0 || m.SlippageBps <= 0 {
		return 0
	}
	return decimal.NewFromFloat(notional).
		Mul(decimal.NewFromFloat(m.SlippageBps)).
		Div(decimal.NewFromInt(10000)).
		Round(2).
		InexactFloat64()
}

// IsPrimaryExchange 判断标的是否沪市挂牌，过户费只对沪市标的收取。
func IsPrimaryExchange(code string) bool {
	info, ok := symbol.Parse(code)
	return ok && info.Exchange == symbol.ExchangeSSE
}
