package backtest

import (
	"context"

	"alphakit/internal/cost"
	"alphakit/internal/logger"
	"alphakit/internal/market"
	"alphakit/internal/pkg/errs"
	"alphakit/internal/portfolio"
	"alphakit/internal/risk"
	"alphakit/internal/strategy"
)

// Config 单次回测的参数。
type Config struct {
	InitialCapital float64           `json:"initial_capital"`
	Cost           cost.Model        `json:"cost"`
	LotSize        int64             `json:"lot_size"`
	Risk           risk.Config       `json:"risk"`
	Sectors        map[string]string `json:"sectors,omitempty"`
}

// Engine 事件驱动回测引擎。单线程、确定性：日期严格升序处理，
// 同日内卖单先于买单。引擎独占 Portfolio，不同 run 之间无共享状态。
type Engine struct {
	panel *market.Panel
	strat *strategy.ThreeLayer
	cfg   Config
}

// NewEngine 构建引擎。空面板立即报错；策略组合在此通过 fail-fast 校验。
func NewEngine(panel *market.Panel, strat *strategy.ThreeLayer, cfg Config) (*Engine, error) {
	if panel == nil || panel.Len() == 0 {
		return nil, errs.Configf("价格面板为空")
	}
	if strat == nil {
		return nil, errs.Configf("策略组合不能为空")
	}
	if err := strat.Validate(); err != nil {
		return nil, err
	}
	if cfg.InitialCapital <= 0 {
		return nil, errs.Configf("initial capital 必须 > 0, got %.2f", cfg.InitialCapital)
	}
	return &Engine{panel: panel, strat: strat, cfg: cfg}, nil
}

// Run 执行完整模拟。每个交易日按固定次序推进：
// risk.Update → strategy.Decide（调仓日）→ Exit 评估 → 撮合 → 市值记录。
// 致命错误中止整个 run，不返回部分结果。
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	pf, err := portfolio.New(e.cfg.InitialCapital)
	if err != nil {
		return nil, err
	}
	monitor, err := risk.NewMonitor(e.cfg.Risk)
	if err != nil {
		return nil, err
	}
	exec := portfolio.NewExecutor(e.cfg.Cost, e.cfg.LotSize)

	rebalance := make(map[int]bool)
	for _, i := range e.panel.RebalanceIndexes(e.strat.Freq) {
		rebalance[i] = true
	}

	res := &Result{InitialCapital: e.cfg.InitialCapital}
	for i := 0; i < e.panel.Len(); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		date := e.panel.DateAt(i)
		prices := e.panel.PricesAt(i)

		// 1. 风控先行，其输出决定本期仓位缩放
		preValue, diags := pf.MarkToMarket(prices, date)
		res.appendDiagnostics(diags...)
		assessment := monitor.Update(date, preValue, positionWeights(pf, preValue), e.cfg.Sectors)
		res.Assessments = append(res.Assessments, assessment)

		// 2. 调仓日由策略给出目标权重
		var decision strategy.Decision
		hasDecision := false
		if rebalance[i] {
			decision, err = e.strat.Decide(e.panel, i, pf.Snapshot())
			if err != nil {
				return nil, err
			}
			hasDecision = true
		}

		// 3. 退出条件每天评估，可在非调仓日强制卖出
		exits := e.strat.EvaluateExits(e.panel, i, pf.Snapshot())
		if len(exits) > 0 {
			symbols := make([]string, 0, len(exits))
			for sym, reason := range exits {
				symbols = append(symbols, sym)
				logger.Debugf("[backtest] %s %s 触发退出: %s", date.Format("2006-01-02"), sym, reason)
			}
			trades, err := exec.Liquidate(pf, symbols, prices, date, "exit")
			if err != nil {
				return nil, err
			}
			for ti := range trades {
				if reason, ok := exits[trades[ti].Symbol]; ok {
					trades[ti].Note = reason
				}
			}
			res.Trades = append(res.Trades, trades...)
			if hasDecision {
				for sym := range exits {
					delete(decision.Weights, sym)
				}
			}
		}

		// 4. 撮合：卖在前、买在后，风控缩放目标市值
		if hasDecision {
			trades, diags, err := exec.Rebalance(pf, decision.Weights, prices, assessment.RecommendedExposure, date)
			if err != nil {
				return nil, err
			}
			res.Trades = append(res.Trades, trades...)
			res.appendDiagnostics(diags...)
		}

		// 5. 收盘市值
		value, diags := pf.MarkToMarket(prices, date)
		res.appendDiagnostics(diags...)
		res.appendEquity(date, value)
		res.PositionsHistory = append(res.PositionsHistory, PositionsSnapshot{
			Date:      date,
			Cash:      pf.Cash,
			Positions: pf.Snapshot(),
		})
	}

	// 回测结束强制清仓
	if len(pf.Positions) > 0 {
		last := e.panel.Len() - 1
		prices := e.panel.PricesAt(last)
		date := e.panel.DateAt(last)
		trades, err := exec.Liquidate(pf, pf.HeldSymbols(), prices, date, "final_liquidation")
		if err != nil {
			return nil, err
		}
		res.Trades = append(res.Trades, trades...)
		value, diags := pf.MarkToMarket(prices, date)
		res.appendDiagnostics(diags...)
		res.replaceLastEquity(value)
		res.PositionsHistory[len(res.PositionsHistory)-1] = PositionsSnapshot{
			Date:      date,
			Cash:      pf.Cash,
			Positions: pf.Snapshot(),
		}
	}
	return res, nil
}

// positionWeights 各持仓市值占组合价值的比例，供集中度检查使用。
func positionWeights(pf *portfolio.Portfolio, total float64) map[string]float64 {
	if total <= 0 {
		return nil
	}
	out := make(map[string]float64, len(pf.Positions))
	for sym, pos := range pf.Positions {
		if price, ok := pf.LastPrice(sym); ok {
			out[sym] = float64(pos.Shares) * price / total
		}
	}
	return out
}
