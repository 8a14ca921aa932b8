package backtest

import (
	"context"
	"sort"
	"time"

	"alphakit/internal/cost"
	"alphakit/internal/market"
	"alphakit/internal/pkg/errs"
	"alphakit/internal/portfolio"
	"alphakit/internal/risk"
)

// VectorizedConfig 向量化回测的选股规则：按信号矩阵每日取
// 分值最高的 TopN 做多，可选分值最低的 BottomN 做空（市场中性）。
type VectorizedConfig struct {
	TopN    int  `json:"top_n"`
	BottomN int  `json:"bottom_n"`
	Short   bool `json:"short"`
}

// VectorizedEngine 向量化回测引擎：跳过三层策略管线，直接消费
// 预计算的信号矩阵。落选即卖出：跌出 TopN 的持仓当日平掉。
// 多头账本复用事件驱动引擎的执行器与风控，因此与等价的事件驱动组合
// （ml_score + immediate + never + 每日调仓 + sell_on_deselect）
// 逐日一致。
type VectorizedEngine struct {
	panel  *market.Panel
	scores *market.ScoreMatrix
	cfg    Config
	vcfg   VectorizedConfig
}

// NewVectorizedEngine 构建向量化引擎。
func NewVectorizedEngine(panel *market.Panel, scores *market.ScoreMatrix, cfg Config, vcfg VectorizedConfig) (*VectorizedEngine, error) {
	if panel == nil || panel.Len() == 0 {
		return nil, errs.Configf("价格面板为空")
	}
	if scores == nil {
		return nil, errs.Configf("信号矩阵不能为空")
	}
	if cfg.InitialCapital <= 0 {
		return nil, errs.Configf("initial capital 必须 > 0, got %.2f", cfg.InitialCapital)
	}
	if vcfg.TopN <= 0 {
		return nil, errs.Configf("top_n 必须 > 0")
	}
	if vcfg.Short && vcfg.BottomN <= 0 {
		return nil, errs.Configf("市场中性模式需要 bottom_n > 0")
	}
	return &VectorizedEngine{panel: panel, scores: scores, cfg: cfg, vcfg: vcfg}, nil
}

// Run 执行向量化模拟。空头腿在独立的影子账本上结算，不触碰 Portfolio。
func (e *VectorizedEngine) Run(ctx context.Context) (*Result, error) {
	pf, err := portfolio.New(e.cfg.InitialCapital)
	if err != nil {
		return nil, err
	}
	monitor, err := risk.NewMonitor(e.cfg.Risk)
	if err != nil {
		return nil, err
	}
	exec := portfolio.NewExecutor(e.cfg.Cost, e.cfg.LotSize)
	shorts := newShortBook(e.cfg.Cost, e.cfg.LotSize)

	res := &Result{InitialCapital: e.cfg.InitialCapital}
	for i := 0; i < e.panel.Len(); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		date := e.panel.DateAt(i)
		prices := e.panel.PricesAt(i)

		preValue, diags := pf.MarkToMarket(prices, date)
		res.appendDiagnostics(diags...)
		preValue += shorts.value(prices)
		assessment := monitor.Update(date, preValue, positionWeights(pf, preValue), e.cfg.Sectors)
		res.Assessments = append(res.Assessments, assessment)

		longs, bottoms := e.pick(date, i)
		weights := make(map[string]float64, len(longs))
		if len(longs) > 0 {
			w := 1.0 / float64(len(longs))
			for _, sym := range longs {
				weights[sym] = w
			}
		}
		trades, diags, err := exec.Rebalance(pf, weights, prices, assessment.RecommendedExposure, date)
		if err != nil {
			return nil, err
		}
		res.Trades = append(res.Trades, trades...)
		res.appendDiagnostics(diags...)

		if e.vcfg.Short {
			shortTrades, err := shorts.rebalance(bottoms, prices, e.cfg.InitialCapital, assessment.RecommendedExposure, date)
			if err != nil {
				return nil, err
			}
			res.Trades = append(res.Trades, shortTrades...)
		}

		value, diags := pf.MarkToMarket(prices, date)
		res.appendDiagnostics(diags...)
		value += shorts.value(prices)
		res.appendEquity(date, value)
		res.PositionsHistory = append(res.PositionsHistory, PositionsSnapshot{
			Date:      date,
			Cash:      pf.Cash,
			Positions: pf.Snapshot(),
		})
	}

	last := e.panel.Len() - 1
	prices := e.panel.PricesAt(last)
	date := e.panel.DateAt(last)
	changed := false
	if len(pf.Positions) > 0 {
		trades, err := exec.Liquidate(pf, pf.HeldSymbols(), prices, date, "final_liquidation")
		if err != nil {
			return nil, err
		}
		res.Trades = append(res.Trades, trades...)
		changed = changed || len(trades) > 0
	}
	closeTrades, err := shorts.closeAll(prices, date)
	if err != nil {
		return nil, err
	}
	res.Trades = append(res.Trades, closeTrades...)
	changed = changed || len(closeTrades) > 0
	if changed {
		value, diags := pf.MarkToMarket(prices, date)
		res.appendDiagnostics(diags...)
		value += shorts.value(prices)
		res.replaceLastEquity(value)
		res.PositionsHistory[len(res.PositionsHistory)-1] = PositionsSnapshot{
			Date:      date,
			Cash:      pf.Cash,
			Positions: pf.Snapshot(),
		}
	}
	return res, nil
}

// pick 当日的多头/空头候选集，只保留有行情的标的。
func (e *VectorizedEngine) pick(date time.Time, i int) ([]string, []string) {
	ranked := e.scores.RankedAt(date)
	tradable := make([]string, 0, len(ranked))
	for _, sym := range ranked {
		if _, ok := e.panel.Close(i, sym); ok {
			tradable = append(tradable, sym)
		}
	}
	n := e.vcfg.TopN
	if n > len(tradable) {
		n = len(tradable)
	}
	longs := append([]string(nil), tradable[:n]...)
	var bottoms []string
	if e.vcfg.Short {
		b := e.vcfg.BottomN
		if b > len(tradable)-n {
			b = len(tradable) - n
		}
		if b > 0 {
			bottoms = append([]string(nil), tradable[len(tradable)-b:]...)
		}
	}
	return longs, bottoms
}

// shortBook 市场中性回测的空头影子账本：开仓记现金与负债，平仓
// 买回冲销。费用走同一成本模型，开仓按卖出计税，平仓按买入。
type shortBook struct {
	costs   cost.Model
	lotSize int64
	cash    float64
	book    map[string]*shortPosition
}

type shortPosition struct {
	shares    int64
	lastPrice float64
}

func newShortBook(m cost.Model, lotSize int64) *shortBook {
	if lotSize <= 0 {
		lotSize = portfolio.LotSize
	}
	return &shortBook{costs: m, lotSize: lotSize, book: make(map[string]*shortPosition)}
}

// value 空头腿贡献的净值 = 累计现金 − 负债市值。停牌标的沿用上一价。
func (s *shortBook) value(prices map[string]float64) float64 {
	v := s.cash
	for sym, pos := range s.book {
		if price, ok := prices[sym]; ok && price > 0 {
			pos.lastPrice = price
		}
		v -= float64(pos.shares) * pos.lastPrice
	}
	return v
}

func (s *shortBook) rebalance(targets []string, prices map[string]float64, capital, exposure float64, date time.Time) ([]portfolio.Trade, error) {
	want := make(map[string]bool, len(targets))
	for _, sym := range targets {
		want[sym] = true
	}
	var trades []portfolio.Trade

	held := make([]string, 0, len(s.book))
	for sym := range s.book {
		held = append(held, sym)
	}
	sort.Strings(held)
	for _, sym := range held {
		if want[sym] {
			continue
		}
		trade, err := s.close(sym, prices, date, "short_close")
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	if len(targets) == 0 || exposure <= 0 {
		return trades, nil
	}
	per := capital * exposure / float64(len(targets))
	sorted := append([]string(nil), targets...)
	sort.Strings(sorted)
	for _, sym := range sorted {
		if _, exists := s.book[sym]; exists {
			continue
		}
		price, ok := prices[sym]
		if !ok || price <= 0 {
			continue
		}
		shares := int64(per/price) / s.lotSize * s.lotSize
		if shares <= 0 {
			continue
		}
		notional := float64(shares) * price
		bd, err := s.costs.Sell(notional, cost.IsPrimaryExchange(sym))
		if err != nil {
			return nil, err
		}
		slip := s.costs.SlippageCost(notional)
		s.cash += notional - bd.Total - slip
		s.book[sym] = &shortPosition{shares: shares, lastPrice: price}
		trades = append(trades, portfolio.Trade{
			Date:         date,
			Symbol:       sym,
			Side:         portfolio.SideSell,
			Shares:       shares,
			Price:        price,
			Commission:   bd.Commission,
			StampTax:     bd.StampTax,
			TransferFee:  bd.TransferFee,
			SlippageCost: slip,
			Note:         "short_open",
		})
	}
	return trades, nil
}

func (s *shortBook) close(sym string, prices map[string]float64, date time.Time, note string) (portfolio.Trade, error) {
	pos := s.book[sym]
	price, ok := prices[sym]
	if !ok || price <= 0 {
		price = pos.lastPrice
	}
	if price <= 0 {
		return portfolio.Trade{}, errs.Executionf("平空 %s 缺少价格", sym)
	}
	notional := float64(pos.shares) * price
	bd, err := s.costs.Buy(notional, cost.IsPrimaryExchange(sym))
	if err != nil {
		return portfolio.Trade{}, err
	}
	slip := s.costs.SlippageCost(notional)
	s.cash -= notional + bd.Total + slip
	trade := portfolio.Trade{
		Date:         date,
		Symbol:       sym,
		Side:         portfolio.SideBuy,
		Shares:       pos.shares,
		Price:        price,
		Commission:   bd.Commission,
		StampTax:     bd.StampTax,
		TransferFee:  bd.TransferFee,
		SlippageCost: slip,
		Note:         note,
	}
	delete(s.book, sym)
	return trade, nil
}

func (s *shortBook) closeAll(prices map[string]float64, date time.Time) ([]portfolio.Trade, error) {
	syms := make([]string, 0, len(s.book))
	for sym := range s.book {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	var trades []portfolio.Trade
	for _, sym := range syms {
		trade, err := s.close(sym, prices, date, "final_liquidation")
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}
