package strategy

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"alphakit/internal/market"
	"alphakit/internal/pkg/errs"
	"alphakit/internal/portfolio"
)

// FixedStopLossExit 跌破成本价固定比例止损。
type FixedStopLossExit struct {
	StopPct float64 `mapstructure:"stop_pct" json:"stop_pct"`
}

func (e *FixedStopLossExit) Name() string { return "fixed_stop_loss" }

func (e *FixedStopLossExit) Params() []ParamSpec {
	return []ParamSpec{{Name: "stop_pct", Type: "float", Default: 0.08, Min: 0.01, Max: 0.5}}
}

func (e *FixedStopLossExit) Validate() error {
	spec, _ := findSpec(e.Params(), "stop_pct")
	return checkRange(spec, e.StopPct)
}

func (e *FixedStopLossExit) ShouldExit(panel *market.Panel, dateIdx int, pos portfolio.Position) (bool, string) {
	price, ok := panel.Close(dateIdx, pos.Symbol)
	if !ok || pos.AvgCost <= 0 {
		return false, ""
	}
	loss := (pos.AvgCost - price) / pos.AvgCost
	if loss >= e.StopPct {
		return true, fmt.Sprintf("fixed_stop_loss: 亏损 %.2f%% 达到止损线 %.2f%%", loss*100, e.StopPct*100)
	}
	return false, ""
}

// ATRStopLossExit 跌破成本价减 N 倍 ATR 止损。
type ATRStopLossExit struct {
	Period     int     `mapstructure:"period" json:"period"`
	Multiplier float64 `mapstructure:"multiplier" json:"multiplier"`
}

func (e *ATRStopLossExit) Name() string { return "atr_stop_loss" }

func (e *ATRStopLossExit) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "period", Type: "int", Default: 14, Min: 2, Max: 100},
		{Name: "multiplier", Type: "float", Default: 2.0, Min: 0.5, Max: 5},
	}
}

func (e *ATRStopLossExit) Validate() error {
	for _, p := range e.Params() {
		var v float64
		switch p.Name {
		case "period":
			v = float64(e.Period)
		case "multiplier":
			v = e.Multiplier
		}
		if err := checkRange(p, v); err != nil {
			return err
		}
	}
	return nil
}

func (e *ATRStopLossExit) ShouldExit(panel *market.Panel, dateIdx int, pos portfolio.Position) (bool, string) {
	price, ok := panel.Close(dateIdx, pos.Symbol)
	if !ok {
		return false, ""
	}
	look := e.Period * 3
	highs := panel.HighHistory(dateIdx, pos.Symbol, look)
	lows := panel.LowHistory(dateIdx, pos.Symbol, look)
	closes := panel.CloseHistory(dateIdx, pos.Symbol, look)
	n := len(closes)
	if n <= e.Period || len(highs) != n || len(lows) != n {
		return false, ""
	}
	atr := talib.Atr(highs, lows, closes, e.Period)
	last := atr[len(atr)-1]
	if last <= 0 {
		return false, ""
	}
	stop := pos.AvgCost - e.Multiplier*last
	if price < stop {
		return true, fmt.Sprintf("atr_stop_loss: 价格 %.2f 跌破 ATR 止损 %.2f", price, stop)
	}
	return false, ""
}

// TimeLimitExit 持仓超过最大天数退出。
type TimeLimitExit struct {
	MaxDays int `mapstructure:"max_days" json:"max_days"`
}

func (e *TimeLimitExit) Name() string { return "time_limit" }

func (e *TimeLimitExit) Params() []ParamSpec {
	return []ParamSpec{{Name: "max_days", Type: "int", Default: 20, Min: 1, Max: 500}}
}

func (e *TimeLimitExit) Validate() error {
	spec, _ := findSpec(e.Params(), "max_days")
	return checkRange(spec, float64(e.MaxDays))
}

func (e *TimeLimitExit) ShouldExit(panel *market.Panel, dateIdx int, pos portfolio.Position) (bool, string) {
	held := int(panel.DateAt(dateIdx).Sub(pos.EntryDate).Hours() / 24)
	if held >= e.MaxDays {
		return true, fmt.Sprintf("time_limit: 持仓 %d 天达到上限 %d", held, e.MaxDays)
	}
	return false, ""
}

// CombinedExit 组合多个退出条件。mode=any 任一触发即退出，
// mode=all 全部同时触发才退出。
type CombinedExit struct {
	Mode  string `mapstructure:"mode" json:"mode"`
	Exits []Exit `mapstructure:"-" json:"-"`
}

func (e *CombinedExit) Name() string { return "combined" }

func (e *CombinedExit) Params() []ParamSpec {
	return []ParamSpec{{Name: "mode", Type: "string", Default: "any", Options: []string{"any", "all"}}}
}

func (e *CombinedExit) Validate() error {
	if len(e.Exits) == 0 {
		return errs.Validationf("combined exit 需要至少一个子条件")
	}
	if e.Mode == "" {
		e.Mode = "any"
	}
	spec, _ := findSpec(e.Params(), "mode")
	if err := checkOption(spec, e.Mode); err != nil {
		return err
	}
	for _, sub := range e.Exits {
		if err := sub.Validate(); err != nil {
			return fmt.Errorf("combined exit 子条件 %s: %w", sub.Name(), err)
		}
	}
	return nil
}

func (e *CombinedExit) ShouldExit(panel *market.Panel, dateIdx int, pos portfolio.Position) (bool, string) {
	if e.Mode == "all" {
		reason := ""
		for _, sub := range e.Exits {
			hit, r := sub.ShouldExit(panel, dateIdx, pos)
			if !hit {
				return false, ""
			}
			reason = r
		}
		return len(e.Exits) > 0, reason
	}
	for _, sub := range e.Exits {
		if hit, reason := sub.ShouldExit(panel, dateIdx, pos); hit {
			return true, reason
		}
	}
	return false, ""
}

// NeverExit 从不主动退出，仅在回测结束时强制清仓。向量化一致性
// 校验用它构造 immediate-entry/no-exit 的等价事件驱动策略。
type NeverExit struct{}

func (e *NeverExit) Name() string        { return "never" }
func (e *NeverExit) Params() []ParamSpec { return nil }
func (e *NeverExit) Validate() error     { return nil }

func (e *NeverExit) ShouldExit(*market.Panel, int, portfolio.Position) (bool, string) {
	return false, ""
}
