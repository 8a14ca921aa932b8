package strategy

import (
	talib "github.com/markcheno/go-talib"

	"alphakit/internal/market"
)

// ImmediateEntry 入选即买入。
type ImmediateEntry struct{}

func (e *ImmediateEntry) Name() string        { return "immediate" }
func (e *ImmediateEntry) Params() []ParamSpec { return nil }
func (e *ImmediateEntry) Validate() error     { return nil }

func (e *ImmediateEntry) ShouldEnter(panel *market.Panel, dateIdx int, symbol string) bool {
	_, ok := panel.Close(dateIdx, symbol)
	return ok
}

// MABreakoutEntry 收盘价站上 N 日均线才触发买入。
type MABreakoutEntry struct {
	Period int `mapstructure:"period" json:"period"`
}

func (e *MABreakoutEntry) Name() string { return "ma_breakout" }

func (e *MABreakoutEntry) Params() []ParamSpec {
	return []ParamSpec{{Name: "period", Type: "int", Default: 20, Min: 2, Max: 250}}
}

func (e *MABreakoutEntry) Validate() error {
	spec, _ := findSpec(e.Params(), "period")
	return checkRange(spec, float64(e.Period))
}

func (e *MABreakoutEntry) ShouldEnter(panel *market.Panel, dateIdx int, symbol string) bool {
	closes := panel.CloseHistory(dateIdx, symbol, e.Period)
	if len(closes) < e.Period {
		return false
	}
	sma := talib.Sma(closes, e.Period)
	last := closes[len(closes)-1]
	return last > sma[len(sma)-1]
}

// RSIOversoldEntry RSI 低于阈值（超卖）时买入。
type RSIOversoldEntry struct {
	Period    int     `mapstructure:"period" json:"period"`
	Threshold float64 `mapstructure:"threshold" json:"threshold"`
}

func (e *RSIOversoldEntry) Name() string { return "rsi_oversold" }

func (e *RSIOversoldEntry) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "period", Type: "int", Default: 14, Min: 2, Max: 100},
		{Name: "threshold", Type: "float", Default: 30.0, Min: 5, Max: 50},
	}
}

func (e *RSIOversoldEntry) Validate() error {
	for _, p := range e.Params() {
		var v float64
		switch p.Name {
		case "period":
			v = float64(e.Period)
		case "threshold":
			v = e.Threshold
		}
		if err := checkRange(p, v); err != nil {
			return err
		}
	}
	return nil
}

func (e *RSIOversoldEntry) ShouldEnter(panel *market.Panel, dateIdx int, symbol string) bool {
	closes := panel.CloseHistory(dateIdx, symbol, e.Period*3)
	if len(closes) < e.Period+1 {
		return false
	}
	rsi := talib.Rsi(closes, e.Period)
	last := rsi[len(rsi)-1]
	return last > 0 && last < e.Threshold
}
