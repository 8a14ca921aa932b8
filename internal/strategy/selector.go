package strategy

import (
	"sort"

	talib "github.com/markcheno/go-talib"

	"alphakit/internal/market"
	"alphakit/internal/pkg/errs"
)

// MomentumSelector 按 N 日动量（ROC）降序选取前 TopN。
type MomentumSelector struct {
	Lookback int `mapstructure:"lookback" json:"lookback"`
	TopN     int `mapstructure:"top_n" json:"top_n"`
}

func (s *MomentumSelector) Name() string { return "momentum" }

func (s *MomentumSelector) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "lookback", Type: "int", Default: 20, Min: 2, Max: 250},
		{Name: "top_n", Type: "int", Default: 10, Min: 1, Max: 500},
	}
}

func (s *MomentumSelector) Validate() error {
	for _, p := range s.Params() {
		var v float64
		switch p.Name {
		case "lookback":
			v = float64(s.Lookback)
		case "top_n":
			v = float64(s.TopN)
		}
		if err := checkRange(p, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *MomentumSelector) Select(panel *market.Panel, dateIdx int) ([]string, error) {
	type scored struct {
		sym string
		v   float64
	}
	var candidates []scored
	for _, sym := range panel.Symbols() {
		closes := panel.CloseHistory(dateIdx, sym, s.Lookback+1)
		if len(closes) < s.Lookback+1 {
			continue
		}
		roc := talib.Roc(closes, s.Lookback)
		last := roc[len(roc)-1]
		if market.IsNoTrade(last) {
			continue
		}
		candidates = append(candidates, scored{sym, last})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].v == candidates[j].v {
			return candidates[i].sym < candidates[j].sym
		}
		return candidates[i].v > candidates[j].v
	})
	n := s.TopN
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]string, 0, n)
	for _, c := range candidates[:n] {
		out = append(out, c.sym)
	}
	return out, nil
}

// FactorSelector 按外部估值/基本面因子排序选取（value 类策略）。
// Ascending=true 时取最小值（如低市盈率）。
type FactorSelector struct {
	Factors   map[string]float64 `mapstructure:"factors" json:"factors"`
	Ascending bool               `mapstructure:"ascending" json:"ascending"`
	TopN      int                `mapstructure:"top_n" json:"top_n"`
}

func (s *FactorSelector) Name() string { return "value" }

func (s *FactorSelector) Params() []ParamSpec {
	return []ParamSpec{
		{Name: "top_n", Type: "int", Default: 10, Min: 1, Max: 500},
		{Name: "ascending", Type: "bool", Default: true},
	}
}

func (s *FactorSelector) Validate() error {
	if len(s.Factors) == 0 {
		return errs.Validationf("value selector 需要非空因子表")
	}
	spec, _ := findSpec(s.Params(), "top_n")
	return checkRange(spec, float64(s.TopN))
}

func (s *FactorSelector) Select(panel *market.Panel, dateIdx int) ([]string, error) {
	type scored struct {
		sym string
		v   float64
	}
	var candidates []scored
	for sym, v := range s.Factors {
		if !panel.HasSymbol(sym) {
			continue
		}
		if _, ok := panel.Close(dateIdx, sym); !ok {
			continue
		}
		candidates = append(candidates, scored{sym, v})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].v == candidates[j].v {
			return candidates[i].sym < candidates[j].sym
		}
		if s.Ascending {
			return candidates[i].v < candidates[j].v
		}
		return candidates[i].v > candidates[j].v
	})
	n := s.TopN
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]string, 0, n)
	for _, c := range candidates[:n] {
		out = append(out, c.sym)
	}
	return out, nil
}

// ExternalListSelector 使用外部给定的固定名单，过滤掉当日无行情的标的。
type ExternalListSelector struct {
	Symbols []string `mapstructure:"symbols" json:"symbols"`
}

func (s *ExternalListSelector) Name() string { return "external_list" }

func (s *ExternalListSelector) Params() []ParamSpec {
	return []ParamSpec{{Name: "symbols", Type: "string"}}
}

func (s *ExternalListSelector) Validate() error {
	if len(s.Symbols) == 0 {
		return errs.Validationf("external_list selector 需要非空标的列表")
	}
	return nil
}

func (s *ExternalListSelector) Select(panel *market.Panel, dateIdx int) ([]string, error) {
	out := make([]string, 0, len(s.Symbols))
	for _, sym := range s.Symbols {
		if _, ok := panel.Close(dateIdx, sym); ok {
			out = append(out, sym)
		}
	}
	return out, nil
}

// MLScoreSelector 按外部模型打分矩阵选取当日分值最高的 TopN。
type MLScoreSelector struct {
	Scores *market.ScoreMatrix `mapstructure:"-" json:"-"`
	TopN   int                 `mapstructure:"top_n" json:"top_n"`
}

func (s *MLScoreSelector) Name() string { return "ml_score" }

func (s *MLScoreSelector) Params() []ParamSpec {
	return []ParamSpec{{Name: "top_n", Type: "int", Default: 10, Min: 1, Max: 500}}
}

func (s *MLScoreSelector) Validate() error {
	if s.Scores == nil {
		return errs.Validationf("ml_score selector 需要信号矩阵")
	}
	spec, _ := findSpec(s.Params(), "top_n")
	return checkRange(spec, float64(s.TopN))
}

func (s *MLScoreSelector) Select(panel *market.Panel, dateIdx int) ([]string, error) {
	ranked := s.Scores.RankedAt(panel.DateAt(dateIdx))
	out := make([]string, 0, s.TopN)
	for _, sym := range ranked {
		if len(out) >= s.TopN {
			break
		}
		if _, ok := panel.Close(dateIdx, sym); ok {
			out = append(out, sym)
		}
	}
	return out, nil
}
