package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphakit/internal/market"
	"alphakit/internal/pkg/errs"
	"alphakit/internal/portfolio"
)

// testPanel 三只票、30 个交易日：600519 稳步上涨、000001 下跌、000002 横盘。
func testPanel(t *testing.T) *market.Panel {
	t.Helper()
	bars := make(map[string][]market.Bar)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		d := base.AddDate(0, 0, i)
		up := 100 * (1 + 0.01*float64(i))
		down := 100 * (1 - 0.01*float64(i))
		bars["600519"] = append(bars["600519"], market.Bar{Date: d, Open: up, High: up * 1.01, Low: up * 0.99, Close: up, Volume: 1e6})
		bars["000001"] = append(bars["000001"], market.Bar{Date: d, Open: down, High: down * 1.01, Low: down * 0.99, Close: down, Volume: 1e6})
		bars["000002"] = append(bars["000002"], market.Bar{Date: d, Open: 100, High: 101, Low: 99, Close: 100, Volume: 1e6})
	}
	panel, _, err := market.NewPanel(bars)
	require.NoError(t, err)
	return panel
}

func TestComposerValidationGate(t *testing.T) {
	valid := &ThreeLayer{
		Selector: &MomentumSelector{Lookback: 10, TopN: 2},
		Entry:    &ImmediateEntry{},
		Exit:     &NeverExit{},
		Freq:     market.FreqWeekly,
	}
	require.NoError(t, valid.Validate())

	t.Run("missing role", func(t *testing.T) {
		s := *valid
		s.Exit = nil
		err := s.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrValidation))
	})

	t.Run("bad freq", func(t *testing.T) {
		s := *valid
		s.Freq = "Q"
		err := s.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrValidation))
	})

	t.Run("param out of declared range", func(t *testing.T) {
		s := *valid
		s.Selector = &MomentumSelector{Lookback: 1000, TopN: 2}
		err := s.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrValidation))
	})
}

func TestMomentumSelectorRanksByReturn(t *testing.T) {
	panel := testPanel(t)
	sel := &MomentumSelector{Lookback: 10, TopN: 2}
	picked, err := sel.Select(panel, panel.Len()-1)
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "600519", picked[0], "涨幅最大的排第一")
}

func TestDecideEqualWeightsAndHeldRetained(t *testing.T) {
	panel := testPanel(t)
	s := &ThreeLayer{
		Selector: &ExternalListSelector{Symbols: []string{"600519", "000002"}},
		Entry:    &ImmediateEntry{},
		Exit:     &NeverExit{},
		Freq:     market.FreqDaily,
	}
	require.NoError(t, s.Validate())

	held := map[string]portfolio.Position{
		"000001": {Symbol: "000001", Shares: 100, AvgCost: 100},
	}
	d, err := s.Decide(panel, panel.Len()-1, held)
	require.NoError(t, err)
	// 持仓 000001 未被选中但保留，新增两只入选票，等权 1/3
	assert.Len(t, d.Weights, 3)
	for _, w := range d.Weights {
		assert.InDelta(t, 1.0/3, w, 1e-9)
	}
	require.NoError(t, d.Validate())
}

func TestDecideSellOnDeselect(t *testing.T) {
	panel := testPanel(t)
	s := &ThreeLayer{
		Selector:       &ExternalListSelector{Symbols: []string{"600519", "000002"}},
		Entry:          &ImmediateEntry{},
		Exit:           &NeverExit{},
		Freq:           market.FreqDaily,
		SellOnDeselect: true,
	}
	require.NoError(t, s.Validate())

	held := map[string]portfolio.Position{
		"000001": {Symbol: "000001", Shares: 100, AvgCost: 100},
		"600519": {Symbol: "600519", Shares: 100, AvgCost: 100},
	}
	d, err := s.Decide(panel, panel.Len()-1, held)
	require.NoError(t, err)
	// 落选的 000001 被剔除，调仓时会被卖出；在选的持仓 600519 不过 Entry 闸门
	assert.Len(t, d.Weights, 2)
	assert.NotContains(t, d.Weights, "000001")
	assert.Contains(t, d.Weights, "600519")
	assert.Contains(t, d.Weights, "000002")
}

func TestDecideEmptySelection(t *testing.T) {
	panel := testPanel(t)
	s := &ThreeLayer{
		Selector: &ExternalListSelector{Symbols: []string{"999999"}}, // 面板外标的
		Entry:    &ImmediateEntry{},
		Exit:     &NeverExit{},
		Freq:     market.FreqDaily,
	}
	d, err := s.Decide(panel, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, d.Weights)
}

func TestMaxPositionsCap(t *testing.T) {
	panel := testPanel(t)
	s := &ThreeLayer{
		Selector:     &ExternalListSelector{Symbols: []string{"000001", "000002", "600519"}},
		Entry:        &ImmediateEntry{},
		Exit:         &NeverExit{},
		Freq:         market.FreqDaily,
		MaxPositions: 2,
	}
	d, err := s.Decide(panel, 10, nil)
	require.NoError(t, err)
	assert.Len(t, d.Weights, 2)
}

func TestFixedStopLossExit(t *testing.T) {
	panel := testPanel(t)
	exit := &FixedStopLossExit{StopPct: 0.08}
	pos := portfolio.Position{Symbol: "000001", Shares: 100, AvgCost: 100, EntryDate: panel.DateAt(0)}

	hit, _ := exit.ShouldExit(panel, 2, pos) // 跌 2%，未触发
	assert.False(t, hit)
	hit, reason := exit.ShouldExit(panel, 15, pos) // 跌 15%，触发
	assert.True(t, hit)
	assert.Contains(t, reason, "fixed_stop_loss")
}

func TestTimeLimitExit(t *testing.T) {
	panel := testPanel(t)
	exit := &TimeLimitExit{MaxDays: 10}
	pos := portfolio.Position{Symbol: "000002", Shares: 100, AvgCost: 100, EntryDate: panel.DateAt(0)}

	hit, _ := exit.ShouldExit(panel, 5, pos)
	assert.False(t, hit)
	hit, _ = exit.ShouldExit(panel, 12, pos)
	assert.True(t, hit)
}

func TestCombinedExitModes(t *testing.T) {
	panel := testPanel(t)
	pos := portfolio.Position{Symbol: "000001", Shares: 100, AvgCost: 100, EntryDate: panel.DateAt(0)}
	stop := &FixedStopLossExit{StopPct: 0.08}
	timeLimit := &TimeLimitExit{MaxDays: 25}

	anyMode := &CombinedExit{Mode: "any", Exits: []Exit{stop, timeLimit}}
	hit, _ := anyMode.ShouldExit(panel, 15, pos) // 止损触发、时间未到
	assert.True(t, hit)

	allMode := &CombinedExit{Mode: "all", Exits: []Exit{stop, timeLimit}}
	hit, _ = allMode.ShouldExit(panel, 15, pos)
	assert.False(t, hit)
	hit, _ = allMode.ShouldExit(panel, 28, pos) // 两个条件都满足
	assert.True(t, hit)
}

func TestBuildFromProfile(t *testing.T) {
	s, err := Build(Profile{
		Name:         "momo",
		Selector:     "momentum",
		SelectorArgs: map[string]any{"lookback": 15, "top_n": 5},
		Entry:        "ma_breakout",
		EntryArgs:    map[string]any{"period": 10},
		Exit:         "combined",
		ExitArgs: map[string]any{
			"mode": "any",
			"exits": []any{
				map[string]any{"type": "fixed_stop_loss", "stop_pct": 0.1},
				map[string]any{"type": "time_limit", "max_days": 30},
			},
		},
		Rebalance: "W",
	})
	require.NoError(t, err)
	assert.Equal(t, 15, s.Selector.(*MomentumSelector).Lookback)
	assert.Equal(t, market.FreqWeekly, s.Freq)
	combo := s.Exit.(*CombinedExit)
	assert.Len(t, combo.Exits, 2)
}

func TestBuildUnknownVariant(t *testing.T) {
	_, err := Build(Profile{Selector: "bogus", Entry: "immediate", Exit: "never", Rebalance: "D"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestParamsJSONSchemaValidation(t *testing.T) {
	specs := (&MomentumSelector{}).Params()

	assert.NoError(t, ValidateParamsJSON(specs, `{"lookback": 20, "top_n": 5}`))
	assert.Error(t, ValidateParamsJSON(specs, `{"lookback": 9999}`), "越界参数被 schema 拒绝")
	assert.Error(t, ValidateParamsJSON(specs, `{"unknown": 1}`), "未声明参数被拒绝")
	assert.Error(t, ValidateParamsJSON(specs, `not json`))
}
