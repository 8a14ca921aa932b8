package strategy

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"alphakit/internal/market"
	"alphakit/internal/pkg/errs"
	"alphakit/internal/portfolio"
)

// ThreeLayer 组合 Selector/Entry/Exit 与调仓频率，是事件驱动回测的
// 策略实现。组合必须先通过 Validate 才允许启动回测。
type ThreeLayer struct {
	Selector Selector
	Entry    Entry
	Exit     Exit
	Freq     market.RebalanceFreq

	// MaxPositions 限制目标持仓数量，0 表示不限制。
	MaxPositions int

	// SellOnDeselect 为 true 时落选即从目标权重中剔除，调仓日会触发卖出。
	// 默认 false：卖出决策只属于 Exit 层。向量化引擎按落选即卖结算，
	// 与其对齐的事件驱动组合要开启这个开关。
	SellOnDeselect bool
}

// Validate 启动前的结构化校验：三层齐备、参数位于声明区间、
// 调仓频率合法。这是 fail-fast 门禁，运行期不再重复检查。
func (s *ThreeLayer) Validate() error {
	if s.Selector == nil {
		return errs.Validationf("selector 不能为空")
	}
	if s.Entry == nil {
		return errs.Validationf("entry 不能为空")
	}
	if s.Exit == nil {
		return errs.Validationf("exit 不能为空")
	}
	if _, err := market.ParseFreq(string(s.Freq)); err != nil {
		return errs.Validationf("%v", err)
	}
	if err := s.Selector.Validate(); err != nil {
		return fmt.Errorf("selector %s: %w", s.Selector.Name(), err)
	}
	if err := s.Entry.Validate(); err != nil {
		return fmt.Errorf("entry %s: %w", s.Entry.Name(), err)
	}
	if err := s.Exit.Validate(); err != nil {
		return fmt.Errorf("exit %s: %w", s.Exit.Name(), err)
	}
	if s.MaxPositions < 0 {
		return errs.Validationf("max_positions 不可为负")
	}
	return nil
}

// Decide 在调仓日生成目标权重：新入选且触发 Entry 的标的等权加入。
// 默认模式下已入场且未退出的持仓保留，标的落选不会触发卖出；
// SellOnDeselect 模式下目标只含当期入选者，已持有的入选者无需再过 Entry。
func (s *ThreeLayer) Decide(panel *market.Panel, dateIdx int, held map[string]portfolio.Position) (Decision, error) {
	selected, err := s.Selector.Select(panel, dateIdx)
	if err != nil {
		return Decision{}, err
	}
	target := make([]string, 0, len(selected)+len(held))
	seen := make(map[string]struct{}, len(selected)+len(held))
	if !s.SellOnDeselect {
		for sym := range held {
			target = append(target, sym)
			seen[sym] = struct{}{}
		}
	}
	for _, sym := range selected {
		if _, ok := seen[sym]; ok {
			continue
		}
		if s.MaxPositions > 0 && len(target) >= s.MaxPositions {
			break
		}
		if _, isHeld := held[sym]; !isHeld && !s.Entry.ShouldEnter(panel, dateIdx, sym) {
			continue
		}
		target = append(target, sym)
		seen[sym] = struct{}{}
	}
	d := Decision{Selected: selected, Weights: equalWeights(target)}
	if err := d.Validate(); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// EvaluateExits 对全部持仓逐个评估退出条件，返回需要卖出的标的及原因。
func (s *ThreeLayer) EvaluateExits(panel *market.Panel, dateIdx int, held map[string]portfolio.Position) map[string]string {
	out := make(map[string]string)
	for sym, pos := range held {
		if hit, reason := s.Exit.ShouldExit(panel, dateIdx, pos); hit {
			out[sym] = reason
		}
	}
	return out
}

func equalWeights(symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return out
	}
	w := 1.0 / float64(len(symbols))
	for _, sym := range symbols {
		out[sym] = w
	}
	return out
}

// Profile 外部（YAML/JSON）描述的策略组合，经 Build 实例化。
type Profile struct {
	Name           string         `mapstructure:"name" json:"name"`
	Selector       string         `mapstructure:"selector" json:"selector"`
	SelectorArgs   map[string]any `mapstructure:"selector_args" json:"selector_args"`
	Entry          string         `mapstructure:"entry" json:"entry"`
	EntryArgs      map[string]any `mapstructure:"entry_args" json:"entry_args"`
	Exit           string         `mapstructure:"exit" json:"exit"`
	ExitArgs       map[string]any `mapstructure:"exit_args" json:"exit_args"`
	Rebalance      string         `mapstructure:"rebalance" json:"rebalance"`
	MaxPositions   int            `mapstructure:"max_positions" json:"max_positions"`
	SellOnDeselect bool           `mapstructure:"sell_on_deselect" json:"sell_on_deselect"`
}

// BuildContext 提供档案文本之外的运行期依赖。ml_score 选股器的
// 信号矩阵由服务注入，档案里只声明 top_n。
type BuildContext struct {
	Scores *market.ScoreMatrix
}

// Build 从 Profile 实例化三层策略并执行组合校验。
func Build(p Profile) (*ThreeLayer, error) {
	return BuildWith(p, BuildContext{})
}

// BuildWith 同 Build，并把运行期依赖注入到对应的变体上。
func BuildWith(p Profile, bc BuildContext) (*ThreeLayer, error) {
	sel, err := BuildSelector(p.Selector, p.SelectorArgs)
	if err != nil {
		return nil, err
	}
	if ml, ok := sel.(*MLScoreSelector); ok {
		ml.Scores = bc.Scores
	}
	entry, err := BuildEntry(p.Entry, p.EntryArgs)
	if err != nil {
		return nil, err
	}
	exit, err := BuildExit(p.Exit, p.ExitArgs)
	if err != nil {
		return nil, err
	}
	freq, err := market.ParseFreq(p.Rebalance)
	if err != nil {
		return nil, errs.Validationf("%v", err)
	}
	s := &ThreeLayer{
		Selector:       sel,
		Entry:          entry,
		Exit:           exit,
		Freq:           freq,
		MaxPositions:   p.MaxPositions,
		SellOnDeselect: p.SellOnDeselect,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// BuildSelector 按名字实例化选股器。
func BuildSelector(name string, args map[string]any) (Selector, error) {
	var sel Selector
	switch name {
	case "momentum":
		sel = &MomentumSelector{Lookback: 20, TopN: 10}
	case "value":
		sel = &FactorSelector{TopN: 10, Ascending: true}
	case "external_list":
		sel = &ExternalListSelector{}
	case "ml_score":
		sel = &MLScoreSelector{TopN: 10}
	default:
		return nil, errs.Validationf("未知 selector: %q", name)
	}
	if err := decodeArgs(args, sel); err != nil {
		return nil, err
	}
	return sel, nil
}

// BuildEntry 按名字实例化入场条件。
func BuildEntry(name string, args map[string]any) (Entry, error) {
	var entry Entry
	switch name {
	case "immediate":
		entry = &ImmediateEntry{}
	case "ma_breakout":
		entry = &MABreakoutEntry{Period: 20}
	case "rsi_oversold":
		entry = &RSIOversoldEntry{Period: 14, Threshold: 30}
	default:
		return nil, errs.Validationf("未知 entry: %q", name)
	}
	if err := decodeArgs(args, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// BuildExit 按名字实例化退出条件。combined 通过 args["exits"] 嵌套子条件：
//
//	exits: [{type: fixed_stop_loss, stop_pct: 0.08}, {type: time_limit, max_days: 20}]
func BuildExit(name string, args map[string]any) (Exit, error) {
	var exit Exit
	switch name {
	case "fixed_stop_loss":
		exit = &FixedStopLossExit{StopPct: 0.08}
	case "atr_stop_loss":
		exit = &ATRStopLossExit{Period: 14, Multiplier: 2}
	case "time_limit":
		exit = &TimeLimitExit{MaxDays: 20}
	case "never":
		exit = &NeverExit{}
	case "combined":
		combo := &CombinedExit{Mode: "any"}
		if raw, ok := args["exits"]; ok {
			subs, ok := raw.([]any)
			if !ok {
				return nil, errs.Validationf("combined exit 的 exits 必须是数组")
			}
			for _, item := range subs {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, errs.Validationf("combined exit 子条件必须是对象")
				}
				subName, _ := m["type"].(string)
				sub, err := BuildExit(subName, m)
				if err != nil {
					return nil, err
				}
				combo.Exits = append(combo.Exits, sub)
			}
		}
		if mode, ok := args["mode"].(string); ok {
			combo.Mode = mode
		}
		return combo, nil
	default:
		return nil, errs.Validationf("未知 exit: %q", name)
	}
	if err := decodeArgs(args, exit); err != nil {
		return nil, err
	}
	return exit, nil
}

func decodeArgs(args map[string]any, target any) error {
	if len(args) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return errs.Validationf("参数解析失败: %v", err)
	}
	return nil
}
