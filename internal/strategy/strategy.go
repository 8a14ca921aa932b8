// Package strategy 实现三层策略组合：Selector 选标的、Entry 决定何时买入、
// Exit 决定何时卖出，三者独立插拔，经 Composer 校验后交给回测引擎。
package strategy

import (
	"fmt"

	"alphakit/internal/market"
	"alphakit/internal/pkg/errs"
	"alphakit/internal/portfolio"
)

// ParamSpec 声明式参数模式，同时服务于前端表单生成与组合校验。
type ParamSpec struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"` // int/float/string/bool
	Default any      `json:"default,omitempty"`
	Min     float64  `json:"min,omitempty"`
	Max     float64  `json:"max,omitempty"`
	Options []string `json:"options,omitempty"`
}

// Selector 在调仓日给出排序后的候选标的集合。
type Selector interface {
	Name() string
	Params() []ParamSpec
	Validate() error
	Select(panel *market.Panel, dateIdx int) ([]string, error)
}

// Entry 判断入选标的当日是否触发买入。未触发的标的推迟入场，
// 这正是 Selector 与 Entry 分离的原因。
type Entry interface {
	Name() string
	Params() []ParamSpec
	Validate() error
	ShouldEnter(panel *market.Panel, dateIdx int, symbol string) bool
}

// Exit 对每个持仓独立评估，须在每个交易日运行，不受调仓频率约束。
type Exit interface {
	Name() string
	Params() []ParamSpec
	Validate() error
	ShouldExit(panel *market.Panel, dateIdx int, pos portfolio.Position) (bool, string)
}

// Decision 调仓日的策略输出：目标标的与权重（和 ≤ 1 + 容差）。
type Decision struct {
	Selected []string           `json:"selected"`
	Weights  map[string]float64 `json:"weights"`
}

const weightSumTolerance = 1e-6

// Validate 校验权重合法性。
func (d Decision) Validate() error {
	sum := 0.0
	for sym, w := range d.Weights {
		if w < 0 || w > 1 {
			return errs.Validationf("标的 %s 权重越界: %.6f", sym, w)
		}
		sum += w
	}
	if sum > 1+weightSumTolerance {
		return errs.Validationf("权重和 %.6f 超过 1", sum)
	}
	return nil
}

// checkRange 按声明的上下界校验数值参数。
func checkRange(spec ParamSpec, v float64) error {
	if spec.Min != 0 || spec.Max != 0 {
		if v < spec.Min || v > spec.Max {
			return errs.Validationf("%s=%v 超出声明区间 [%v, %v]", spec.Name, v, spec.Min, spec.Max)
		}
	}
	return nil
}

// checkOption 校验枚举参数。
func checkOption(spec ParamSpec, v string) error {
	if len(spec.Options) == 0 {
		return nil
	}
	for _, opt := range spec.Options {
		if opt == v {
			return nil
		}
	}
	return errs.Validationf("%s=%q 不在可选值 %v 内", spec.Name, v, spec.Options)
}

func findSpec(specs []ParamSpec, name string) (ParamSpec, error) {
	for _, s := range specs {
		if s.Name == name {
			return s, nil
		}
	}
	return ParamSpec{}, fmt.Errorf("参数 %s 未声明", name)
}
