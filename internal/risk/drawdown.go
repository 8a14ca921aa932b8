// Package risk 实现回撤控制、VaR 估计、仓位算法与风险监控门面。
package risk

import (
	"alphakit/internal/pkg/errs"
)

// Level 风险等级，随回撤深度单调上升。
type Level string

const (
	LevelSafe     Level = "safe"
	LevelAlert    Level = "alert"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Action 回撤控制器给出的处置建议。
type Action string

const (
	ActionContinue       Action = "continue"
	ActionMonitorClosely Action = "monitor_closely"
	ActionReduceHalf     Action = "reduce_50%"
	ActionStopTrading    Action = "stop_trading"
)

// DrawdownStatus 单次 Update 的输出。
type DrawdownStatus struct {
	Level             Level   `json:"level"`
	RecommendedAction Action  `json:"recommended_action"`
	CurrentDrawdown   float64 `json:"current_drawdown"`
	PeakValue         float64 `json:"peak_value"`
}

// DrawdownController 以回撤深度与上限的比值驱动状态机。
// 每次 Update 从头重新评估，净值回升立即降级，无冷却期。
type DrawdownController struct {
	maxDrawdown  float64
	alertRatio   float64
	warningRatio float64

	peak      float64
	lastRatio float64
}

// NewDrawdownController 创建控制器。阈值按占 maxDrawdown 的比例给出，
// 默认 alert=0.6、warning=0.8。
func NewDrawdownController(maxDrawdown, alertRatio, warningRatio float64) (*DrawdownController, error) {
	if maxDrawdown <= 0 || maxDrawdown >= 1 {
		return nil, errs.Validationf("max drawdown 必须位于 (0,1), got %.4f", maxDrawdown)
	}
	if alertRatio <= 0 {
		alertRatio = 0.6
	}
	if warningRatio <= 0 {
		warningRatio = 0.8
	}
	if alertRatio >= warningRatio || warningRatio >= 1 {
		return nil, errs.Validationf("回撤阈值需满足 0 < alert < warning < 1, got %.2f/%.2f", alertRatio, warningRatio)
	}
	return &DrawdownController{
		maxDrawdown:  maxDrawdown,
		alertRatio:   alertRatio,
		warningRatio: warningRatio,
	}, nil
}

// Update 记录最新净值并返回当前状态。峰值为单调递增的高水位。
func (c *DrawdownController) Update(currentValue float64) DrawdownStatus {
	if currentValue > c.peak {
		c.peak = currentValue
	}
	dd := 0.0
	if c.peak > 0 {
		dd = (c.peak - currentValue) / c.peak
	}
	if dd < 0 {
		dd = 0
	}
	c.lastRatio = dd / c.maxDrawdown

	level, action := LevelSafe, ActionContinue
	switch {
	case c.lastRatio >= 1:
		level, action = LevelCritical, ActionStopTrading
	case c.lastRatio >= c.warningRatio:
		level, action = LevelWarning, ActionReduceHalf
	case c.lastRatio >= c.alertRatio:
		level, action = LevelAlert, ActionMonitorClosely
	}
	return DrawdownStatus{
		Level:             level,
		RecommendedAction: action,
		CurrentDrawdown:   dd,
		PeakValue:         c.peak,
	}
}

// RecommendedPosition 按最近一次 Update 的回撤给出目标仓位：
// 低于 alert 阈值不变；alert 与 critical 之间线性衰减到 0；达到上限归零。
func (c *DrawdownController) RecommendedPosition(current float64) float64 {
	return current * c.ExposureScalar()
}

// ExposureScalar 返回 [0,1] 的仓位缩放因子，执行引擎据此缩小目标市值。
func (c *DrawdownController) ExposureScalar() float64 {
	switch {
	case c.lastRatio < c.alertRatio:
		return 1
	case c.lastRatio >= 1:
		return 0
	default:
		return 1 - (c.lastRatio-c.alertRatio)/(1-c.alertRatio)
	}
}
