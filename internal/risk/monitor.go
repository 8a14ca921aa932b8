package risk

import (
	"fmt"
	"sort"
	"time"

	"alphakit/internal/pkg/errs"
)

// Config 风控参数。
type Config struct {
	MaxDrawdown       float64   `json:"max_drawdown"`
	AlertRatio        float64   `json:"alert_ratio"`
	WarningRatio      float64   `json:"warning_ratio"`
	VaRConfidence     float64   `json:"var_confidence"`
	VaRMethod         VaRMethod `json:"var_method"`
	VaRLimit          float64   `json:"var_limit"` // 1 日 VaR 上限
	MaxPositionPct    float64   `json:"max_position_pct"`
	MaxSectorPct      float64   `json:"max_sector_pct"`
	TargetVolatility  float64   `json:"target_volatility"`
	ReturnWindow      int       `json:"return_window"`
	MonteCarloSeed    int64     `json:"monte_carlo_seed"`
	MinVaRSampleCount int       `json:"min_var_sample_count"`
}

// DefaultConfig 默认风控参数。
func DefaultConfig() Config {
	return Config{
		MaxDrawdown:       0.15,
		AlertRatio:        0.6,
		WarningRatio:      0.8,
		VaRConfidence:     0.95,
		VaRMethod:         VaRHistorical,
		VaRLimit:          0.03,
		MaxPositionPct:    0.2,
		MaxSectorPct:      0.4,
		TargetVolatility:  0.2,
		ReturnWindow:      120,
		MonteCarloSeed:    1,
		MinVaRSampleCount: 20,
	}
}

// Alert 单条风险告警，按严重度降序输出。
type Alert struct {
	Severity string  `json:"severity"` // info/warning/critical
	Type     string  `json:"type"`
	Message  string  `json:"message"`
	Value    float64 `json:"value"`
}

// Assessment 每期风控评估结果。RiskBreach 以值的形式传递而非异常，
// 停与不停的决策留给上层。
type Assessment struct {
	Date                time.Time      `json:"date"`
	Level               string         `json:"level"` // low/medium/high/critical
	Score               int            `json:"score"`
	RecommendedExposure float64        `json:"recommended_exposure"`
	Drawdown            DrawdownStatus `json:"drawdown"`
	VaR                 *VaRReport     `json:"var,omitempty"`
	RealizedVol         float64        `json:"realized_vol"`
	Alerts              []Alert        `json:"alerts,omitempty"`
}

// Monitor 聚合回撤、VaR、集中度与波动率检查，产出执行引擎消费的
// exposure scalar。
type Monitor struct {
	cfg     Config
	dd      *DrawdownController
	varCalc *VaRCalculator

	lastValue float64
	returns   []float64
}

// NewMonitor 创建风控门面，配置非法时立即报错。
func NewMonitor(cfg Config) (*Monitor, error) {
	def := DefaultConfig()
	if cfg.MaxDrawdown == 0 {
		cfg.MaxDrawdown = def.MaxDrawdown
	}
	if cfg.AlertRatio == 0 {
		cfg.AlertRatio = def.AlertRatio
	}
	if cfg.WarningRatio == 0 {
		cfg.WarningRatio = def.WarningRatio
	}
	if cfg.VaRConfidence == 0 {
		cfg.VaRConfidence = def.VaRConfidence
	}
	if cfg.VaRMethod == "" {
		cfg.VaRMethod = def.VaRMethod
	}
	if cfg.VaRLimit == 0 {
		cfg.VaRLimit = def.VaRLimit
	}
	if cfg.MaxPositionPct == 0 {
		cfg.MaxPositionPct = def.MaxPositionPct
	}
	if cfg.MaxSectorPct == 0 {
		cfg.MaxSectorPct = def.MaxSectorPct
	}
	if cfg.TargetVolatility == 0 {
		cfg.TargetVolatility = def.TargetVolatility
	}
	if cfg.ReturnWindow <= 0 {
		cfg.ReturnWindow = def.ReturnWindow
	}
	if cfg.MinVaRSampleCount <= 0 {
		cfg.MinVaRSampleCount = def.MinVaRSampleCount
	}
	if cfg.MaxPositionPct <= 0 || cfg.MaxPositionPct > 1 {
		return nil, errs.Validationf("max_position_pct 必须位于 (0,1], got %.4f", cfg.MaxPositionPct)
	}
	if cfg.MaxSectorPct <= 0 || cfg.MaxSectorPct > 1 {
		return nil, errs.Validationf("max_sector_pct 必须位于 (0,1], got %.4f", cfg.MaxSectorPct)
	}
	dd, err := NewDrawdownController(cfg.MaxDrawdown, cfg.AlertRatio, cfg.WarningRatio)
	if err != nil {
		return nil, err
	}
	varCalc, err := NewVaRCalculator(cfg.VaRConfidence)
	if err != nil {
		return nil, err
	}
	return &Monitor{cfg: cfg, dd: dd, varCalc: varCalc}, nil
}

// Update 在每个交易日调用一次。weights 为各持仓市值占比，
// sectors 为标的→行业映射（可为空）。
func (m *Monitor) Update(date time.Time, value float64, weights map[string]float64, sectors map[string]string) Assessment {
	if m.lastValue > 0 {
		m.returns = append(m.returns, value/m.lastValue-1)
		if len(m.returns) > m.cfg.ReturnWindow {
			m.returns = m.returns[len(m.returns)-m.cfg.ReturnWindow:]
		}
	}
	m.lastValue = value

	a := Assessment{Date: date}
	a.Drawdown = m.dd.Update(value)
	ddSev := severityOfLevel(a.Drawdown.Level)
	if ddSev > 0 {
		a.Alerts = append(a.Alerts, Alert{
			Severity: severityLabel(ddSev),
			Type:     "drawdown",
			Message:  fmt.Sprintf("回撤 %.2f%% 达到 %s 级别，建议 %s", a.Drawdown.CurrentDrawdown*100, a.Drawdown.Level, a.Drawdown.RecommendedAction),
			Value:    a.Drawdown.CurrentDrawdown,
		})
	}

	varSev := 0
	if len(m.returns) >= m.cfg.MinVaRSampleCount {
		if rep, err := m.varCalc.Report(m.returns, m.cfg.VaRMethod, m.cfg.MonteCarloSeed); err == nil {
			a.VaR = &rep
			varSev = thresholdSeverity(rep.VaR1 / m.cfg.VaRLimit)
			if varSev > 0 {
				a.Alerts = append(a.Alerts, Alert{
					Severity: severityLabel(varSev),
					Type:     "var",
					Message:  fmt.Sprintf("1日VaR %.2f%% 接近/超过上限 %.2f%%", rep.VaR1*100, m.cfg.VaRLimit*100),
					Value:    rep.VaR1,
				})
			}
		}
	}

	concSev := m.concentrationSeverity(weights, sectors, &a)

	volSev := 0
	a.RealizedVol = AnnualizedVol(m.returns)
	if a.RealizedVol > 0 && m.cfg.TargetVolatility > 0 {
		volSev = thresholdSeverity(a.RealizedVol / (2 * m.cfg.TargetVolatility))
		if volSev > 0 {
			a.Alerts = append(a.Alerts, Alert{
				Severity: severityLabel(volSev),
				Type:     "volatility",
				Message:  fmt.Sprintf("年化波动率 %.2f%% 偏离目标 %.2f%%", a.RealizedVol*100, m.cfg.TargetVolatility*100),
				Value:    a.RealizedVol,
			})
		}
	}

	// 加权整数评分：回撤权重最高，VaR/集中度次之，波动率最低
	a.Score = 3*ddSev + 2*varSev + 2*concSev + volSev
	switch {
	case a.Score >= 9 || ddSev == 3:
		a.Level = "critical"
	case a.Score >= 5:
		a.Level = "high"
	case a.Score >= 2:
		a.Level = "medium"
	default:
		a.Level = "low"
	}

	// 回撤缩放与波动率目标取较小者：波动率目标只降仓，不加杠杆
	a.RecommendedExposure = m.dd.ExposureScalar()
	if m.cfg.TargetVolatility > 0 && a.RealizedVol > m.cfg.TargetVolatility {
		if vt := VolatilityTarget(1, m.cfg.TargetVolatility, a.RealizedVol, 1); vt < a.RecommendedExposure {
			a.RecommendedExposure = vt
		}
	}
	if a.Level == "critical" {
		a.RecommendedExposure = 0
	}
	sort.SliceStable(a.Alerts, func(i, j int) bool {
		return severityRank(a.Alerts[i].Severity) > severityRank(a.Alerts[j].Severity)
	})
	return a
}

// Returns 返回监控窗口内的收益序列副本。
func (m *Monitor) Returns() []float64 {
	return append([]float64(nil), m.returns...)
}

func (m *Monitor) concentrationSeverity(weights map[string]float64, sectors map[string]string, a *Assessment) int {
	sev := 0
	syms := make([]string, 0, len(weights))
	for s := range weights {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		w := weights[sym]
		if w > m.cfg.MaxPositionPct {
			sev = maxInt(sev, 2)
			a.Alerts = append(a.Alerts, Alert{
				Severity: "warning",
				Type:     "concentration",
				Message:  fmt.Sprintf("%s 仓位 %.2f%% 超过单票上限 %.2f%%", sym, w*100, m.cfg.MaxPositionPct*100),
				Value:    w,
			})
		}
	}
	if len(sectors) > 0 {
		bySector := make(map[string]float64)
		for sym, w := range weights {
			if sec, ok := sectors[sym]; ok {
				bySector[sec] += w
			}
		}
		secs := make([]string, 0, len(bySector))
		for s := range bySector {
			secs = append(secs, s)
		}
		sort.Strings(secs)
		for _, sec := range secs {
			if bySector[sec] > m.cfg.MaxSectorPct {
				sev = maxInt(sev, 2)
				a.Alerts = append(a.Alerts, Alert{
					Severity: "warning",
					Type:     "sector_concentration",
					Message:  fmt.Sprintf("行业 %s 合计仓位 %.2f%% 超过上限 %.2f%%", sec, bySector[sec]*100, m.cfg.MaxSectorPct*100),
					Value:    bySector[sec],
				})
			}
		}
	}
	return sev
}

func severityOfLevel(l Level) int {
	switch l {
	case LevelAlert:
		return 1
	case LevelWarning:
		return 2
	case LevelCritical:
		return 3
	default:
		return 0
	}
}

// thresholdSeverity 按与上限的比值分档：≥1 → 3, ≥0.8 → 2, ≥0.6 → 1。
func thresholdSeverity(ratio float64) int {
	switch {
	case ratio >= 1:
		return 3
	case ratio >= 0.8:
		return 2
	case ratio >= 0.6:
		return 1
	default:
		return 0
	}
}

func severityLabel(sev int) string {
	switch {
	case sev >= 3:
		return "critical"
	case sev == 2:
		return "warning"
	default:
		return "info"
	}
}

func severityRank(label string) int {
	switch label {
	case "critical":
		return 3
	case "warning":
		return 2
	default:
		return 1
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
