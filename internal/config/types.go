package config

import (
	"alphakit/internal/cost"
	"alphakit/internal/risk"
)

// Config 是应用的完整配置树，按模块分节。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Data     DataConfig     `mapstructure:"data"`
	Cost     CostConfig     `mapstructure:"cost"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Server   ServerConfig   `mapstructure:"server"`
}

// AppConfig 运行环境与日志。
type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

// DataConfig 行情与信号数据的来源。
type DataConfig struct {
	PricesPath   string            `mapstructure:"prices_path"`
	ScoresPath   string            `mapstructure:"scores_path"`
	ProfilesPath string            `mapstructure:"profiles_path"`
	Sectors      map[string]string `mapstructure:"sectors"`
}

// CostConfig A 股交易成本参数。
type CostConfig struct {
	CommissionRate  float64 `mapstructure:"commission_rate"`
	MinCommission   float64 `mapstructure:"min_commission"`
	StampTaxRate    float64 `mapstructure:"stamp_tax_rate"`
	TransferFeeRate float64 `mapstructure:"transfer_fee_rate"`
	SlippageBps     float64 `mapstructure:"slippage_bps"`
}

// Model 转换为成本模型。
func (c CostConfig) Model() cost.Model {
	return cost.Model{
		CommissionRate:  c.CommissionRate,
		MinCommission:   c.MinCommission,
		StampTaxRate:    c.StampTaxRate,
		TransferFeeRate: c.TransferFeeRate,
		SlippageBps:     c.SlippageBps,
	}
}

// RiskConfig 风控层参数。
type RiskConfig struct {
	MaxDrawdown      float64 `mapstructure:"max_drawdown"`
	AlertRatio       float64 `mapstructure:"alert_ratio"`
	WarningRatio     float64 `mapstructure:"warning_ratio"`
	VaRConfidence    float64 `mapstructure:"var_confidence"`
	VaRMethod        string  `mapstructure:"var_method"`
	VaRLimit         float64 `mapstructure:"var_limit"`
	MaxPositionPct   float64 `mapstructure:"max_position_pct"`
	MaxSectorPct     float64 `mapstructure:"max_sector_pct"`
	TargetVolatility float64 `mapstructure:"target_volatility"`
	ReturnWindow     int     `mapstructure:"return_window"`
	MonteCarloSeed   int64   `mapstructure:"monte_carlo_seed"`
}

// Monitor 转换为风控监控配置。
func (r RiskConfig) Monitor() risk.Config {
	return risk.Config{
		MaxDrawdown:      r.MaxDrawdown,
		AlertRatio:       r.AlertRatio,
		WarningRatio:     r.WarningRatio,
		VaRConfidence:    r.VaRConfidence,
		VaRMethod:        risk.VaRMethod(r.VaRMethod),
		VaRLimit:         r.VaRLimit,
		MaxPositionPct:   r.MaxPositionPct,
		MaxSectorPct:     r.MaxSectorPct,
		TargetVolatility: r.TargetVolatility,
		ReturnWindow:     r.ReturnWindow,
		MonteCarloSeed:   r.MonteCarloSeed,
	}
}

// BacktestConfig 回测引擎与结果库参数。
type BacktestConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
	LotSize        int64   `mapstructure:"lot_size"`
	ResultDB       string  `mapstructure:"result_db"`
	MaxConcurrent  int     `mapstructure:"max_concurrent"`
	RiskFreeRate   float64 `mapstructure:"risk_free_rate"`
	SweepWorkers   int     `mapstructure:"sweep_workers"`
}

// ServerConfig HTTP 服务参数。
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"`
}

// keySet 记录配置文件中显式出现过的键（小写点分路径），
// 用于区分"用户写了零值"与"用户没写"。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
