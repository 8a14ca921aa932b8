package config

import (
	"fmt"
	"strings"
)

// validate 对配置做基础校验，逐节失败即返回。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Cost.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Server.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("app.log_level 非法: %s", a.LogLevel)
	}
}

func (c *CostConfig) validate() error {
	if c.CommissionRate < 0 || c.CommissionRate >= 0.01 {
		return fmt.Errorf("cost.commission_rate 必须位于 [0, 0.01)")
	}
	if c.MinCommission < 0 {
		return fmt.Errorf("cost.min_commission 不可为负")
	}
	if c.StampTaxRate < 0 || c.StampTaxRate >= 0.01 {
		return fmt.Errorf("cost.stamp_tax_rate 必须位于 [0, 0.01)")
	}
	if c.TransferFeeRate < 0 {
		return fmt.Errorf("cost.transfer_fee_rate 不可为负")
	}
	if c.SlippageBps < 0 {
		return fmt.Errorf("cost.slippage_bps 不可为负")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MaxDrawdown <= 0 || r.MaxDrawdown >= 1 {
		return fmt.Errorf("risk.max_drawdown 必须位于 (0,1)")
	}
	if r.AlertRatio <= 0 || r.AlertRatio >= r.WarningRatio || r.WarningRatio >= 1 {
		return fmt.Errorf("risk 阈值必须满足 0 < alert_ratio < warning_ratio < 1")
	}
	if r.VaRConfidence <= 0 || r.VaRConfidence >= 1 {
		return fmt.Errorf("risk.var_confidence 必须位于 (0,1)")
	}
	switch r.VaRMethod {
	case "historical", "parametric", "monte_carlo":
	default:
		return fmt.Errorf("risk.var_method 非法: %s", r.VaRMethod)
	}
	if r.ReturnWindow <= 0 {
		return fmt.Errorf("risk.return_window 必须 > 0")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital 必须 > 0")
	}
	if b.LotSize <= 0 {
		return fmt.Errorf("backtest.lot_size 必须 > 0")
	}
	if b.MaxConcurrent <= 0 {
		return fmt.Errorf("backtest.max_concurrent 必须 > 0")
	}
	if b.RiskFreeRate < 0 || b.RiskFreeRate >= 1 {
		return fmt.Errorf("backtest.risk_free_rate 必须位于 [0,1)")
	}
	return nil
}

func (s *ServerConfig) validate() error {
	if strings.TrimSpace(s.Addr) == "" {
		return fmt.Errorf("server.addr 不能为空")
	}
	switch s.Mode {
	case "debug", "release", "test":
		return nil
	default:
		return fmt.Errorf("server.mode 非法: %s", s.Mode)
	}
}
