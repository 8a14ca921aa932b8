package config

import "strings"

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultProfilesPath    = "configs/profiles.yaml"
	defaultCommissionRate  = 0.00025
	defaultMinCommission   = 5.0
	defaultStampTaxRate    = 0.001
	defaultTransferFeeRate = 0.00002
	defaultMaxDrawdown     = 0.15
	defaultAlertRatio      = 0.6
	defaultWarningRatio    = 0.8
	defaultVaRConfidence   = 0.95
	defaultVaRMethod       = "historical"
	defaultVaRLimit        = 0.03
	defaultMaxPositionPct  = 0.2
	defaultMaxSectorPct    = 0.4
	defaultTargetVol       = 0.2
	defaultReturnWindow    = 120
	defaultInitialCapital  = 1_000_000.0
	defaultLotSize         = 100
	defaultResultDB        = "data/runs.db"
	defaultMaxConcurrent   = 2
	defaultSweepWorkers    = 4
	defaultServerAddr      = ":9985"
	defaultServerMode      = "release"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Cost.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Server.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("data.profiles_path", &d.ProfilesPath, defaultProfilesPath),
	)
}

func (c *CostConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("cost.commission_rate", &c.CommissionRate, defaultCommissionRate),
		floatFieldDefault("cost.min_commission", &c.MinCommission, defaultMinCommission),
		floatFieldDefault("cost.stamp_tax_rate", &c.StampTaxRate, defaultStampTaxRate),
		floatFieldDefault("cost.transfer_fee_rate", &c.TransferFeeRate, defaultTransferFeeRate),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.max_drawdown", &r.MaxDrawdown, defaultMaxDrawdown),
		floatFieldDefault("risk.alert_ratio", &r.AlertRatio, defaultAlertRatio),
		floatFieldDefault("risk.warning_ratio", &r.WarningRatio, defaultWarningRatio),
		floatFieldDefault("risk.var_confidence", &r.VaRConfidence, defaultVaRConfidence),
		stringFieldDefault("risk.var_method", &r.VaRMethod, defaultVaRMethod),
		floatFieldDefault("risk.var_limit", &r.VaRLimit, defaultVaRLimit),
		floatFieldDefault("risk.max_position_pct", &r.MaxPositionPct, defaultMaxPositionPct),
		floatFieldDefault("risk.max_sector_pct", &r.MaxSectorPct, defaultMaxSectorPct),
		floatFieldDefault("risk.target_volatility", &r.TargetVolatility, defaultTargetVol),
		intFieldDefault("risk.return_window", &r.ReturnWindow, defaultReturnWindow),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("backtest.initial_capital", &b.InitialCapital, defaultInitialCapital),
		int64FieldDefault("backtest.lot_size", &b.LotSize, defaultLotSize),
		stringFieldDefault("backtest.result_db", &b.ResultDB, defaultResultDB),
		intFieldDefault("backtest.max_concurrent", &b.MaxConcurrent, defaultMaxConcurrent),
		intFieldDefault("backtest.sweep_workers", &b.SweepWorkers, defaultSweepWorkers),
	)
}

func (s *ServerConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("server.addr", &s.Addr, defaultServerAddr),
		stringFieldDefault("server.mode", &s.Mode, defaultServerMode),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target == 0 },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target == 0 },
		apply: func() { *target = def },
	}
}

func int64FieldDefault(key string, target *int64, def int64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target == 0 },
		apply: func() { *target = def },
	}
}
