package market

import (
	"time"
)

// Bar 单个交易日的 OHLCV 行情。
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Diagnostic 记录一次非致命的数据质量问题，附加到回测结果上而不是中断模拟。
type Diagnostic struct {
	Severity string    `json:"severity"` // info/warning
	Kind     string    `json:"kind"`
	Symbol   string    `json:"symbol,omitempty"`
	Date     time.Time `json:"date,omitempty"`
	Message  string    `json:"message"`
}

const (
	DiagStalePrice    = "stale_price"
	DiagZeroVolume    = "zero_volume"
	DiagOHLCViolation = "ohlc_violation"
	DiagUnknownSymbol = "unknown_symbol"
)
