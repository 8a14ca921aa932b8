package market

import (
	"fmt"
	"math"
	"sort"
	"time"

	"alphakit/internal/pkg/symbol"
)

// NoTrade 表示某 (date, symbol) 无成交的哨兵值，引擎内部绝不插值填充。
var NoTrade = math.NaN()

// IsNoTrade 判断某价格是否为无成交哨兵。
func IsNoTrade(v float64) bool { return math.IsNaN(v) }

// Panel 是日期 × 标的的收盘价矩阵，可选携带对齐的 OHLCV 面板。
// 日期严格递增，(date, symbol) 不重复；构建完成后只读。
type Panel struct {
	dates   []time.Time
	symbols []string
	symIdx  map[string]int

	closes  [][]float64 // [dateIdx][symIdx]
	opens   [][]float64
	highs   [][]float64
	lows    [][]float64
	volumes [][]float64
}

// NewPanel 从每个标的的日线序列构建面板，执行数据质量扫描。
// high < low 的 K 线自动交换并记录 Diagnostic；零成交量记 info 级。
func NewPanel(bars map[string][]Bar) (*Panel, []Diagnostic, error) {
	if len(bars) == 0 {
		return nil, nil, fmt.Errorf("price panel: 行情数据不能为空")
	}
	symbols := make([]string, 0, len(bars))
	for sym := range bars {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	dateSet := make(map[int64]time.Time)
	for sym, series := range bars {
		var prev int64
		for i, b := range series {
			key := dayKey(b.Date)
			if i > 0 && key <= prev {
				return nil, nil, fmt.Errorf("price panel: %s 日期非严格递增 (%s)", sym, b.Date.Format("2006-01-02"))
			}
			prev = key
			dateSet[key] = b.Date
		}
	}
	if len(dateSet) == 0 {
		return nil, nil, fmt.Errorf("price panel: 没有任何交易日")
	}
	keys := make([]int64, 0, len(dateSet))
	for k := range dateSet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	dates := make([]time.Time, len(keys))
	dateIdx := make(map[int64]int, len(keys))
	for i, k := range keys {
		dates[i] = dateSet[k]
		dateIdx[k] = i
	}

	p := &Panel{
		dates:   dates,
		symbols: symbols,
		symIdx:  make(map[string]int, len(symbols)),
		closes:  newMatrix(len(dates), len(symbols)),
		opens:   newMatrix(len(dates), len(symbols)),
		highs:   newMatrix(len(dates), len(symbols)),
		lows:    newMatrix(len(dates), len(symbols)),
		volumes: newMatrix(len(dates), len(symbols)),
	}
	for i, sym := range symbols {
		p.symIdx[sym] = i
	}

	var diags []Diagnostic
	for _, sym := range symbols {
		if !symbol.IsValid(sym) {
			diags = append(diags, Diagnostic{
				Severity: "info",
				Kind:     DiagUnknownSymbol,
				Symbol:   sym,
				Message:  fmt.Sprintf("%s 不是可识别的 A 股代码", sym),
			})
		}
	}
	for sym, series := range bars {
		col := p.symIdx[sym]
		for _, b := range series {
			row := dateIdx[dayKey(b.Date)]
			high, low := b.High, b.Low
			if high < low {
				high, low = low, high
				diags = append(diags, Diagnostic{
					Severity: "warning",
					Kind:     DiagOHLCViolation,
					Symbol:   sym,
					Date:     b.Date,
					Message:  fmt.Sprintf("%s high(%.4f) < low(%.4f)，已自动纠正", sym, b.High, b.Low),
				})
			}
			if b.Volume == 0 {
				diags = append(diags, Diagnostic{
					Severity: "info",
					Kind:     DiagZeroVolume,
					Symbol:   sym,
					Date:     b.Date,
					Message:  fmt.Sprintf("%s 零成交量", sym),
				})
			}
			p.closes[row][col] = b.Close
			p.opens[row][col] = b.Open
			p.highs[row][col] = high
			p.lows[row][col] = low
			p.volumes[row][col] = b.Volume
		}
	}
	return p, diags, nil
}

func newMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		row := make([]float64, cols)
		for j := range row {
			row[j] = NoTrade
		}
		m[i] = row
	}
	return m
}

func dayKey(t time.Time) int64 {
	y, m, d := t.Date()
	return int64(y)*10000 + int64(m)*100 + int64(d)
}

// Len 返回交易日数量。
func (p *Panel) Len() int { return len(p.dates) }

// Dates 返回日期索引的只读副本。
func (p *Panel) Dates() []time.Time {
	return append([]time.Time(nil), p.dates...)
}

// DateAt 返回第 i 个交易日。
func (p *Panel) DateAt(i int) time.Time { return p.dates[i] }

// Symbols 返回全部标的。
func (p *Panel) Symbols() []string {
	return append([]string(nil), p.symbols...)
}

// HasSymbol 判断标的是否在面板内。
func (p *Panel) HasSymbol(sym string) bool {
	_, ok := p.symIdx[sym]
	return ok
}

// Close 返回 (i, sym) 的收盘价；无成交则返回 (NoTrade, false)。
func (p *Panel) Close(i int, sym string) (float64, bool) {
	col, ok := p.symIdx[sym]
	if !ok || i < 0 || i >= len(p.dates) {
		return NoTrade, false
	}
	v := p.closes[i][col]
	return v, !IsNoTrade(v)
}

// PricesAt 返回第 i 日所有有成交标的的收盘价快照。
func (p *Panel) PricesAt(i int) map[string]float64 {
	out := make(map[string]float64, len(p.symbols))
	for sym, col := range p.symIdx {
		v := p.closes[i][col]
		if !IsNoTrade(v) {
			out[sym] = v
		}
	}
	return out
}

// CloseHistory 返回 sym 截至第 i 日（含）最近 lookback 条有效收盘价，时间升序。
// 返回的是副本，调用方可以随意修改。
func (p *Panel) CloseHistory(i int, sym string, lookback int) []float64 {
	return p.history(p.closes, i, sym, lookback)
}

// HighHistory 同 CloseHistory，取最高价。
func (p *Panel) HighHistory(i int, sym string, lookback int) []float64 {
	return p.history(p.highs, i, sym, lookback)
}

// LowHistory 同 CloseHistory，取最低价。
func (p *Panel) LowHistory(i int, sym string, lookback int) []float64 {
	return p.history(p.lows, i, sym, lookback)
}

func (p *Panel) history(m [][]float64, i int, sym string, lookback int) []float64 {
	col, ok := p.symIdx[sym]
	if !ok || i < 0 || i >= len(p.dates) || lookback <= 0 {
		return nil
	}
	out := make([]float64, 0, lookback)
	for row := i; row >= 0 && len(out) < lookback; row-- {
		v := m[row][col]
		if IsNoTrade(v) {
			continue
		}
		out = append(out, v)
	}
	// 倒序收集，翻转回时间升序
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// CloseMatrix 返回收盘价矩阵的深拷贝，供向量化引擎使用。
func (p *Panel) CloseMatrix() [][]float64 {
	out := make([][]float64, len(p.closes))
	for i, row := range p.closes {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// SymbolIndex 返回标的在列上的位置。
func (p *Panel) SymbolIndex(sym string) (int, bool) {
	i, ok := p.symIdx[sym]
	return i, ok
}
