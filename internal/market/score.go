package market

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// ScoreMatrix 日期 × 标的的信号分值矩阵，由外部特征/模型层计算后
// 喂给选股器或向量化引擎。无分值的 (date, symbol) 为 NoTrade 哨兵。
type ScoreMatrix struct {
	dates   []time.Time
	symbols []string
	symIdx  map[string]int
	dateIdx map[int64]int
	values  [][]float64
}

// NewScoreMatrix 从 date → symbol → score 的嵌套映射构建矩阵。
func NewScoreMatrix(scores map[time.Time]map[string]float64) (*ScoreMatrix, error) {
	if len(scores) == 0 {
		return nil, fmt.Errorf("score matrix: 信号数据不能为空")
	}
	dates := make([]time.Time, 0, len(scores))
	symSet := make(map[string]struct{})
	for d, row := range scores {
		dates = append(dates, d)
		for sym := range row {
			symSet[sym] = struct{}{}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	symbols := make([]string, 0, len(symSet))
	for sym := range symSet {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	m := &ScoreMatrix{
		dates:   dates,
		symbols: symbols,
		symIdx:  make(map[string]int, len(symbols)),
		dateIdx: make(map[int64]int, len(dates)),
		values:  newMatrix(len(dates), len(symbols)),
	}
	for i, sym := range symbols {
		m.symIdx[sym] = i
	}
	for i, d := range dates {
		m.dateIdx[dayKey(d)] = i
	}
	for d, row := range scores {
		ri := m.dateIdx[dayKey(d)]
		for sym, v := range row {
			m.values[ri][m.symIdx[sym]] = v
		}
	}
	return m, nil
}

// LoadScoreMatrix 从 JSON 文件加载信号矩阵。格式：
//
//	{"scores": {"2024-01-02": {"600519": 0.8, "000001": -0.2}, ...}}
func LoadScoreMatrix(path string) (*ScoreMatrix, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取信号文件失败: %w", err)
	}
	return ParseScoreMatrix(string(raw))
}

// ParseScoreMatrix 解析 JSON 字符串形式的信号矩阵。
func ParseScoreMatrix(raw string) (*ScoreMatrix, error) {
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("信号矩阵不是合法 JSON")
	}
	node := gjson.Get(raw, "scores")
	if !node.Exists() || !node.IsObject() {
		return nil, fmt.Errorf("信号矩阵缺少 scores 对象")
	}
	scores := make(map[time.Time]map[string]float64)
	var parseErr error
	node.ForEach(func(key, value gjson.Result) bool {
		d, err := time.Parse("2006-01-02", key.String())
		if err != nil {
			parseErr = fmt.Errorf("非法日期 %q: %w", key.String(), err)
			return false
		}
		if !value.IsObject() {
			parseErr = fmt.Errorf("日期 %s 的信号必须是对象", key.String())
			return false
		}
		row := make(map[string]float64)
		value.ForEach(func(sym, score gjson.Result) bool {
			row[sym.String()] = score.Float()
			return true
		})
		scores[d] = row
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return NewScoreMatrix(scores)
}

// Score 返回 (date, sym) 的分值。
func (m *ScoreMatrix) Score(date time.Time, sym string) (float64, bool) {
	ri, ok := m.dateIdx[dayKey(date)]
	if !ok {
		return NoTrade, false
	}
	ci, ok := m.symIdx[sym]
	if !ok {
		return NoTrade, false
	}
	v := m.values[ri][ci]
	return v, !IsNoTrade(v)
}

// RankedAt 返回 date 当日按分值降序排列的标的。
func (m *ScoreMatrix) RankedAt(date time.Time) []string {
	ri, ok := m.dateIdx[dayKey(date)]
	if !ok {
		return nil
	}
	type pair struct {
		sym string
		v   float64
	}
	pairs := make([]pair, 0, len(m.symbols))
	for sym, ci := range m.symIdx {
		v := m.values[ri][ci]
		if IsNoTrade(v) {
			continue
		}
		pairs = append(pairs, pair{sym, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].v == pairs[j].v {
			return pairs[i].sym < pairs[j].sym
		}
		return pairs[i].v > pairs[j].v
	})
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.sym
	}
	return out
}

// Symbols 返回矩阵内全部标的。
func (m *ScoreMatrix) Symbols() []string {
	return append([]string(nil), m.symbols...)
}
