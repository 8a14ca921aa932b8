package market

import (
	"fmt"
	"strings"
)

// RebalanceFreq 调仓频率：日/周/月。
type RebalanceFreq string

const (
	FreqDaily   RebalanceFreq = "D"
	FreqWeekly  RebalanceFreq = "W"
	FreqMonthly RebalanceFreq = "M"
)

// ParseFreq 解析调仓频率，非法值返回错误。
func ParseFreq(s string) (RebalanceFreq, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "D":
		return FreqDaily, nil
	case "W":
		return FreqWeekly, nil
	case "M":
		return FreqMonthly, nil
	default:
		return "", fmt.Errorf("rebalance freq must be one of D/W/M, got %q", s)
	}
}

// RebalanceIndexes 根据面板日期索引推导调仓日下标。
// 周/月频取每个周期内最后一个交易日。
func (p *Panel) RebalanceIndexes(freq RebalanceFreq) []int {
	n := len(p.dates)
	if n == 0 {
		return nil
	}
	switch freq {
	case FreqDaily:
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	case FreqWeekly:
		var out []int
		for i := 0; i < n; i++ {
			if i == n-1 {
				out = append(out, i)
				break
			}
			y1, w1 := p.dates[i].ISOWeek()
			y2, w2 := p.dates[i+1].ISOWeek()
			if y1 != y2 || w1 != w2 {
				out = append(out, i)
			}
		}
		return out
	case FreqMonthly:
		var out []int
		for i := 0; i < n; i++ {
			if i == n-1 {
				out = append(out, i)
				break
			}
			if p.dates[i].Month() != p.dates[i+1].Month() || p.dates[i].Year() != p.dates[i+1].Year() {
				out = append(out, i)
			}
		}
		return out
	default:
		return nil
	}
}
