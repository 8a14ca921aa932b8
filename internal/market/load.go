package market

import (
	"fmt"
	"os"
	"time"

	"github.com/tidwall/gjson"
)

// LoadPanel 从 JSON 文件加载价格面板。格式：
//
//	{"bars": {"600519": [{"date": "2024-01-02", "open": 1700, "high": 1710,
//	                      "low": 1690, "close": 1705, "volume": 1200000}, ...]}}
func LoadPanel(path string) (*Panel, []Diagnostic, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("读取行情文件失败: %w", err)
	}
	return ParsePanel(string(raw))
}

// ParsePanel 解析 JSON 字符串形式的行情数据。
func ParsePanel(raw string) (*Panel, []Diagnostic, error) {
	if !gjson.Valid(raw) {
		return nil, nil, fmt.Errorf("行情数据不是合法 JSON")
	}
	node := gjson.Get(raw, "bars")
	if !node.Exists() || !node.IsObject() {
		return nil, nil, fmt.Errorf("行情数据缺少 bars 对象")
	}
	bars := make(map[string][]Bar)
	var parseErr error
	node.ForEach(func(sym, series gjson.Result) bool {
		if !series.IsArray() {
			parseErr = fmt.Errorf("标的 %s 的行情必须是数组", sym.String())
			return false
		}
		var out []Bar
		series.ForEach(func(_, item gjson.Result) bool {
			d, err := time.Parse("2006-01-02", item.Get("date").String())
			if err != nil {
				parseErr = fmt.Errorf("标的 %s 存在非法日期 %q: %w", sym.String(), item.Get("date").String(), err)
				return false
			}
			out = append(out, Bar{
				Date:   d,
				Open:   item.Get("open").Float(),
				High:   item.Get("high").Float(),
				Low:    item.Get("low").Float(),
				Close:  item.Get("close").Float(),
				Volume: item.Get("volume").Float(),
			})
			return true
		})
		if parseErr != nil {
			return false
		}
		bars[sym.String()] = out
		return true
	})
	if parseErr != nil {
		return nil, nil, parseErr
	}
	return NewPanel(bars)
}
