// Package symbol 解析 A 股证券代码：交易所与板块由六位数字前缀决定。
package symbol

import (
	"strings"
)

// Exchange 标识证券的挂牌交易所。
type Exchange string

const (
	ExchangeSSE     Exchange = "SSE"  // 上交所
	ExchangeSZSE    Exchange = "SZSE" // 深交所
	ExchangeBSE     Exchange = "BSE"  // 北交所
	ExchangeUnknown Exchange = ""
)

// Board 标识上市板块。
type Board string

const (
	BoardMain    Board = "main"
	BoardSTAR    Board = "star"    // 科创板 688xxx
	BoardChiNext Board = "chinext" // 创业板 300xxx
	BoardBSE     Board = "bse"
	BoardUnknown Board = ""
)

// Info 是一次代码解析的结果。
type Info struct {
	Code     string
	Exchange Exchange
	Board    Board
}

// Normalize 去掉常见的交易所后缀（600519.SH、000001.SZ、sz000001），
// 返回纯六位代码。无法识别时原样返回 trim 后的输入。
func Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	for _, suffix := range []string{".SH", ".SZ", ".BJ", ".SS"} {
		if strings.HasSuffix(s, suffix) {
			return strings.TrimSuffix(s, suffix)
		}
	}
	for _, prefix := range []string{"SH", "SZ", "BJ"} {
		if strings.HasPrefix(s, prefix) && len(s) == len(prefix)+6 && isDigits(s[len(prefix):]) {
			return s[len(prefix):]
		}
	}
	return s
}

// Parse 规范化并按前缀分类。代码不是六位数字时返回 ok=false。
func Parse(raw string) (Info, bool) {
	code := Normalize(raw)
	if len(code) != 6 || !isDigits(code) {
		return Info{Code: code}, false
	}
	info := Info{Code: code}
	switch {
	case strings.HasPrefix(code, "688"):
		info.Exchange, info.Board = ExchangeSSE, BoardSTAR
	case strings.HasPrefix(code, "60"):
		info.Exchange, info.Board = ExchangeSSE, BoardMain
	case strings.HasPrefix(code, "300"), strings.HasPrefix(code, "301"):
		info.Exchange, info.Board = ExchangeSZSE, BoardChiNext
	case strings.HasPrefix(code, "00"):
		info.Exchange, info.Board = ExchangeSZSE, BoardMain
	case strings.HasPrefix(code, "8"), strings.HasPrefix(code, "43"), strings.HasPrefix(code, "92"):
		info.Exchange, info.Board = ExchangeBSE, BoardBSE
	default:
		return info, false
	}
	return info, true
}

// IsValid 判断代码是否为可识别的 A 股证券代码。
func IsValid(raw string) bool {
	_, ok := Parse(raw)
	return ok
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
