package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "600519", Normalize("600519.SH"))
	assert.Equal(t, "000001", Normalize("sz000001"))
	assert.Equal(t, "000001", Normalize(" 000001.SZ "))
	assert.Equal(t, "600000", Normalize("600000.SS"))
	assert.Equal(t, "600519", Normalize("600519"))
	assert.Equal(t, "", Normalize("  "))
}

func TestParse(t *testing.T) {
	cases := []struct {
		raw      string
		exchange Exchange
		board    Board
		ok       bool
	}{
		{"600519", ExchangeSSE, BoardMain, true},
		{"688981", ExchangeSSE, BoardSTAR, true},
		{"000001.SZ", ExchangeSZSE, BoardMain, true},
		{"300750", ExchangeSZSE, BoardChiNext, true},
		{"301236", ExchangeSZSE, BoardChiNext, true},
		{"430047", ExchangeBSE, BoardBSE, true},
		{"830799", ExchangeBSE, BoardBSE, true},
		{"AAPL", ExchangeUnknown, BoardUnknown, false},
		{"12345", ExchangeUnknown, BoardUnknown, false},
		{"500001", ExchangeUnknown, BoardUnknown, false},
	}
	for _, tc := range cases {
		info, ok := Parse(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		if tc.ok {
			assert.Equal(t, tc.exchange, info.Exchange, tc.raw)
			assert.Equal(t, tc.board, info.Board, tc.raw)
		}
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("600519"))
	assert.False(t, IsValid("BTC/USDT"))
}
