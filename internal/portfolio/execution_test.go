package portfolio

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphakit/internal/cost"
	"alphakit/internal/pkg/errs"
)

func newTestExecutor() *Executor {
	return NewExecutor(cost.DefaultModel(), 0)
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestRebalanceBuyLotRounding(t *testing.T) {
	p, err := New(1_000_000)
	require.NoError(t, err)
	e := newTestExecutor()

	trades, _, err := e.Rebalance(p,
		map[string]float64{"600519": 0.5},
		map[string]float64{"600519": 1700},
		1.0, day(2))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, SideBuy, tr.Side)
	assert.Zero(t, tr.Shares%100, "买入必须为整数手")
	assert.EqualValues(t, 200, tr.Shares) // 500000/1700 = 294.1 股 → 2 手
	assert.GreaterOrEqual(t, p.Cash, 0.0)
}

func TestRebalanceSellsBeforeBuys(t *testing.T) {
	p, err := New(1_000_000)
	require.NoError(t, err)
	e := newTestExecutor()
	prices := map[string]float64{"600519": 100, "000001": 10}

	_, _, err = e.Rebalance(p, map[string]float64{"600519": 0.9}, prices, 1.0, day(2))
	require.NoError(t, err)

	// 调仓到另一只票：同一日内先卖 600519 再买 000001
	trades, _, err := e.Rebalance(p, map[string]float64{"000001": 0.9}, prices, 1.0, day(3))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(trades), 2)
	seenBuy := false
	for _, tr := range trades {
		if tr.Side == SideBuy {
			seenBuy = true
		}
		if tr.Side == SideSell {
			assert.False(t, seenBuy, "卖单必须排在买单之前")
		}
	}
	assert.GreaterOrEqual(t, p.Cash, 0.0)
}

func TestCashNeverNegative(t *testing.T) {
	p, err := New(50_000)
	require.NoError(t, err)
	e := newTestExecutor()
	prices := map[string]float64{"600519": 100, "000001": 10, "000002": 20}

	weights := map[string]float64{"600519": 0.5, "000001": 0.3, "000002": 0.2}
	for d := 2; d < 10; d++ {
		_, _, err := e.Rebalance(p, weights, prices, 1.0, day(d))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.Cash, 0.0, "任何调仓后现金不可为负")
	}
}

func TestBuyShrinkOnInsufficientCash(t *testing.T) {
	p, err := New(21_000)
	require.NoError(t, err)
	e := newTestExecutor()

	// 目标 100% 仓位 ≈ 210 股，向下取整 2 手；加上费用后 2 手恰好买不起时收缩
	trades, _, err := e.Rebalance(p,
		map[string]float64{"600519": 1.0},
		map[string]float64{"600519": 105},
		1.0, day(2))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.EqualValues(t, 100, tr.Shares)
	assert.NotEmpty(t, tr.Note, "收缩买单必须附加说明")
	assert.GreaterOrEqual(t, p.Cash, 0.0)
}

func TestSellMissingPriceFatal(t *testing.T) {
	p, err := New(100_000)
	require.NoError(t, err)
	e := newTestExecutor()
	prices := map[string]float64{"600519": 100}

	_, _, err = e.Rebalance(p, map[string]float64{"600519": 0.5}, prices, 1.0, day(2))
	require.NoError(t, err)

	// 下一期行情里不再有 600519，又要求清仓它 → 致命执行错误
	_, _, err = e.Rebalance(p, map[string]float64{}, map[string]float64{"000001": 10}, 1.0, day(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrExecution))
}

func TestMarkToMarketIdempotent(t *testing.T) {
	p, err := New(100_000)
	require.NoError(t, err)
	e := newTestExecutor()
	prices := map[string]float64{"600519": 100}

	_, _, err = e.Rebalance(p, map[string]float64{"600519": 0.5}, prices, 1.0, day(2))
	require.NoError(t, err)

	v1, _ := p.MarkToMarket(prices, day(3))
	v2, _ := p.MarkToMarket(prices, day(3))
	assert.Equal(t, v1, v2)
}

func TestMarkToMarketStalePrice(t *testing.T) {
	p, err := New(100_000)
	require.NoError(t, err)
	e := newTestExecutor()

	_, _, err = e.Rebalance(p, map[string]float64{"600519": 0.5}, map[string]float64{"600519": 100}, 1.0, day(2))
	require.NoError(t, err)

	// 停牌日：无行情，沿用最近价并产生告警
	v, diags := p.MarkToMarket(map[string]float64{}, day(3))
	require.Len(t, diags, 1)
	assert.Equal(t, "warning", diags[0].Severity)
	pos := p.Positions["600519"]
	assert.InDelta(t, p.Cash+float64(pos.Shares)*100, v, 1e-9)
}

func TestExposureScalarReducesTarget(t *testing.T) {
	pFull, _ := New(1_000_000)
	pHalf, _ := New(1_000_000)
	e := newTestExecutor()
	prices := map[string]float64{"000001": 10}
	w := map[string]float64{"000001": 1.0}

	full, _, err := e.Rebalance(pFull, w, prices, 1.0, day(2))
	require.NoError(t, err)
	half, _, err := e.Rebalance(pHalf, w, prices, 0.5, day(2))
	require.NoError(t, err)
	require.Len(t, full, 1)
	require.Len(t, half, 1)
	assert.Less(t, half[0].Shares, full[0].Shares)
}

func TestLiquidate(t *testing.T) {
	p, err := New(100_000)
	require.NoError(t, err)
	e := newTestExecutor()
	prices := map[string]float64{"600519": 100, "000001": 10}

	_, _, err = e.Rebalance(p, map[string]float64{"600519": 0.4, "000001": 0.4}, prices, 1.0, day(2))
	require.NoError(t, err)
	require.Len(t, p.Positions, 2)

	trades, err := e.Liquidate(p, p.HeldSymbols(), prices, day(3), "stop_loss")
	require.NoError(t, err)
	assert.Len(t, trades, 2)
	assert.Empty(t, p.Positions)
	for _, tr := range trades {
		assert.Equal(t, "stop_loss", tr.Note)
	}
}

func TestNewPortfolioValidation(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrValidation))
	_, err = New(-100)
	require.Error(t, err)
}
