package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReturns() []float64 {
	// 固定样本，避免测试依赖随机源
	out := make([]float64, 100)
	for i := range out {
		out[i] = 0.01 * math.Sin(float64(i)*0.7)
	}
	out[10] = -0.05
	out[20] = -0.04
	out[30] = 0.06
	return out
}

func TestHistoricalVaRPositive(t *testing.T) {
	c, err := NewVaRCalculator(0.95)
	require.NoError(t, err)
	v, err := c.Historical(sampleReturns())
	require.NoError(t, err)
	assert.Greater(t, v, 0.0)
	assert.Less(t, v, 0.06)
}

func TestCVaRNotLessThanVaR(t *testing.T) {
	c, err := NewVaRCalculator(0.95)
	require.NoError(t, err)
	rs := sampleReturns()
	v, err := c.Historical(rs)
	require.NoError(t, err)
	cv, err := c.CVaR(rs)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cv, v-1e-9, "CVaR 为尾部均值，不应小于 VaR")
}

func TestHorizonScalingSqrt(t *testing.T) {
	c, err := NewVaRCalculator(0.95)
	require.NoError(t, err)
	rep, err := c.Report(sampleReturns(), VaRHistorical, 0)
	require.NoError(t, err)
	assert.InDelta(t, rep.VaR1*math.Sqrt(5), rep.VaR5, 1e-12)
	assert.InDelta(t, rep.VaR1*math.Sqrt(20), rep.VaR20, 1e-12)
	assert.InDelta(t, rep.CVaR1*math.Sqrt(5), rep.CVaR5, 1e-12)
}

func TestMonteCarloDeterministicWithSeed(t *testing.T) {
	c, err := NewVaRCalculator(0.99)
	require.NoError(t, err)
	rs := sampleReturns()
	v1, err := c.MonteCarlo(rs, 42)
	require.NoError(t, err)
	v2, err := c.MonteCarlo(rs, 42)
	require.NoError(t, err)
	assert.Equal(t, v1, v2, "相同种子必须得到相同结果")

	v3, err := c.MonteCarlo(rs, 43)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v3)
}

func TestParametricMatchesNormalQuantile(t *testing.T) {
	c, err := NewVaRCalculator(0.95)
	require.NoError(t, err)
	// 均值 0、波动 1% 的对称样本：VaR ≈ 1.645σ
	rs := make([]float64, 0, 200)
	for i := 0; i < 100; i++ {
		rs = append(rs, 0.01, -0.01)
	}
	v, err := c.Parametric(rs)
	require.NoError(t, err)
	assert.InDelta(t, 1.645*0.01, v, 5e-4)
}

func TestVaRValidation(t *testing.T) {
	_, err := NewVaRCalculator(0)
	assert.Error(t, err)
	_, err = NewVaRCalculator(1)
	assert.Error(t, err)

	c, err := NewVaRCalculator(0.95)
	require.NoError(t, err)
	_, err = c.Historical(nil)
	assert.Error(t, err)
	_, err = c.Report(sampleReturns(), "bogus", 0)
	assert.Error(t, err)
}
