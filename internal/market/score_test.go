package market

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScoreMatrix(t *testing.T) {
	raw := `{
		"scores": {
			"2024-01-02": {"600519": 0.8, "000001": -0.2, "000002": 0.5},
			"2024-01-03": {"600519": 0.1, "000001": 0.9}
		}
	}`
	m, err := ParseScoreMatrix(raw)
	require.NoError(t, err)

	assert.Equal(t, []string{"000001", "000002", "600519"}, m.Symbols())

	v, ok := m.Score(day(2), "600519")
	require.True(t, ok)
	assert.InDelta(t, 0.8, v, 1e-9)

	_, ok = m.Score(day(3), "000002")
	assert.False(t, ok, "缺分值的格子是哨兵")
	_, ok = m.Score(day(9), "600519")
	assert.False(t, ok)

	assert.Equal(t, []string{"600519", "000002", "000001"}, m.RankedAt(day(2)))
	assert.Equal(t, []string{"000001", "600519"}, m.RankedAt(day(3)))
	assert.Nil(t, m.RankedAt(day(9)))
}

func TestRankedAtTieBreaksBySymbol(t *testing.T) {
	m, err := ParseScoreMatrix(`{"scores": {"2024-01-02": {"600519": 0.5, "000001": 0.5}}}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001", "600519"}, m.RankedAt(day(2)))
}

func TestParseScoreMatrixErrors(t *testing.T) {
	for name, raw := range map[string]string{
		"not_json":    `{scores`,
		"no_scores":   `{"data": {}}`,
		"bad_date":    `{"scores": {"Jan 2": {"600519": 1}}}`,
		"scalar_row":  `{"scores": {"2024-01-02": 5}}`,
		"empty_input": `{"scores": {}}`,
	} {
		_, err := ParseScoreMatrix(raw)
		assert.Error(t, err, name)
	}
}

func TestLoadScoreMatrix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"scores": {"2024-01-02": {"600519": 1}}}`), 0o644))
	m, err := LoadScoreMatrix(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"600519"}, m.Symbols())

	_, err = LoadScoreMatrix(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestParsePanel(t *testing.T) {
	raw := `{
		"bars": {
			"600519": [
				{"date": "2024-01-02", "open": 1700, "high": 1710, "low": 1690, "close": 1705, "volume": 1200000},
				{"date": "2024-01-03", "open": 1705, "high": 1720, "low": 1700, "close": 1715, "volume": 900000}
			]
		}
	}`
	panel, diags, err := ParsePanel(raw)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, 2, panel.Len())

	v, ok := panel.Close(0, "600519")
	require.True(t, ok)
	assert.InDelta(t, 1705, v, 1e-9)
}

func TestParsePanelErrors(t *testing.T) {
	for name, raw := range map[string]string{
		"not_json": `{bars`,
		"no_bars":  `{"quotes": {}}`,
		"bad_date": `{"bars": {"600519": [{"date": "02/01/2024", "close": 1}]}}`,
		"not_list": `{"bars": {"600519": {"date": "2024-01-02"}}}`,
	} {
		_, _, err := ParsePanel(raw)
		assert.Error(t, err, name)
	}
}
