package backtest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphakit/internal/portfolio"
)

func newTestStore(t *testing.T) *ResultStore {
	t.Helper()
	store, err := NewResultStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestResultStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := Run{
		ID:     "run-1",
		Status: RunStatusPending,
		Request: RunRequest{
			Name:           "momentum-base",
			Mode:           ModeEvent,
			Profile:        "momentum",
			InitialCapital: 1_000_000,
		},
	}
	require.NoError(t, store.InsertRun(ctx, &run))

	rec, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusPending, rec.Status)
	assert.Equal(t, "momentum-base", rec.Name)
	assert.InDelta(t, 1_000_000, rec.InitialCapital, 1e-9)

	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", RunStatusRunning, "回测执行中"))
	rec, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, rec.Status)
	assert.Nil(t, rec.CompletedAt)

	res := buildCurve([]float64{1_000_000, 1_010_000, 1_020_100})
	res.Trades = []portfolio.Trade{
		{
			Date:       time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Symbol:     "600519",
			Side:       portfolio.SideBuy,
			Shares:     100,
			Price:      1700,
			Commission: 42.5,
		},
	}
	rep, err := NewAnalyzer(0).Analyze(res)
	require.NoError(t, err)
	require.NoError(t, store.SaveResult(ctx, "run-1", res, rep))

	rec, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, rec.Status)
	assert.InDelta(t, 1_020_100, rec.FinalValue, 1e-6)
	assert.InDelta(t, rep.TotalReturn, rec.TotalReturn, 1e-9)
	assert.Equal(t, 1, rec.TradeCount)
	assert.NotNil(t, rec.CompletedAt)
	assert.NotEmpty(t, rec.Report)

	trades, err := store.ListTrades(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "600519", trades[0].Symbol)
	assert.Equal(t, int64(100), trades[0].Shares)
	assert.InDelta(t, 42.5, trades[0].Commission, 1e-9)

	equity, err := store.ListEquity(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, equity, 3)
	assert.True(t, equity[0].Date.Before(equity[2].Date))
	assert.InDelta(t, 1_020_100, equity[2].Value, 1e-6)
}

func TestResultStoreNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestResultStoreListOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		run := Run{ID: id, Status: RunStatusPending, Request: RunRequest{Mode: ModeEvent}}
		require.NoError(t, store.InsertRun(ctx, &run))
		time.Sleep(5 * time.Millisecond)
	}
	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
}
