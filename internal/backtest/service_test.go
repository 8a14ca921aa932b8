package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphakit/internal/strategy"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	panel := testPanel(t, 20)
	scores := constantScores(t, panel, map[string]float64{
		"600519": 0.9,
		"000002": 0.5,
		"000001": 0.1,
	})
	svc, err := NewService(ServiceConfig{
		Panel:  panel,
		Scores: scores,
		Store:  newTestStore(t),
		Profiles: StaticProfiles{
			Default: "momentum",
			Profiles: map[string]strategy.Profile{
				"momentum": {
					Name:         "momentum",
					Selector:     "momentum",
					SelectorArgs: map[string]any{"lookback": 5, "top_n": 2},
					Entry:        "immediate",
					Exit:         "never",
					Rebalance:    "W",
				},
				"scored": {
					Name:         "scored",
					Selector:     "ml_score",
					SelectorArgs: map[string]any{"top_n": 2},
					Entry:        "immediate",
					Exit:         "never",
					Rebalance:    "D",
				},
			},
		},
		Base:          testConfig(),
		MaxConcurrent: 2,
	})
	require.NoError(t, err)
	return svc
}

func waitForRun(t *testing.T, svc *Service, id string) RunRecord {
	t.Helper()
	var rec RunRecord
	require.Eventually(t, func() bool {
		var err error
		rec, err = svc.Store().GetRun(context.Background(), id)
		if err != nil {
			return false
		}
		return rec.Status == RunStatusDone || rec.Status == RunStatusFailed
	}, 10*time.Second, 20*time.Millisecond)
	return rec
}

func TestServiceEventRun(t *testing.T) {
	svc := newTestService(t)
	run, err := svc.StartRun(RunRequest{Mode: ModeEvent, Profile: "momentum"})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusPending, run.Status)

	rec := waitForRun(t, svc, run.ID)
	require.Equal(t, RunStatusDone, rec.Status, "message: %s", rec.Message)
	assert.Greater(t, rec.FinalValue, 0.0)
	assert.NotEmpty(t, rec.Report)

	trades, err := svc.Store().ListTrades(context.Background(), run.ID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, trades)
}

// ml_score 档案不携带信号矩阵, 由服务在构建引擎时注入。
func TestServiceMLScoreProfileRun(t *testing.T) {
	svc := newTestService(t)
	run, err := svc.StartRun(RunRequest{Mode: ModeEvent, Profile: "scored"})
	require.NoError(t, err)

	rec := waitForRun(t, svc, run.ID)
	require.Equal(t, RunStatusDone, rec.Status, "message: %s", rec.Message)

	trades, err := svc.Store().ListTrades(context.Background(), run.ID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, trades)
}

// 服务未配置信号矩阵时, ml_score 档案的请求应同步失败。
func TestServiceMLScoreWithoutMatrix(t *testing.T) {
	panel := testPanel(t, 20)
	svc, err := NewService(ServiceConfig{
		Panel: panel,
		Store: newTestStore(t),
		Profiles: StaticProfiles{
			Default: "scored",
			Profiles: map[string]strategy.Profile{
				"scored": {
					Name:         "scored",
					Selector:     "ml_score",
					SelectorArgs: map[string]any{"top_n": 2},
					Entry:        "immediate",
					Exit:         "never",
					Rebalance:    "D",
				},
			},
		},
		Base: testConfig(),
	})
	require.NoError(t, err)

	_, err = svc.StartRun(RunRequest{Mode: ModeEvent, Profile: "scored"})
	assert.Error(t, err)
}

func TestServiceVectorizedRun(t *testing.T) {
	svc := newTestService(t)
	run, err := svc.StartRun(RunRequest{Mode: ModeVectorized, TopN: 2})
	require.NoError(t, err)

	rec := waitForRun(t, svc, run.ID)
	require.Equal(t, RunStatusDone, rec.Status, "message: %s", rec.Message)
	assert.Equal(t, ModeVectorized, rec.Mode)
}

func TestServiceDefaultProfile(t *testing.T) {
	svc := newTestService(t)
	run, err := svc.StartRun(RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, "momentum", run.Request.Profile)
	assert.Equal(t, ModeEvent, run.Request.Mode)
	waitForRun(t, svc, run.ID)
}

func TestServiceRejectsBadRequests(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.StartRun(RunRequest{Mode: "replay"})
	assert.Error(t, err)

	_, err = svc.StartRun(RunRequest{Mode: ModeEvent, Profile: "missing"})
	assert.Error(t, err)

	// 配置非法的请求同步失败, 不落库
	_, err = svc.StartRun(RunRequest{Mode: ModeVectorized, TopN: 2, Short: true})
	assert.Error(t, err)

	runs, err := svc.Store().ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSweepRanksBySharpe(t *testing.T) {
	panel := testPanel(t, 20)
	variants := []SweepVariant{
		{
			Name: "loser",
			Profile: strategy.Profile{
				Selector:     "external_list",
				SelectorArgs: map[string]any{"symbols": []any{"000001"}},
				Entry:        "immediate",
				Exit:         "never",
				Rebalance:    "D",
			},
		},
		{
			Name: "winner",
			Profile: strategy.Profile{
				Selector:     "external_list",
				SelectorArgs: map[string]any{"symbols": []any{"600519"}},
				Entry:        "immediate",
				Exit:         "never",
				Rebalance:    "D",
			},
		},
	}
	results, err := Sweep(context.Background(), panel, nil, testConfig(), 0, variants, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "winner", results[0].Name)
	assert.Greater(t, results[0].Report.SharpeRatio, results[1].Report.SharpeRatio)
}

func TestSweepValidatesVariants(t *testing.T) {
	panel := testPanel(t, 20)
	_, err := Sweep(context.Background(), panel, nil, testConfig(), 0, nil, 2)
	assert.Error(t, err)

	bad := []SweepVariant{{Name: "bad", Profile: strategy.Profile{Selector: "momentum", Entry: "immediate", Exit: "never", Rebalance: "Q"}}}
	_, err = Sweep(context.Background(), panel, nil, testConfig(), 0, bad, 2)
	assert.Error(t, err)
}
