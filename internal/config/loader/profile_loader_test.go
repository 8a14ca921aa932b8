package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alphakit/internal/market"
)

const profilesYAML = `
default: momentum
profiles:
  momentum:
    selector: momentum
    selector_args:
      lookback: 20
      top_n: 5
    entry: immediate
    exit: fixed_stop_loss
    exit_args:
      stop_pct: 0.08
    rebalance: W
  defensive:
    selector: external_list
    selector_args:
      symbols: ["600519", "000001"]
    entry: ma_breakout
    entry_args:
      period: 10
    exit: combined
    exit_args:
      mode: any
      exits:
        - type: fixed_stop_loss
          stop_pct: 0.05
        - type: time_limit
          max_days: 30
    rebalance: M
    max_positions: 2
`

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProfileLoaderReadsProfiles(t *testing.T) {
	l, err := NewProfileLoader(writeProfiles(t, profilesYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, "momentum", l.DefaultProfile())

	prof, ok := l.Profile("momentum")
	require.True(t, ok)
	assert.Equal(t, "momentum", prof.Name)
	assert.Equal(t, "W", prof.Rebalance)

	prof, ok = l.Profile("defensive")
	require.True(t, ok)
	assert.Equal(t, 2, prof.MaxPositions)
	assert.Equal(t, "combined", prof.Exit)

	_, ok = l.Profile("missing")
	assert.False(t, ok)

	snap := l.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	assert.Len(t, snap.Profiles, 2)
}

func TestProfileLoaderRejectsInvalid(t *testing.T) {
	_, err := NewProfileLoader(writeProfiles(t, `
profiles:
  broken:
    selector: momentum
    entry: immediate
    exit: never
    rebalance: Q
`), nil)
	assert.Error(t, err)

	_, err = NewProfileLoader(writeProfiles(t, `
default: missing
profiles:
  ok:
    selector: momentum
    entry: immediate
    exit: never
    rebalance: D
`), nil)
	assert.Error(t, err)

	_, err = NewProfileLoader(writeProfiles(t, "profiles: {}\n"), nil)
	assert.Error(t, err)

	// 未注入信号矩阵时 ml_score 档案整体被拒
	_, err = NewProfileLoader(writeProfiles(t, `
profiles:
  scored:
    selector: ml_score
    selector_args:
      top_n: 3
    entry: immediate
    exit: never
    rebalance: D
`), nil)
	assert.Error(t, err)
}

func TestProfileLoaderMLScoreWithMatrix(t *testing.T) {
	sm, err := market.NewScoreMatrix(map[time.Time]map[string]float64{
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC): {"600519": 1},
	})
	require.NoError(t, err)

	l, err := NewProfileLoader(writeProfiles(t, `
default: scored
profiles:
  scored:
    selector: ml_score
    selector_args:
      top_n: 3
    entry: immediate
    exit: never
    rebalance: D
`), sm)
	require.NoError(t, err)
	prof, ok := l.Profile("scored")
	require.True(t, ok)
	assert.Equal(t, "ml_score", prof.Selector)
}

func TestProfileLoaderHotReload(t *testing.T) {
	path := writeProfiles(t, profilesYAML)
	l, err := NewProfileLoader(path, nil)
	require.NoError(t, err)

	updates := make(chan Snapshot, 4)
	l.Subscribe(func(snap Snapshot) { updates <- snap })

	// Subscribe 立即推送一次当前快照
	select {
	case snap := <-updates:
		assert.Equal(t, int64(1), snap.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("未收到初始快照")
	}

	require.NoError(t, os.WriteFile(path, []byte(`
default: aggressive
profiles:
  aggressive:
    selector: momentum
    selector_args:
      lookback: 10
      top_n: 3
    entry: immediate
    exit: never
    rebalance: D
`), 0o644))

	require.Eventually(t, func() bool {
		return l.DefaultProfile() == "aggressive"
	}, 5*time.Second, 50*time.Millisecond)

	prof, ok := l.Profile("aggressive")
	require.True(t, ok)
	assert.Equal(t, "D", prof.Rebalance)
	_, ok = l.Profile("momentum")
	assert.False(t, ok)
}
