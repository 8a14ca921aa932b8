package loader

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"alphakit/internal/logger"
	"alphakit/internal/market"
	"alphakit/internal/strategy"
)

// FileConfig 是策略档案文件的完整结构。
type FileConfig struct {
	Default  string                      `mapstructure:"default"`
	Profiles map[string]strategy.Profile `mapstructure:"profiles"`
}

// Snapshot 对外暴露的只读快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Default  string
	Profiles map[string]strategy.Profile
}

// ChangeListener 在档案变更时被调用。
type ChangeListener func(Snapshot)

// ProfileLoader 从 YAML/JSON 文件加载策略档案并监听热更新。
// 无法通过组合校验的档案被整体拒绝，保留上一份快照。
type ProfileLoader struct {
	path   string
	v      *viper.Viper
	scores *market.ScoreMatrix

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewProfileLoader 读取档案文件并开始监听 FS 事件。scores 供 ml_score
// 档案的校验与构建使用，未配置信号矩阵时传 nil，此类档案会被拒绝。
func NewProfileLoader(path string, scores *market.ScoreMatrix) (*ProfileLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile loader 需要文件路径")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取策略档案失败: %w", err)
	}
	l := &ProfileLoader{path: path, v: v, scores: scores}
	if err := l.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := l.reload(); err != nil {
			logger.Errorf("策略档案热更新失败 (%s): %v", evt.Name, err)
			return
		}
		l.notify()
	})
	v.WatchConfig()
	return l, nil
}

// Snapshot 返回当前快照（浅拷贝 map）。
func (l *ProfileLoader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// Profile 按名称解析档案。
func (l *ProfileLoader) Profile(name string) (strategy.Profile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	prof, ok := l.snapshot.Profiles[name]
	return prof, ok
}

// DefaultProfile 返回默认档案名。
func (l *ProfileLoader) DefaultProfile() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot.Default
}

// Subscribe 注册监听器，并立即异步推送一次当前快照。
func (l *ProfileLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := cloneSnapshot(l.snapshot)
	l.mu.Unlock()
	go runListener(fn, snap)
}

func (l *ProfileLoader) notify() {
	l.mu.RLock()
	snap := cloneSnapshot(l.snapshot)
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		go runListener(fn, snap)
	}
}

func runListener(fn ChangeListener, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("profile listener panic: %v", r)
		}
	}()
	fn(snap)
}

func (l *ProfileLoader) reload() error {
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("读取策略档案失败: %w", err)
	}
	var fileCfg FileConfig
	if err := l.v.Unmarshal(&fileCfg); err != nil {
		return fmt.Errorf("解析策略档案失败: %w", err)
	}
	if len(fileCfg.Profiles) == 0 {
		return fmt.Errorf("策略档案为空: %s", l.path)
	}
	normalized := make(map[string]strategy.Profile, len(fileCfg.Profiles))
	for name, prof := range fileCfg.Profiles {
		prof.Name = name
		if _, err := strategy.BuildWith(prof, strategy.BuildContext{Scores: l.scores}); err != nil {
			return fmt.Errorf("档案 %s 非法: %w", name, err)
		}
		normalized[name] = prof
	}
	def := strings.TrimSpace(fileCfg.Default)
	if def == "" {
		for name := range normalized {
			def = name
			break
		}
	} else if _, ok := normalized[def]; !ok {
		return fmt.Errorf("默认档案 %s 未定义", def)
	}

	l.mu.Lock()
	l.snapshot = Snapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Default:  def,
		Profiles: normalized,
	}
	l.mu.Unlock()
	logger.Infof("加载策略档案 %d 个 (默认 %s, 来源 %s)", len(normalized), def, filepath.Base(l.path))
	return nil
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Default:  src.Default,
		Profiles: make(map[string]strategy.Profile, len(src.Profiles)),
	}
	for name, prof := range src.Profiles {
		dst.Profiles[name] = prof
	}
	return dst
}
