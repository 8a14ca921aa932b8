package backtest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"alphakit/internal/logger"
	"alphakit/internal/market"
	"alphakit/internal/pkg/errs"
	"alphakit/internal/strategy"
)

// RunStatus 回测任务状态。
type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusRunning RunStatus = "running"
	RunStatusDone    RunStatus = "done"
	RunStatusFailed  RunStatus = "failed"
)

// 回测执行模式。
const (
	ModeEvent      = "event"
	ModeVectorized = "vectorized"
)

// RunRequest 提交一次回测的入参。
type RunRequest struct {
	Name           string  `json:"name"`
	Mode           string  `json:"mode"`
	Profile        string  `json:"profile"`
	InitialCapital float64 `json:"initial_capital"`
	TopN           int     `json:"top_n"`
	BottomN        int     `json:"bottom_n"`
	Short          bool    `json:"short"`
}

// Run 一次回测任务的句柄。
type Run struct {
	ID      string     `json:"id"`
	Status  RunStatus  `json:"status"`
	Request RunRequest `json:"request"`
}

// ProfileSource 提供按名称解析的策略档案，支持热更新的实现。
type ProfileSource interface {
	Profile(name string) (strategy.Profile, bool)
	DefaultProfile() string
}

// ServiceConfig 组装回测服务的依赖。
type ServiceConfig struct {
	Panel         *market.Panel
	Scores        *market.ScoreMatrix
	Store         *ResultStore
	Profiles      ProfileSource
	Base          Config
	RiskFreeRate  float64
	MaxConcurrent int
}

// Service 接收回测请求，在后台有界并发地执行并持久化结果。
type Service struct {
	panel    *market.Panel
	scores   *market.ScoreMatrix
	store    *ResultStore
	profiles ProfileSource
	base     Config
	analyzer *Analyzer

	sem     chan struct{}
	baseCtx context.Context
}

// NewService 构建回测服务。
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Panel == nil || cfg.Panel.Len() == 0 {
		return nil, errs.Configf("价格面板不能为空")
	}
	if cfg.Store == nil {
		return nil, errs.Configf("result store 不能为空")
	}
	if cfg.Profiles == nil {
		return nil, errs.Configf("profile source 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		panel:    cfg.Panel,
		scores:   cfg.Scores,
		store:    cfg.Store,
		profiles: cfg.Profiles,
		base:     cfg.Base,
		analyzer: NewAnalyzer(cfg.RiskFreeRate),
		sem:      make(chan struct{}, maxConcurrent),
		baseCtx:  context.Background(),
	}, nil
}

// SetContext 替换后台任务使用的根 context。
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Service) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// Store 暴露结果库供查询接口复用。
func (s *Service) Store() *ResultStore { return s.store }

// StartRun 创建回测任务并立即返回，模拟过程在后台进行。
func (s *Service) StartRun(req RunRequest) (Run, error) {
	if req.Mode == "" {
		req.Mode = ModeEvent
	}
	if req.InitialCapital <= 0 {
		req.InitialCapital = s.base.InitialCapital
	}
	if req.InitialCapital <= 0 {
		return Run{}, errs.Validationf("initial capital 必须 > 0")
	}

	cfg := s.base
	cfg.InitialCapital = req.InitialCapital

	// 先做同步校验，失败的请求不落库。
	switch req.Mode {
	case ModeEvent:
		if req.Profile == "" {
			req.Profile = s.profiles.DefaultProfile()
		}
		profile, ok := s.profiles.Profile(req.Profile)
		if !ok {
			return Run{}, errs.Validationf("未知 profile: %s", req.Profile)
		}
		if _, err := buildEventEngine(s.panel, profile, cfg, s.scores); err != nil {
			return Run{}, err
		}
	case ModeVectorized:
		if req.TopN <= 0 {
			req.TopN = 10
		}
		vcfg := VectorizedConfig{TopN: req.TopN, BottomN: req.BottomN, Short: req.Short}
		if _, err := NewVectorizedEngine(s.panel, s.scores, cfg, vcfg); err != nil {
			return Run{}, err
		}
	default:
		return Run{}, errs.Validationf("未知 mode: %s", req.Mode)
	}
	if req.Name == "" {
		req.Name = fmt.Sprintf("%s-%s", req.Mode, req.Profile)
	}

	run := Run{ID: uuid.NewString(), Status: RunStatusPending, Request: req}
	if err := s.store.InsertRun(s.ctx(), &run); err != nil {
		return Run{}, err
	}
	go s.runLoop(run)
	return run, nil
}

func (s *Service) runLoop(run Run) {
	select {
	case s.sem <- struct{}{}:
	default:
		logger.Warnf("[backtest] run %s 等待可用 worker", run.ID)
		s.sem <- struct{}{}
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	_ = s.store.UpdateRunStatus(ctx, run.ID, RunStatusRunning, "回测执行中")
	res, err := s.execute(ctx, run.Request)
	if err != nil {
		logger.Warnf("[backtest] run %s 失败: %v", run.ID, err)
		_ = s.store.UpdateRunStatus(ctx, run.ID, RunStatusFailed, err.Error())
		return
	}
	rep, err := s.analyzer.Analyze(res)
	if err != nil {
		logger.Warnf("[backtest] run %s 分析失败: %v", run.ID, err)
		_ = s.store.UpdateRunStatus(ctx, run.ID, RunStatusFailed, err.Error())
		return
	}
	if err := s.store.SaveResult(ctx, run.ID, res, rep); err != nil {
		logger.Errorf("[backtest] run %s 结果落库失败: %v", run.ID, err)
		_ = s.store.UpdateRunStatus(ctx, run.ID, RunStatusFailed, err.Error())
		return
	}
	logger.Infof("[backtest] run %s 完成: 总收益 %.2f%%, 最大回撤 %.2f%%",
		run.ID, rep.TotalReturn*100, rep.MaxDrawdown*100)
}

// execute 按模式构建引擎并运行。
func (s *Service) execute(ctx context.Context, req RunRequest) (*Result, error) {
	cfg := s.base
	cfg.InitialCapital = req.InitialCapital
	switch req.Mode {
	case ModeVectorized:
		vcfg := VectorizedConfig{TopN: req.TopN, BottomN: req.BottomN, Short: req.Short}
		engine, err := NewVectorizedEngine(s.panel, s.scores, cfg, vcfg)
		if err != nil {
			return nil, err
		}
		return engine.Run(ctx)
	default:
		profile, ok := s.profiles.Profile(req.Profile)
		if !ok {
			return nil, errs.Validationf("未知 profile: %s", req.Profile)
		}
		engine, err := buildEventEngine(s.panel, profile, cfg, s.scores)
		if err != nil {
			return nil, err
		}
		return engine.Run(ctx)
	}
}

// buildEventEngine 实例化事件驱动引擎。ml_score 档案依赖服务持有的
// 信号矩阵，在这里注入；未配置矩阵时此类档案校验即失败。
func buildEventEngine(panel *market.Panel, profile strategy.Profile, cfg Config, scores *market.ScoreMatrix) (*Engine, error) {
	strat, err := strategy.BuildWith(profile, strategy.BuildContext{Scores: scores})
	if err != nil {
		return nil, err
	}
	return NewEngine(panel, strat, cfg)
}

// StaticProfiles 以固定 map 实现 ProfileSource，供测试与单机运行使用。
type StaticProfiles struct {
	Default  string
	Profiles map[string]strategy.Profile
}

func (p StaticProfiles) Profile(name string) (strategy.Profile, bool) {
	prof, ok := p.Profiles[name]
	return prof, ok
}

func (p StaticProfiles) DefaultProfile() string {
	if p.Default != "" {
		return p.Default
	}
	for name := range p.Profiles {
		return name
	}
	return ""
}
