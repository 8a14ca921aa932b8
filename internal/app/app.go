package app

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"alphakit/internal/backtest"
	"alphakit/internal/config"
	"alphakit/internal/config/loader"
	"alphakit/internal/logger"
	"alphakit/internal/market"
	httptransport "alphakit/internal/transport/http"
)

// App 负责应用级编排：加载数据→初始化依赖→启动回测服务。
type App struct {
	cfg      *config.Config
	base     backtest.Config
	panel    *market.Panel
	scores   *market.ScoreMatrix
	store    *backtest.ResultStore
	profiles *loader.ProfileLoader
	service  *backtest.Service
	server   *httptransport.Server
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)

	panel, diags, err := market.LoadPanel(cfg.Data.PricesPath)
	if err != nil {
		return nil, fmt.Errorf("加载行情失败: %w", err)
	}
	for _, d := range diags {
		logger.Warnf("[data] %s %s %s: %s", d.Severity, d.Symbol, d.Date.Format("2006-01-02"), d.Message)
	}
	logger.Infof("行情面板就绪: %d 个交易日, %d 个标的", panel.Len(), len(panel.Symbols()))

	var scores *market.ScoreMatrix
	if cfg.Data.ScoresPath != "" {
		scores, err = market.LoadScoreMatrix(cfg.Data.ScoresPath)
		if err != nil {
			return nil, fmt.Errorf("加载信号矩阵失败: %w", err)
		}
	}

	profiles, err := loader.NewProfileLoader(cfg.Data.ProfilesPath, scores)
	if err != nil {
		return nil, fmt.Errorf("加载策略档案失败: %w", err)
	}
	profiles.Subscribe(func(snap loader.Snapshot) {
		logger.Infof("策略档案快照 v%d: %d 个档案", snap.Version, len(snap.Profiles))
	})

	store, err := backtest.NewResultStore(cfg.Backtest.ResultDB)
	if err != nil {
		return nil, fmt.Errorf("打开结果库失败: %w", err)
	}

	base := backtest.Config{
		InitialCapital: cfg.Backtest.InitialCapital,
		Cost:           cfg.Cost.Model(),
		LotSize:        cfg.Backtest.LotSize,
		Risk:           cfg.Risk.Monitor(),
		Sectors:        cfg.Data.Sectors,
	}
	service, err := backtest.NewService(backtest.ServiceConfig{
		Panel:         panel,
		Scores:        scores,
		Store:         store,
		Profiles:      profiles,
		Base:          base,
		RiskFreeRate:  cfg.Backtest.RiskFreeRate,
		MaxConcurrent: cfg.Backtest.MaxConcurrent,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化回测服务失败: %w", err)
	}

	server, err := httptransport.NewServer(httptransport.Config{
		Addr: cfg.Server.Addr,
		Mode: cfg.Server.Mode,
		Svc:  service,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}

	return &App{
		cfg:      cfg,
		base:     base,
		panel:    panel,
		scores:   scores,
		store:    store,
		profiles: profiles,
		service:  service,
		server:   server,
	}, nil
}

// Run 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.service.SetContext(ctx)
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("HTTP 服务监听 %s", a.cfg.Server.Addr)
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Service 暴露回测服务，供命令行子命令复用。
func (a *App) Service() *backtest.Service { return a.service }

// Panel 暴露行情面板。
func (a *App) Panel() *market.Panel { return a.panel }

// SweepAll 把当前档案文件里的全部档案作为候选做一轮参数扫描，
// 按夏普比率排序返回。
func (a *App) SweepAll(ctx context.Context) ([]backtest.SweepResult, error) {
	snap := a.profiles.Snapshot()
	variants := make([]backtest.SweepVariant, 0, len(snap.Profiles))
	for name, prof := range snap.Profiles {
		variants = append(variants, backtest.SweepVariant{Name: name, Profile: prof})
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].Name < variants[j].Name })
	return backtest.Sweep(ctx, a.panel, a.scores, a.base, a.cfg.Backtest.RiskFreeRate, variants, a.cfg.Backtest.SweepWorkers)
}

// Close 释放持久化资源。
func (a *App) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}
