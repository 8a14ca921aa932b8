package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"alphakit/internal/app"
	"alphakit/internal/backtest"
	akcfg "alphakit/internal/config"
	"alphakit/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	application := mustBuildApp()
	var err error
	switch cmd {
	case "serve":
		err = application.Run(ctx)
	case "run":
		err = runOnce(ctx, application, args)
	case "sweep":
		err = sweepProfiles(ctx, application)
	default:
		application.Close()
		log.Fatalf("未知子命令 %q（可用: serve run sweep）", cmd)
	}
	if cmd != "serve" {
		application.Close()
	}
	if err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}

func mustBuildApp() *app.App {
	cfgPath := os.Getenv("ALPHAKIT_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := akcfg.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	if _, err := setupLogOutput(cfg.App.LogPath); err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，profiles=%s）", cfg.App.Env, cfg.Data.ProfilesPath)

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	return application
}

// runOnce 同步执行一次回测并把结果记录打印到 stdout。
func runOnce(ctx context.Context, application *app.App, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var req backtest.RunRequest
	fs.StringVar(&req.Profile, "profile", "", "策略档案名（默认取档案文件的 default）")
	fs.StringVar(&req.Mode, "mode", backtest.ModeEvent, "执行模式 event|vectorized")
	fs.StringVar(&req.Name, "name", "", "回测名称")
	fs.Float64Var(&req.InitialCapital, "capital", 0, "初始资金（默认取配置）")
	fs.IntVar(&req.TopN, "topn", 0, "vectorized 模式下的多头数量")
	fs.IntVar(&req.BottomN, "bottomn", 0, "vectorized 模式下的空头数量")
	fs.BoolVar(&req.Short, "short", false, "启用市场中性空头腿")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc := application.Service()
	svc.SetContext(ctx)
	run, err := svc.StartRun(req)
	if err != nil {
		return err
	}
	logger.Infof("回测已提交: %s", run.ID)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		rec, err := svc.Store().GetRun(ctx, run.ID)
		if err != nil {
			return err
		}
		switch rec.Status {
		case backtest.RunStatusDone:
			return printJSON(rec)
		case backtest.RunStatusFailed:
			return fmt.Errorf("回测失败: %s", rec.Message)
		}
	}
}

// sweepProfiles 对档案文件里的全部档案做参数扫描并按夏普排序输出。
func sweepProfiles(ctx context.Context, application *app.App) error {
	results, err := application.SweepAll(ctx)
	if err != nil {
		return err
	}
	return printJSON(results)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
