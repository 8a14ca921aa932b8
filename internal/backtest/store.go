package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"alphakit/internal/pkg/errs"
	"alphakit/internal/portfolio"
)

// ErrRunNotFound 查询的回测运行不存在。
var ErrRunNotFound = errors.New("backtest run 不存在")

type runModel struct {
	ID             string `gorm:"primaryKey;size:64"`
	Name           string `gorm:"size:128"`
	Mode           string `gorm:"size:16"`
	Status         string `gorm:"size:16;index"`
	InitialCapital float64
	FinalValue     float64
	TotalReturn    float64
	MaxDrawdown    float64
	SharpeRatio    float64
	TradeCount     int
	ProfileJSON    datatypes.JSON
	ReportJSON     datatypes.JSON
	Message        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

func (runModel) TableName() string { return "backtest_runs" }

type tradeModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	RunID        string `gorm:"size:64;index"`
	Date         time.Time
	Symbol       string `gorm:"size:16"`
	Side         string `gorm:"size:8"`
	Shares       int64
	Price        float64
	Commission   float64
	StampTax     float64
	TransferFee  float64
	SlippageCost float64
	Note         string
}

func (tradeModel) TableName() string { return "backtest_trades" }

type equityModel struct {
	ID    int64  `gorm:"primaryKey;autoIncrement"`
	RunID string `gorm:"size:64;index"`
	Date  time.Time
	Value float64
	Ret   float64
}

func (equityModel) TableName() string { return "backtest_equity" }

// ResultStore 基于 Gorm + SQLite 持久化回测运行、成交与权益曲线。
type ResultStore struct {
	db *gorm.DB
}

// NewResultStore 打开（必要时创建）结果库并迁移表结构。
func NewResultStore(path string) (*ResultStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errs.Configf("result store 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}, &equityModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: 允许少量并发读，保持锁竞争低。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &ResultStore{db: db}, nil
}

// Close 关闭底层连接。
func (s *ResultStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertRun 写入一条新运行记录。
func (s *ResultStore) InsertRun(ctx context.Context, run *Run) error {
	profileJSON, err := json.Marshal(run.Request)
	if err != nil {
		return err
	}
	now := time.Now()
	model := runModel{
		ID:             run.ID,
		Name:           run.Request.Name,
		Mode:           run.Request.Mode,
		Status:         string(run.Status),
		InitialCapital: run.Request.InitialCapital,
		ProfileJSON:    profileJSON,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// UpdateRunStatus 更新状态与提示信息。
func (s *ResultStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus, message string) error {
	updates := map[string]interface{}{
		"status":     string(status),
		"message":    message,
		"updated_at": time.Now(),
	}
	if status == RunStatusDone || status == RunStatusFailed {
		now := time.Now()
		updates["completed_at"] = &now
	}
	return s.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(updates).Error
}

// SaveResult 持久化一次完成的回测：汇总指标、成交与权益曲线。
func (s *ResultStore) SaveResult(ctx context.Context, id string, res *Result, rep *Report) error {
	reportJSON, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":       string(RunStatusDone),
			"final_value":  res.FinalValue,
			"total_return": rep.TotalReturn,
			"max_drawdown": rep.MaxDrawdown,
			"sharpe_ratio": rep.SharpeRatio,
			"trade_count":  len(res.Trades),
			"report_json":  datatypes.JSON(reportJSON),
			"updated_at":   now,
			"completed_at": &now,
		}
		if err := tx.Model(&runModel{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if len(res.Trades) > 0 {
			trades := make([]tradeModel, 0, len(res.Trades))
			for _, t := range res.Trades {
				trades = append(trades, tradeModel{
					RunID:        id,
					Date:         t.Date,
					Symbol:       t.Symbol,
					Side:         string(t.Side),
					Shares:       t.Shares,
					Price:        t.Price,
					Commission:   t.Commission,
					StampTax:     t.StampTax,
					TransferFee:  t.TransferFee,
					SlippageCost: t.SlippageCost,
					Note:         t.Note,
				})
			}
			if err := tx.CreateInBatches(trades, 200).Error; err != nil {
				return err
			}
		}
		if len(res.EquityCurve) > 0 {
			points := make([]equityModel, 0, len(res.EquityCurve))
			for i, p := range res.EquityCurve {
				var ret float64
				if i > 0 && i-1 < len(res.DailyReturns) {
					ret = res.DailyReturns[i-1]
				}
				points = append(points, equityModel{RunID: id, Date: p.Date, Value: p.Value, Ret: ret})
			}
			if err := tx.CreateInBatches(points, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RunRecord 运行记录的查询视图。
type RunRecord struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Mode           string          `json:"mode"`
	Status         RunStatus       `json:"status"`
	InitialCapital float64         `json:"initial_capital"`
	FinalValue     float64         `json:"final_value"`
	TotalReturn    float64         `json:"total_return"`
	MaxDrawdown    float64         `json:"max_drawdown"`
	SharpeRatio    float64         `json:"sharpe_ratio"`
	TradeCount     int             `json:"trade_count"`
	Profile        json.RawMessage `json:"profile,omitempty"`
	Report         json.RawMessage `json:"report,omitempty"`
	Message        string          `json:"message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

func toRecord(m runModel) RunRecord {
	return RunRecord{
		ID:             m.ID,
		Name:           m.Name,
		Mode:           m.Mode,
		Status:         RunStatus(m.Status),
		InitialCapital: m.InitialCapital,
		FinalValue:     m.FinalValue,
		TotalReturn:    m.TotalReturn,
		MaxDrawdown:    m.MaxDrawdown,
		SharpeRatio:    m.SharpeRatio,
		TradeCount:     m.TradeCount,
		Profile:        json.RawMessage(m.ProfileJSON),
		Report:         json.RawMessage(m.ReportJSON),
		Message:        m.Message,
		CreatedAt:      m.CreatedAt,
		CompletedAt:    m.CompletedAt,
	}
}

// GetRun 按 ID 查询运行记录。
func (s *ResultStore) GetRun(ctx context.Context, id string) (RunRecord, error) {
	var m runModel
	err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RunRecord{}, ErrRunNotFound
	}
	if err != nil {
		return RunRecord{}, err
	}
	return toRecord(m), nil
}

// ListRuns 按创建时间倒序列出运行记录。
func (s *ResultStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var models []runModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0, len(models))
	for _, m := range models {
		out = append(out, toRecord(m))
	}
	return out, nil
}

// ListTrades 按执行顺序列出一次运行的成交。
func (s *ResultStore) ListTrades(ctx context.Context, runID string, limit int) ([]portfolio.Trade, error) {
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	var models []tradeModel
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id ASC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]portfolio.Trade, 0, len(models))
	for _, m := range models {
		out = append(out, portfolio.Trade{
			Date:         m.Date,
			Symbol:       m.Symbol,
			Side:         portfolio.Side(m.Side),
			Shares:       m.Shares,
			Price:        m.Price,
			Commission:   m.Commission,
			StampTax:     m.StampTax,
			TransferFee:  m.TransferFee,
			SlippageCost: m.SlippageCost,
			Note:         m.Note,
		})
	}
	return out, nil
}

// ListEquity 按日期升序列出权益曲线。
func (s *ResultStore) ListEquity(ctx context.Context, runID string, limit int) ([]EquityPoint, error) {
	if limit <= 0 || limit > 10000 {
		limit = 2000
	}
	var models []equityModel
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("date ASC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]EquityPoint, 0, len(models))
	for _, m := range models {
		out = append(out, EquityPoint{Date: m.Date, Value: m.Value})
	}
	return out, nil
}
