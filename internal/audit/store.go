// Package audit 把每次批处理的运行记录与草稿结果落入
// 关系数据库（支持 MySQL 5.7+ 和 PostgreSQL），用于事后追查。
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/siscanu/leads-agent/internal/config"
	"github.com/siscanu/leads-agent/internal/domain"
)

// PipelineRun 一次批处理的运行记录
type PipelineRun struct {
	ID                 uint      `gorm:"primaryKey"`
	RunID              string    `gorm:"size:36;uniqueIndex"`
	Trigger            string    `gorm:"size:16;index"`
	StartedAt          time.Time `gorm:"index"`
	FinishedAt         time.Time
	TotalEmails        int
	TotalThreads       int
	CustomerLastEmails int
	ThreadsProcessed   int
	DraftsCreated      int
	Drafts             []DraftRecord `gorm:"foreignKey:RunRef"`
}

// DraftRecord 单个会话的处理结果记录
type DraftRecord struct {
	ID        uint   `gorm:"primaryKey"`
	RunRef    uint   `gorm:"index"`
	ThreadKey string `gorm:"size:128;index"`
	MessageID string `gorm:"size:128"`
	Subject   string `gorm:"size:512"`
	DraftID   string `gorm:"size:128"`
	Created   bool
	TestMode  bool
	Stage     string `gorm:"size:16"`
	Error     string `gorm:"type:text"`
}

// Store 审计数据库存储
type Store struct {
	db     *sql.DB
	gormDB *gorm.DB
}

// NewStore 创建审计存储并执行表迁移。
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	if cfg.Type != "mysql" && cfg.Type != "postgres" {
		return nil, fmt.Errorf("unsupported database type: %s (supported: mysql, postgres)", cfg.Type)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		gormDB *gorm.DB
		rawDB  *sql.DB
		err    error
	)

	switch cfg.Type {
	case "mysql":
		rawDB, err = sql.Open("mysql", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: rawDB}), gormConfig)
	case "postgres":
		gormDB, err = gorm.Open(postgres.Open(cfg.DSN), gormConfig)
	}
	if err != nil {
		if rawDB != nil {
			rawDB.Close()
		}
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	if rawDB == nil {
		rawDB, err = gormDB.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access connection pool: %w", err)
		}
	}

	// 设置连接池参数
	rawDB.SetMaxOpenConns(cfg.MaxOpenConns)
	rawDB.SetMaxIdleConns(cfg.MaxIdleConns)
	rawDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// 测试连接
	if err := rawDB.Ping(); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: rawDB, gormDB: gormDB}
	if err := store.migrate(); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}

// migrate 执行数据库迁移（使用GORM AutoMigrate）
func (s *Store) migrate() error {
	return s.gormDB.AutoMigrate(
		&PipelineRun{},
		&DraftRecord{},
	)
}

// RecordRun 写入一次批处理的完整记录。
func (s *Store) RecordRun(ctx context.Context, report domain.Report) error {
	run := PipelineRun{
		RunID:              report.RunID,
		Trigger:            report.Trigger,
		StartedAt:          report.StartedAt,
		FinishedAt:         report.FinishedAt,
		TotalEmails:        report.TotalEmails,
		TotalThreads:       report.TotalThreads,
		CustomerLastEmails: report.CustomerLastEmails,
		ThreadsProcessed:   report.ThreadsProcessed,
		DraftsCreated:      report.DraftsCreated(),
	}
	for _, r := range report.Results {
		run.Drafts = append(run.Drafts, DraftRecord{
			ThreadKey: r.ThreadKey,
			MessageID: r.MessageID,
			Subject:   r.Subject,
			DraftID:   r.DraftID,
			Created:   r.Created,
			TestMode:  r.TestMode,
			Stage:     r.Stage,
			Error:     r.Error,
		})
	}

	if err := s.gormDB.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("record pipeline run: %w", err)
	}
	return nil
}

// ListRecentRuns 返回最近的运行记录（含草稿结果），最新在前。
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]PipelineRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var runs []PipelineRun
	err := s.gormDB.WithContext(ctx).
		Preload("Drafts").
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	return runs, nil
}
