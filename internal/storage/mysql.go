package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"interview-review-go/internal/config"
	"interview-review-go/internal/storage/models"
	"interview-review-go/internal/types"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// MySQL 评估结果归档库。
// 归档是旁路功能：写入失败只记警告，绝不影响作业本身的成败。
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端并自动迁移表结构
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
		PrepareStmt:                              true,
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	// 连接池参数
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	if err := db.AutoMigrate(&models.ReviewResult{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return &MySQL{db: db, cfg: cfg}, nil
}

// DB 返回底层gorm.DB
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	if m.db == nil {
		return nil
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveReviewResult 按job_id幂等归档完整评估结果，已存在时整行覆盖
func (m *MySQL) SaveReviewResult(ctx context.Context, result *types.AggregateResult) error {
	if result == nil || result.ID == "" {
		return fmt.Errorf("归档结果缺少作业ID")
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("序列化归档结果失败: %w", err)
	}

	row := &models.ReviewResult{
		JobID:              result.ID,
		Profile:            result.Profile,
		TotalScore:         result.OverallResult.TotalScore,
		AveragePercentage:  result.OverallResult.AveragePercentage,
		OverallPerformance: result.OverallResult.OverallPerformance,
		Technologies:       marshalList(result.OverallResult.Technologies),
		Tags:               marshalList(result.OverallResult.Tags),
		Summary:            strings.Join(result.OverallResult.Summary, "\n"),
		Recommendation:     result.OverallResult.Recommendation,
		ResultJSON:         string(resultJSON),
	}

	err = m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("归档评估结果失败 (job_id=%s): %w", result.ID, err)
	}
	return nil
}

// marshalList 列表字段存为JSON数组文本，空列表存空串
func marshalList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	b, err := json.Marshal(items)
	if err != nil {
		return ""
	}
	return string(b)
}
