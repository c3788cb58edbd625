package models

import "time"

// ReviewResult 评估结果归档记录，按job_id唯一，重复处理时覆盖更新。
// 常用的汇总字段拆列便于查询，完整结果以JSON原文保留在ResultJSON。
type ReviewResult struct {
	ID                 uint    `gorm:"primaryKey;autoIncrement"`
	JobID              string  `gorm:"column:job_id;type:varchar(64);uniqueIndex;not null"`
	Profile            string  `gorm:"column:profile;type:varchar(128)"`
	TotalScore         float64 `gorm:"column:total_score"`
	AveragePercentage  float64 `gorm:"column:average_percentage"`
	OverallPerformance string  `gorm:"column:overall_performance;type:varchar(32)"`
	Technologies       string  `gorm:"column:technologies;type:text"` // JSON数组文本
	Tags               string  `gorm:"column:tags;type:text"`         // JSON数组文本
	Summary            string  `gorm:"column:summary;type:text"`
	Recommendation     string  `gorm:"column:recommendation;type:text"`
	ResultJSON         string  `gorm:"column:result_json;type:longtext"` // 完整AggregateResult原文
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TableName 指定表名
func (ReviewResult) TableName() string {
	return "review_results"
}
