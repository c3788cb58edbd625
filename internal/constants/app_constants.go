package constants

import "time"

const (
	// DefaultServiceName 默认服务名，写入每条处理事件
	DefaultServiceName = "interview-review-service"

	// MaxScorePerCategory 评分量表上限，评估模型按1-10为每个维度打分
	MaxScorePerCategory = 10

	// StatusRetention 状态记录的保留时长，到期后由Redis自动清理
	StatusRetention = 30 * 24 * time.Hour

	// ErrorKindProcessing 管道内部异常的统一错误类别
	ErrorKindProcessing = "ProcessingError"
)

// 整体表现档位，由平均百分比按阈值映射（下界包含）
const (
	BandExcellent    = "excellent"     // >= 90
	BandGood         = "good"          // >= 75
	BandAverage      = "average"       // >= 50
	BandBelowAverage = "below_average" // >= 30
	BandPoor         = "poor"          // < 30
)
