package evaluator

import (
	"errors"
	"math"

	"interview-review-go/internal/constants"
)

// ErrEmptyScoring 评估模型返回的scoring映射为空。
// 空映射无法计算平均分，属于该题的硬失败，整个作业标记FAILED。
var ErrEmptyScoring = errors.New("评估结果scoring映射为空")

// Round2 四舍五入保留两位小数（远离零方向）
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CalculateScores 根据各维度评分和题目权重计算派生分数。
// 平均分按1-10量表折算：average_points = 平均分/10*权重，average_percentage = 平均分/10*100。
func CalculateScores(scoring map[string]int, points float64) (averagePoints, averagePercentage float64, err error) {
	if len(scoring) == 0 {
		return 0, 0, ErrEmptyScoring
	}

	total := 0
	for _, s := range scoring {
		total += s
	}
	average := float64(total) / float64(len(scoring))

	averagePoints = Round2(average / constants.MaxScorePerCategory * points)
	averagePercentage = Round2(average / constants.MaxScorePerCategory * 100)
	return averagePoints, averagePercentage, nil
}

// PerformanceBand 把平均百分比映射到整体表现档位，阈值下界包含
func PerformanceBand(averagePercentage float64) string {
	switch {
	case averagePercentage >= 90:
		return constants.BandExcellent
	case averagePercentage >= 75:
		return constants.BandGood
	case averagePercentage >= 50:
		return constants.BandAverage
	case averagePercentage >= 30:
		return constants.BandBelowAverage
	default:
		return constants.BandPoor
	}
}
