package types

import (
	"errors"
	"fmt"
)

// ErrMalformedMessage 表示队列消息缺少必填字段或格式非法。
// 这类消息属于致命且不重试的失败：记录FAILED后确认消息，不再投递。
var ErrMalformedMessage = errors.New("malformed submission message")

// QuestionLevel 题目难度级别
type QuestionLevel string

const (
	LevelBeginner     QuestionLevel = "beginner"
	LevelIntermediate QuestionLevel = "intermediate"
	LevelAdvanced     QuestionLevel = "advanced"
)

// Valid 判断级别是否为已知枚举值
func (l QuestionLevel) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// QuestionItem 一道面试题及候选人作答
type QuestionItem struct {
	QID                 string        `json:"qid"`
	Level               QuestionLevel `json:"level"`
	Technologies        []string      `json:"technologies"`
	Tags                []string      `json:"tags"`
	Point               float64       `json:"point"`           // 该题的满分权重，必须为正
	QuestionText        string        `json:"questionText"`
	QuestionExplanation string        `json:"questionExplanation"`
	TranscriptText      string        `json:"transcriptText"` // 允许为空，空作答同样要产出评分结果
}

// InterviewSubmission 队列中的一次面试提交，即一个待处理作业
type InterviewSubmission struct {
	ID      string `json:"id"`
	// JobID 旧字段别名，Validate时归一化到ID，代码中只使用ID
	JobID     string         `json:"job_id,omitempty"`
	Profile   string         `json:"profile"`
	Interview []QuestionItem `json:"interview"`
}

// Validate 对入站消息做显式校验，缺字段直接报错而不是在管道深处崩溃。
// 同时把job_id别名归一化到ID，保证系统内只有一份规范Schema。
func (s *InterviewSubmission) Validate() error {
	if s.ID == "" {
		s.ID = s.JobID
	}
	s.JobID = ""
	if s.ID == "" {
		return fmt.Errorf("%w: 缺少id字段", ErrMalformedMessage)
	}
	if len(s.Interview) == 0 {
		return fmt.Errorf("%w: interview题目列表为空", ErrMalformedMessage)
	}
	for i, q := range s.Interview {
		if q.QID == "" {
			return fmt.Errorf("%w: 第%d题缺少qid", ErrMalformedMessage, i)
		}
		if !q.Level.Valid() {
			return fmt.Errorf("%w: 第%d题level非法: %q", ErrMalformedMessage, i, q.Level)
		}
		if q.Point <= 0 {
			return fmt.Errorf("%w: 第%d题point必须为正数, 实际为%v", ErrMalformedMessage, i, q.Point)
		}
		if q.QuestionText == "" {
			return fmt.Errorf("%w: 第%d题缺少questionText", ErrMalformedMessage, i)
		}
	}
	return nil
}

// TranscriptAnalysis 单题评估的叙述性分析字段
type TranscriptAnalysis struct {
	QuestionRelevance    string `json:"question_relevance"`
	AnswerCompleteness   string `json:"answer_completeness"`
	ContentAnalysis      string `json:"content_analysis"`
	CommunicationSkills  string `json:"communication_skills"`
	CriticalThinking     string `json:"critical_thinking"`
	ProfessionalDemeanor string `json:"professional_demeanor"`
	TechnicalProficiency string `json:"technical_proficiency"`
	SoftSkills           string `json:"soft_skills"`
	CulturalFit          string `json:"cultural_fit"`
}

// QuestionEvaluation 评估引擎对单题的输出，附带本服务计算的派生字段
type QuestionEvaluation struct {
	InterviewQuestion   string             `json:"interview_question"`
	TranscriptAnalysis  TranscriptAnalysis `json:"transcript_analysis"`
	AreasForImprovement []string           `json:"areas_for_improvement"`
	// Scoring 各维度1-10整数评分，不允许为空（为空是该题的硬失败）
	Scoring map[string]int `json:"scoring"`

	// 派生字段，按题目权重折算，保留两位小数
	AveragePoints     float64 `json:"average_points"`
	AveragePercentage float64 `json:"average_percentage"`

	// 从题目原样带回的字段
	QID          string        `json:"qid"`
	Level        QuestionLevel `json:"level"`
	Technologies []string      `json:"technologies"`
	Tags         []string      `json:"tags"`
}

// OverallResult 作业级汇总结果
type OverallResult struct {
	TotalScore         float64  `json:"total_score"`
	AveragePercentage  float64  `json:"average_percentage"`
	OverallPerformance string   `json:"overall_performance"`
	Technologies       []string `json:"technologies"`
	Tags               []string `json:"tags"`
	Summary            []string `json:"summary"`
	Recommendation     string   `json:"recommendation"`
}

// AggregateResult 最终回调给外部系统的完整结果
type AggregateResult struct {
	ID               string               `json:"id"`
	Profile          string               `json:"profile"`
	IndividualResult []QuestionEvaluation `json:"individual_result"`
	OverallResult    OverallResult        `json:"overall_result"`
}
