package processor

import (
	"context"

	"interview-review-go/internal/types"
)

// QuestionEvaluator 单题评估依赖
type QuestionEvaluator interface {
	Evaluate(ctx context.Context, question *types.QuestionItem) (*types.QuestionEvaluation, error)
}

// OverallEvaluator 汇总评估依赖
type OverallEvaluator interface {
	Evaluate(ctx context.Context, evaluations []types.QuestionEvaluation) (*types.OverallResult, error)
}

// ResultReporter 结果回调依赖
type ResultReporter interface {
	Deliver(ctx context.Context, result *types.AggregateResult) error
}

// EventStore 状态存储依赖
type EventStore interface {
	RecordEvent(ctx context.Context, event *types.ProcessingEvent) error
	GetLatestEvent(ctx context.Context, jobID string) (*types.ProcessingEvent, error)
	GetAuditEvent(ctx context.Context, jobID string) (*types.ProcessingEvent, error)
	Ping(ctx context.Context) error
}

// ResultArchiver 评估结果归档依赖（可选组件）
type ResultArchiver interface {
	SaveReviewResult(ctx context.Context, result *types.AggregateResult) error
}

// MessageQueue 消息队列依赖
type MessageQueue interface {
	PublishJSON(ctx context.Context, queueName string, data interface{}, persistent bool) error
	EnsureQueue(queueName string, durable bool) error
	StartConsumer(queueName string, prefetchCount int, handler func([]byte) bool) (chan struct{}, error)
	HealthCheck(ctx context.Context) error
}
