package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"interview-review-go/internal/config"
	"interview-review-go/internal/constants"
	"interview-review-go/internal/logger"
	"interview-review-go/internal/types"

	"github.com/gofrs/uuid/v5"
)

// ReviewProcessor 面试评估作业的处理服务。
// 消费提交消息，驱动单作业状态机：STARTED -> PROCESSING -> SUCCESS/FAILED，
// 每次状态迁移写入状态存储，成功后回调结果并旁路归档。
type ReviewProcessor struct {
	cfg          *config.Config
	queue        MessageQueue
	events       EventStore
	questionEval QuestionEvaluator
	overallEval  OverallEvaluator
	reporter     ResultReporter
	archiver     ResultArchiver // 可选，nil时跳过归档

	stopCh chan struct{}
}

// NewReviewProcessor 创建处理服务
func NewReviewProcessor(
	cfg *config.Config,
	queue MessageQueue,
	events EventStore,
	questionEval QuestionEvaluator,
	overallEval OverallEvaluator,
	reporter ResultReporter,
	archiver ResultArchiver,
) *ReviewProcessor {
	return &ReviewProcessor{
		cfg:          cfg,
		queue:        queue,
		events:       events,
		questionEval: questionEval,
		overallEval:  overallEval,
		reporter:     reporter,
		archiver:     archiver,
	}
}

// CheckHealth 校验消息队列与状态存储是否可用
func (p *ReviewProcessor) CheckHealth(ctx context.Context) error {
	if err := p.queue.HealthCheck(ctx); err != nil {
		return fmt.Errorf("消息队列不可用: %w", err)
	}
	if err := p.events.Ping(ctx); err != nil {
		return fmt.Errorf("状态存储不可用: %w", err)
	}
	return nil
}

// Start 声明队列并启动消费。
// 队列声明或消费注册失败返回错误，调用方应拒绝启动而不是静默空转。
func (p *ReviewProcessor) Start(ctx context.Context) error {
	queueName := p.cfg.RabbitMQ.Queue
	if err := p.queue.EnsureQueue(queueName, true); err != nil {
		return fmt.Errorf("声明作业队列失败: %w", err)
	}

	stopCh, err := p.queue.StartConsumer(queueName, p.cfg.RabbitMQ.PrefetchCount, p.HandleDelivery)
	if err != nil {
		return fmt.Errorf("启动消费者失败: %w", err)
	}
	p.stopCh = stopCh

	logger.Info().
		Str("queue", queueName).
		Int("prefetch", p.cfg.RabbitMQ.PrefetchCount).
		Msg("面试评估处理服务已启动")
	return nil
}

// Stop 停止消费
func (p *ReviewProcessor) Stop() {
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
}

// HandleDelivery 单条消息的处理入口。
// 无论处理成败都返回true确认消息：失败已记入状态存储，原消息重新入队只会重复失败。
// 消息不做重复投递去重，broker重投的消息会按原样重新处理一遍。
func (p *ReviewProcessor) HandleDelivery(body []byte) bool {
	deliveryID := newDeliveryID()
	log := logger.Logger.With().Str("delivery_id", deliveryID).Logger()

	timeout := time.Duration(p.cfg.Service.StatusCheckTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = log.WithContext(ctx)

	var submission types.InterviewSubmission
	if err := json.Unmarshal(body, &submission); err != nil {
		log.Error().Err(err).Msg("消息不是合法JSON，标记失败并确认")
		p.recordMalformed(ctx, &submission, body, err)
		return true
	}
	if err := submission.Validate(); err != nil {
		log.Error().Err(err).Str("job_id", submission.ID).Msg("消息校验失败，标记失败并确认")
		p.recordMalformed(ctx, &submission, body, err)
		return true
	}

	if err := p.ProcessSubmission(ctx, &submission); err != nil {
		log.Error().Err(err).Str("job_id", submission.ID).Msg("作业处理失败")
	}
	return true
}

// recordMalformed 为格式非法的消息记录FAILED事件。
// 没有job_id的消息无法写入按作业索引的状态存储，只能记日志。
func (p *ReviewProcessor) recordMalformed(ctx context.Context, submission *types.InterviewSubmission, body []byte, cause error) {
	jobID := ""
	if submission != nil {
		jobID = submission.ID
		if jobID == "" {
			jobID = submission.JobID
		}
	}
	if jobID == "" {
		logger.Ctx(ctx).Warn().Msg("非法消息缺少job_id，无法写入状态存储")
		return
	}
	p.logEvent(ctx, &types.ProcessingEvent{
		JobID:       jobID,
		Status:      types.StatusFailed,
		Details:     string(body),
		ErrorKind:   constants.ErrorKindProcessing,
		ErrorDetail: cause.Error(),
	})
}

// ProcessSubmission 处理一个已通过校验的作业。
// 任一题目评估失败即放弃整个作业：绝不回调部分结果。
func (p *ReviewProcessor) ProcessSubmission(ctx context.Context, submission *types.InterviewSubmission) (err error) {
	log := logger.Ctx(ctx)

	// 管道内任何panic都收敛为FAILED事件，消费循环不能因单个作业崩溃
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("作业处理发生panic: %v", r)
			log.Error().Str("job_id", submission.ID).Interface("panic", r).Msg("作业处理发生panic")
			p.logEvent(ctx, &types.ProcessingEvent{
				JobID:       submission.ID,
				Status:      types.StatusFailed,
				ErrorKind:   constants.ErrorKindProcessing,
				ErrorDetail: err.Error(),
			})
		}
	}()

	log.Info().Str("job_id", submission.ID).Int("questions", len(submission.Interview)).Msg("开始处理面试评估作业")

	p.logEvent(ctx, &types.ProcessingEvent{
		JobID:   submission.ID,
		Status:  types.StatusStarted,
		Details: submission,
	})

	// 作业载荷快照落盘，便于失败后离线排查，处理结束即清理
	snapshotPath, cleanup := p.writeSnapshot(submission)
	defer cleanup()
	if snapshotPath != "" {
		log.Debug().Str("job_id", submission.ID).Str("snapshot", snapshotPath).Msg("作业快照已写入临时目录")
	}

	p.logEvent(ctx, &types.ProcessingEvent{
		JobID:  submission.ID,
		Status: types.StatusProcessing,
	})

	// 按提交顺序逐题评估
	evaluations := make([]types.QuestionEvaluation, 0, len(submission.Interview))
	for i := range submission.Interview {
		question := &submission.Interview[i]
		eval, evalErr := p.questionEval.Evaluate(ctx, question)
		if evalErr != nil {
			p.logEvent(ctx, &types.ProcessingEvent{
				JobID:       submission.ID,
				Status:      types.StatusFailed,
				ErrorKind:   constants.ErrorKindProcessing,
				ErrorDetail: evalErr.Error(),
			})
			return fmt.Errorf("第%d题评估失败: %w", i, evalErr)
		}
		evaluations = append(evaluations, *eval)
	}

	overall, overallErr := p.overallEval.Evaluate(ctx, evaluations)
	if overallErr != nil {
		p.logEvent(ctx, &types.ProcessingEvent{
			JobID:       submission.ID,
			Status:      types.StatusFailed,
			ErrorKind:   constants.ErrorKindProcessing,
			ErrorDetail: overallErr.Error(),
		})
		return fmt.Errorf("汇总评估失败: %w", overallErr)
	}

	result := &types.AggregateResult{
		ID:               submission.ID,
		Profile:          submission.Profile,
		IndividualResult: evaluations,
		OverallResult:    *overall,
	}

	// 回调失败不改变作业成败，结果仍可通过轮询接口和归档库获得
	if deliverErr := p.reporter.Deliver(ctx, result); deliverErr != nil {
		log.Warn().Err(deliverErr).Str("job_id", submission.ID).Msg("结果回调失败")
	} else {
		log.Info().Str("job_id", submission.ID).Msg("结果回调成功")
	}

	// 归档是旁路，失败同样只记警告
	if p.archiver != nil {
		if archiveErr := p.archiver.SaveReviewResult(ctx, result); archiveErr != nil {
			log.Warn().Err(archiveErr).Str("job_id", submission.ID).Msg("结果归档失败")
		}
	}

	p.logEvent(ctx, &types.ProcessingEvent{
		JobID:   submission.ID,
		Status:  types.StatusSuccess,
		Details: result,
	})

	log.Info().
		Str("job_id", submission.ID).
		Float64("total_score", overall.TotalScore).
		Str("performance", overall.OverallPerformance).
		Msg("面试评估作业处理完成")
	return nil
}

// Retry 运维手动触发的作业重投。
// 从审计存储取回原始作业载荷，检查重试次数上限后写RETRYING事件并重新入队。
func (p *ReviewProcessor) Retry(ctx context.Context, jobID string) error {
	audit, err := p.events.GetAuditEvent(ctx, jobID)
	if err != nil {
		return fmt.Errorf("取回作业审计记录失败 (job_id=%s): %w", jobID, err)
	}

	retryCount := audit.RetryCount + 1
	if retryCount > p.cfg.Service.MaxRetries {
		return fmt.Errorf("作业已达最大重试次数 %d (job_id=%s)", p.cfg.Service.MaxRetries, jobID)
	}

	// 审计事件的details里保存着最近一次的作业载荷
	payload, err := json.Marshal(audit.Details)
	if err != nil {
		return fmt.Errorf("序列化重投载荷失败 (job_id=%s): %w", jobID, err)
	}
	var submission types.InterviewSubmission
	if err := json.Unmarshal(payload, &submission); err != nil {
		return fmt.Errorf("审计记录中没有可重投的作业载荷 (job_id=%s): %w", jobID, err)
	}
	if err := submission.Validate(); err != nil {
		return fmt.Errorf("审计记录中的作业载荷非法 (job_id=%s): %w", jobID, err)
	}

	p.logEvent(ctx, &types.ProcessingEvent{
		JobID:      jobID,
		Status:     types.StatusRetrying,
		RetryCount: retryCount,
		Details:    &submission,
	})

	if err := p.queue.PublishJSON(ctx, p.cfg.RabbitMQ.Queue, &submission, true); err != nil {
		p.logEvent(ctx, &types.ProcessingEvent{
			JobID:       jobID,
			Status:      types.StatusMessageFailed,
			RetryCount:  retryCount,
			ErrorKind:   constants.ErrorKindProcessing,
			ErrorDetail: err.Error(),
		})
		return fmt.Errorf("重投作业入队失败 (job_id=%s): %w", jobID, err)
	}

	p.logEvent(ctx, &types.ProcessingEvent{
		JobID:      jobID,
		Status:     types.StatusMessageQueued,
		RetryCount: retryCount,
	})

	logger.Ctx(ctx).Info().Str("job_id", jobID).Int("retry_count", retryCount).Msg("作业已重新入队")
	return nil
}

// logEvent 写状态事件。写失败只记警告：状态存储故障不能让成功的作业失败
func (p *ReviewProcessor) logEvent(ctx context.Context, event *types.ProcessingEvent) {
	if event.ServiceName == "" {
		event.ServiceName = p.cfg.Service.Name
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if err := p.events.RecordEvent(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().
			Err(err).
			Str("job_id", event.JobID).
			Str("status", string(event.Status)).
			Msg("写入状态事件失败")
	}
}

// writeSnapshot 把作业载荷写入临时目录，返回路径和清理函数
func (p *ReviewProcessor) writeSnapshot(submission *types.InterviewSubmission) (string, func()) {
	noop := func() {}
	data, err := json.Marshal(submission)
	if err != nil {
		return "", noop
	}
	path := filepath.Join(p.cfg.Service.TempDir, fmt.Sprintf("review-%s.json", submission.ID))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", noop
	}
	return path, func() { os.Remove(path) }
}

// newDeliveryID 为每条消息生成追踪用的唯一ID
func newDeliveryID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("delivery-%d", time.Now().UnixNano())
	}
	return id.String()
}
