package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"interview-review-go/internal/config"
	"interview-review-go/internal/constants"
	"interview-review-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuestionEvaluator 按qid返回预设结果或错误
type fakeQuestionEvaluator struct {
	failQID string
	calls   []string
}

func (f *fakeQuestionEvaluator) Evaluate(ctx context.Context, q *types.QuestionItem) (*types.QuestionEvaluation, error) {
	f.calls = append(f.calls, q.QID)
	if f.failQID != "" && q.QID == f.failQID {
		return nil, fmt.Errorf("评估引擎返回空scoring (qid=%s)", q.QID)
	}
	return &types.QuestionEvaluation{
		InterviewQuestion: q.QuestionText,
		Scoring:           map[string]int{"question_relevance": 7},
		AveragePoints:     1.4,
		AveragePercentage: 70,
		QID:               q.QID,
		Level:             q.Level,
		Technologies:      q.Technologies,
		Tags:              q.Tags,
	}, nil
}

// fakeOverallEvaluator 返回固定汇总结果
type fakeOverallEvaluator struct {
	err   error
	calls int
}

func (f *fakeOverallEvaluator) Evaluate(ctx context.Context, evals []types.QuestionEvaluation) (*types.OverallResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.OverallResult{
		TotalScore:         2.8,
		AveragePercentage:  70,
		OverallPerformance: "average",
		Summary:            []string{"ok"},
		Recommendation:     "hire",
	}, nil
}

// fakeReporter 记录投递的结果
type fakeReporter struct {
	err       error
	delivered []*types.AggregateResult
}

func (f *fakeReporter) Deliver(ctx context.Context, result *types.AggregateResult) error {
	f.delivered = append(f.delivered, result)
	return f.err
}

// fakeEventStore 在内存中记录事件序列
type fakeEventStore struct {
	recordErr error
	events    []*types.ProcessingEvent
	audit     map[string]*types.ProcessingEvent
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{audit: make(map[string]*types.ProcessingEvent)}
}

func (f *fakeEventStore) RecordEvent(ctx context.Context, event *types.ProcessingEvent) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.events = append(f.events, event)
	// 审计映射只保存携带作业载荷的事件，与真实状态存储一致
	if event.Status == types.StatusStarted || event.Status == types.StatusRetrying {
		f.audit[event.JobID] = event
	}
	return nil
}

func (f *fakeEventStore) GetLatestEvent(ctx context.Context, jobID string) (*types.ProcessingEvent, error) {
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].JobID == jobID {
			return f.events[i], nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeEventStore) GetAuditEvent(ctx context.Context, jobID string) (*types.ProcessingEvent, error) {
	if ev, ok := f.audit[jobID]; ok {
		return ev, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeEventStore) Ping(ctx context.Context) error { return nil }

// statuses 返回某作业记录的状态序列
func (f *fakeEventStore) statuses(jobID string) []types.ProcessingStatus {
	var out []types.ProcessingStatus
	for _, ev := range f.events {
		if ev.JobID == jobID {
			out = append(out, ev.Status)
		}
	}
	return out
}

// fakeQueue 记录发布的消息
type fakeQueue struct {
	published [][]byte
	pubErr    error
}

func (f *fakeQueue) PublishJSON(ctx context.Context, queueName string, data interface{}, persistent bool) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	f.published = append(f.published, b)
	return nil
}

func (f *fakeQueue) EnsureQueue(queueName string, durable bool) error { return nil }

func (f *fakeQueue) StartConsumer(queueName string, prefetchCount int, handler func([]byte) bool) (chan struct{}, error) {
	return make(chan struct{}), nil
}

func (f *fakeQueue) HealthCheck(ctx context.Context) error { return nil }

// fakeArchiver 记录归档调用
type fakeArchiver struct {
	err   error
	saved []*types.AggregateResult
}

func (f *fakeArchiver) SaveReviewResult(ctx context.Context, result *types.AggregateResult) error {
	f.saved = append(f.saved, result)
	return f.err
}

type processorFixture struct {
	proc     *ReviewProcessor
	events   *fakeEventStore
	queue    *fakeQueue
	reporter *fakeReporter
	qEval    *fakeQuestionEvaluator
	oEval    *fakeOverallEvaluator
	archiver *fakeArchiver
}

func newFixture(t *testing.T) *processorFixture {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.RabbitMQ.Queue = "test_queue"
	cfg.Service.TempDir = t.TempDir()

	f := &processorFixture{
		events:   newFakeEventStore(),
		queue:    &fakeQueue{},
		reporter: &fakeReporter{},
		qEval:    &fakeQuestionEvaluator{},
		oEval:    &fakeOverallEvaluator{},
		archiver: &fakeArchiver{},
	}
	f.proc = NewReviewProcessor(cfg, f.queue, f.events, f.qEval, f.oEval, f.reporter, f.archiver)
	return f
}

func submissionJSON(t *testing.T, id string) []byte {
	t.Helper()
	sub := types.InterviewSubmission{
		ID:      id,
		Profile: "backend-engineer",
		Interview: []types.QuestionItem{
			{QID: "q-1", Level: types.LevelIntermediate, Point: 2, QuestionText: "Q1?", Technologies: []string{"Go"}},
			{QID: "q-2", Level: types.LevelAdvanced, Point: 2, QuestionText: "Q2?", Technologies: []string{"Go"}},
		},
	}
	b, err := json.Marshal(&sub)
	require.NoError(t, err)
	return b
}

func TestHandleDeliverySuccessPath(t *testing.T) {
	f := newFixture(t)

	ok := f.proc.HandleDelivery(submissionJSON(t, "job-ok"))
	assert.True(t, ok)

	// 状态机: STARTED -> PROCESSING -> SUCCESS
	assert.Equal(t,
		[]types.ProcessingStatus{types.StatusStarted, types.StatusProcessing, types.StatusSuccess},
		f.events.statuses("job-ok"))

	// 按提交顺序逐题评估
	assert.Equal(t, []string{"q-1", "q-2"}, f.qEval.calls)
	assert.Equal(t, 1, f.oEval.calls)

	// 结果回调一次且包含完整内容
	require.Len(t, f.reporter.delivered, 1)
	result := f.reporter.delivered[0]
	assert.Equal(t, "job-ok", result.ID)
	assert.Equal(t, "backend-engineer", result.Profile)
	assert.Len(t, result.IndividualResult, 2)
	assert.Equal(t, "average", result.OverallResult.OverallPerformance)

	// 旁路归档同样被调用
	require.Len(t, f.archiver.saved, 1)
	assert.Equal(t, "job-ok", f.archiver.saved[0].ID)
}

func TestSingleQuestionFailureAbortsWholeJob(t *testing.T) {
	f := newFixture(t)
	f.qEval.failQID = "q-2"

	ok := f.proc.HandleDelivery(submissionJSON(t, "job-fail"))
	// 失败同样确认消息，失败已记入状态存储
	assert.True(t, ok)

	statuses := f.events.statuses("job-fail")
	assert.Equal(t, types.StatusFailed, statuses[len(statuses)-1])

	// 绝不回调部分结果
	assert.Empty(t, f.reporter.delivered)
	assert.Empty(t, f.archiver.saved)
	assert.Equal(t, 0, f.oEval.calls)

	// FAILED事件带错误分类
	last := f.events.events[len(f.events.events)-1]
	assert.Equal(t, constants.ErrorKindProcessing, last.ErrorKind)
	assert.NotEmpty(t, last.ErrorDetail)
}

func TestOverallFailureAbortsJob(t *testing.T) {
	f := newFixture(t)
	f.oEval.err = errors.New("汇总评估超时")

	ok := f.proc.HandleDelivery(submissionJSON(t, "job-overall-fail"))
	assert.True(t, ok)

	statuses := f.events.statuses("job-overall-fail")
	assert.Equal(t, types.StatusFailed, statuses[len(statuses)-1])
	assert.Empty(t, f.reporter.delivered)
}

func TestHandleDeliveryMalformedJSON(t *testing.T) {
	f := newFixture(t)

	// 非JSON消息：确认消息避免死循环重投，没有job_id无法写状态
	ok := f.proc.HandleDelivery([]byte("this is not json"))
	assert.True(t, ok)
	assert.Empty(t, f.events.events)
	assert.Empty(t, f.reporter.delivered)
}

func TestHandleDeliveryValidationFailureRecordsFailed(t *testing.T) {
	f := newFixture(t)

	// 有job_id但题目列表为空，校验失败记FAILED
	body := []byte(`{"id": "job-bad", "profile": "x", "interview": []}`)
	ok := f.proc.HandleDelivery(body)
	assert.True(t, ok)

	statuses := f.events.statuses("job-bad")
	require.Len(t, statuses, 1)
	assert.Equal(t, types.StatusFailed, statuses[0])
	assert.Equal(t, constants.ErrorKindProcessing, f.events.events[0].ErrorKind)
	assert.Empty(t, f.reporter.delivered)
}

func TestHandleDeliveryJobIDAliasRecognized(t *testing.T) {
	f := newFixture(t)

	// 旧字段job_id被归一化后正常处理
	body := []byte(`{"job_id": "job-alias", "profile": "x", "interview": [
		{"qid": "q-1", "level": "beginner", "point": 1, "questionText": "Q?"}
	]}`)
	ok := f.proc.HandleDelivery(body)
	assert.True(t, ok)

	statuses := f.events.statuses("job-alias")
	assert.Equal(t, types.StatusSuccess, statuses[len(statuses)-1])
}

func TestReporterFailureDoesNotFailJob(t *testing.T) {
	f := newFixture(t)
	f.reporter.err = errors.New("callback endpoint down")

	ok := f.proc.HandleDelivery(submissionJSON(t, "job-cb-down"))
	assert.True(t, ok)

	// 回调失败只是警告，作业仍然成功
	statuses := f.events.statuses("job-cb-down")
	assert.Equal(t, types.StatusSuccess, statuses[len(statuses)-1])
}

func TestArchiverFailureDoesNotFailJob(t *testing.T) {
	f := newFixture(t)
	f.archiver.err = errors.New("mysql down")

	ok := f.proc.HandleDelivery(submissionJSON(t, "job-db-down"))
	assert.True(t, ok)

	statuses := f.events.statuses("job-db-down")
	assert.Equal(t, types.StatusSuccess, statuses[len(statuses)-1])
}

func TestNilArchiverIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.proc.archiver = nil

	ok := f.proc.HandleDelivery(submissionJSON(t, "job-no-db"))
	assert.True(t, ok)

	statuses := f.events.statuses("job-no-db")
	assert.Equal(t, types.StatusSuccess, statuses[len(statuses)-1])
}

func TestEventStoreFailureDoesNotAbortJob(t *testing.T) {
	f := newFixture(t)
	f.events.recordErr = errors.New("redis down")

	ok := f.proc.HandleDelivery(submissionJSON(t, "job-redis-down"))
	assert.True(t, ok)

	// 状态写失败只记警告，评估和回调照常进行
	require.Len(t, f.reporter.delivered, 1)
	assert.Equal(t, "job-redis-down", f.reporter.delivered[0].ID)
}

func TestProcessMessageRedeliveryIsNotDeduplicated(t *testing.T) {
	f := newFixture(t)

	body := submissionJSON(t, "job-redelivered")
	assert.True(t, f.proc.HandleDelivery(body))
	assert.True(t, f.proc.HandleDelivery(body))

	// 重复投递的消息按原样重新处理，不做去重
	var successCount int
	for _, s := range f.events.statuses("job-redelivered") {
		if s == types.StatusSuccess {
			successCount++
		}
	}
	assert.Equal(t, 2, successCount)
	assert.Len(t, f.reporter.delivered, 2)
}

func TestRetryRepublishesJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 先处理一次，审计存储里留下载荷快照
	require.True(t, f.proc.HandleDelivery(submissionJSON(t, "job-retry")))

	require.NoError(t, f.proc.Retry(ctx, "job-retry"))

	// 重投后队列里有原始载荷
	require.Len(t, f.queue.published, 1)
	var republished types.InterviewSubmission
	require.NoError(t, json.Unmarshal(f.queue.published[0], &republished))
	assert.Equal(t, "job-retry", republished.ID)
	assert.Len(t, republished.Interview, 2)

	// 状态序列包含RETRYING和MESSAGE_QUEUED
	statuses := f.events.statuses("job-retry")
	assert.Contains(t, statuses, types.StatusRetrying)
	assert.Equal(t, types.StatusMessageQueued, statuses[len(statuses)-1])
}

func TestRetryRespectsMaxRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.proc.cfg.Service.MaxRetries = 1

	require.True(t, f.proc.HandleDelivery(submissionJSON(t, "job-max")))

	// 第一次重投成功
	require.NoError(t, f.proc.Retry(ctx, "job-max"))
	// 审计记录里retry_count已到上限，第二次拒绝
	err := f.proc.Retry(ctx, "job-max")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "最大重试次数")
	assert.Len(t, f.queue.published, 1)
}

func TestRetryUnknownJob(t *testing.T) {
	f := newFixture(t)
	err := f.proc.Retry(context.Background(), "job-unknown")
	assert.Error(t, err)
	assert.Empty(t, f.queue.published)
}

func TestRetryPublishFailureRecordsMessageFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.True(t, f.proc.HandleDelivery(submissionJSON(t, "job-pub-fail")))
	f.queue.pubErr = errors.New("broker unavailable")

	err := f.proc.Retry(ctx, "job-pub-fail")
	require.Error(t, err)

	statuses := f.events.statuses("job-pub-fail")
	assert.Equal(t, types.StatusMessageFailed, statuses[len(statuses)-1])
}

func TestEventsCarryServiceNameAndTimestamp(t *testing.T) {
	f := newFixture(t)

	require.True(t, f.proc.HandleDelivery(submissionJSON(t, "job-meta")))

	for _, ev := range f.events.events {
		assert.Equal(t, "interview-review-service", ev.ServiceName)
		assert.NotEmpty(t, ev.Timestamp)
	}
}
