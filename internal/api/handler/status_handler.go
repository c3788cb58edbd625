package handler

import (
	"context"
	"errors"

	"interview-review-go/internal/storage"
	"interview-review-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// EventReader 状态查询依赖
type EventReader interface {
	GetLatestEvent(ctx context.Context, jobID string) (*types.ProcessingEvent, error)
}

// HealthChecker 处理服务的健康检查依赖
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Retrier 运维重投依赖
type Retrier interface {
	Retry(ctx context.Context, jobID string) error
}

// StatusHandler 负责作业状态轮询与运维接口
type StatusHandler struct {
	events  EventReader
	checker HealthChecker
	retrier Retrier
}

// NewStatusHandler 创建状态查询Handler
func NewStatusHandler(events EventReader, checker HealthChecker, retrier Retrier) *StatusHandler {
	return &StatusHandler{
		events:  events,
		checker: checker,
		retrier: retrier,
	}
}

// HandleGetStatus 查询作业的最新处理状态。
// GET /api/v1/reviews/:job_id/status
func (h *StatusHandler) HandleGetStatus(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "job_id 不能为空"})
		return
	}

	event, err := h.events.GetLatestEvent(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "未找到该作业的处理记录"})
			return
		}
		c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
		return
	}

	c.JSON(consts.StatusOK, event.ToResponseMap())
}

// HandleRetry 手动重投一个失败的作业。
// POST /api/v1/reviews/:job_id/retry
func (h *StatusHandler) HandleRetry(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, utils.H{"error": "job_id 不能为空"})
		return
	}

	if err := h.retrier.Retry(ctx, jobID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(consts.StatusNotFound, utils.H{"error": "未找到该作业的审计记录"})
			return
		}
		c.JSON(consts.StatusConflict, utils.H{"error": err.Error()})
		return
	}

	c.JSON(consts.StatusAccepted, utils.H{"job_id": jobID, "status": "RETRYING"})
}

// HandleHealth 健康检查，依赖不可用时返回503。
// GET /api/v1/health
func (h *StatusHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	if err := h.checker.CheckHealth(ctx); err != nil {
		c.JSON(consts.StatusServiceUnavailable, utils.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, utils.H{"status": "ok"})
}
