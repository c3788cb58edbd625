package router

import (
	"interview-review-go/internal/api/handler"

	"github.com/cloudwego/hertz/pkg/app/server"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, statusHandler *handler.StatusHandler) {
	api := h.Group("/api/v1")

	// 作业状态轮询
	api.GET("/reviews/:job_id/status", statusHandler.HandleGetStatus)

	// 运维手动重投
	api.POST("/reviews/:job_id/retry", statusHandler.HandleRetry)

	// 健康检查
	api.GET("/health", statusHandler.HandleHealth)
}
