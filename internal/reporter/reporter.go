package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"interview-review-go/internal/config"
	"interview-review-go/internal/types"
)

// HTTPResultReporter 把最终评估结果以PATCH方式回调给外部系统。
// 单次尝试，不在本层重试；回调失败由上层记警告，不影响作业的SUCCESS状态。
type HTTPResultReporter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPResultReporter 创建回调客户端
func NewHTTPResultReporter(cfg *config.ReporterConfig) *HTTPResultReporter {
	return &HTTPResultReporter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: config.GetDuration(cfg.Timeout, 30*time.Second),
		},
	}
}

// Deliver 回调一次评估结果，目标地址为 {base_url}/{作业ID}。
// 只有HTTP 200视为投递成功，其余状态码一律报错。
func (r *HTTPResultReporter) Deliver(ctx context.Context, result *types.AggregateResult) error {
	if result == nil || result.ID == "" {
		return fmt.Errorf("回调结果缺少作业ID")
	}

	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("序列化回调结果失败: %w", err)
	}

	url := r.baseURL + "/" + result.ID
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造回调请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("回调请求发送失败 (job_id=%s): %w", result.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 读一小段响应体帮助定位，失败了也不影响错误返回
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("回调返回非预期状态码 %d (job_id=%s): %s", resp.StatusCode, result.ID, string(snippet))
	}
	return nil
}
