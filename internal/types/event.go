package types

import (
	"encoding/json"
	"strconv"
)

// ProcessingStatus 作业处理状态机的状态
type ProcessingStatus string

const (
	StatusStarted    ProcessingStatus = "STARTED"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusSuccess    ProcessingStatus = "SUCCESS"
	StatusFailed     ProcessingStatus = "FAILED"
	// StatusRetrying 保留给运维手动触发的重投，不会自动进入
	StatusRetrying ProcessingStatus = "RETRYING"

	// 消息投递相关的辅助状态
	StatusMessageQueued ProcessingStatus = "MESSAGE_QUEUED"
	StatusMessageSent   ProcessingStatus = "MESSAGE_SENT"
	StatusMessageFailed ProcessingStatus = "MESSAGE_FAILED"
)

// ProcessingEvent 一次状态迁移的审计记录，按job_id写入状态存储
type ProcessingEvent struct {
	ServiceName string           `json:"service_name"`
	JobID       string           `json:"job_id"`
	Status      ProcessingStatus `json:"status"`
	Timestamp   string           `json:"timestamp"` // UTC, RFC3339
	Details     interface{}      `json:"details,omitempty"`
	ErrorKind   string           `json:"error_kind,omitempty"`
	ErrorDetail string           `json:"error_detail,omitempty"`
	RetryCount  int              `json:"retry_count,omitempty"`
}

// ToRedisMap 把事件压平成Redis Hash可接受的扁平键值对。
// 结构化的details序列化为JSON文本，序列化失败时退化为fmt文本而不是丢字段。
func (e *ProcessingEvent) ToRedisMap() map[string]string {
	details := ""
	if e.Details != nil {
		if b, err := json.Marshal(e.Details); err == nil {
			details = string(b)
		}
	}
	return map[string]string{
		"service_name": e.ServiceName,
		"job_id":       e.JobID,
		"status":       string(e.Status),
		"timestamp":    e.Timestamp,
		"details":      details,
		"error_kind":   e.ErrorKind,
		"error_detail": e.ErrorDetail,
		"retry_count":  strconv.Itoa(e.RetryCount),
	}
}

// EventFromRedisMap 从扁平Hash还原事件。
// details尝试按JSON反序列化，失败时保留原始文本，读路径绝不因此报错。
func EventFromRedisMap(m map[string]string) *ProcessingEvent {
	e := &ProcessingEvent{
		ServiceName: m["service_name"],
		JobID:       m["job_id"],
		Status:      ProcessingStatus(m["status"]),
		Timestamp:   m["timestamp"],
		ErrorKind:   m["error_kind"],
		ErrorDetail: m["error_detail"],
	}
	if raw := m["details"]; raw != "" {
		var decoded interface{}
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			e.Details = decoded
		} else {
			e.Details = raw
		}
	}
	if rc, err := strconv.Atoi(m["retry_count"]); err == nil {
		e.RetryCount = rc
	}
	return e
}

// ToResponseMap 轮询接口返回的扁平映射
func (e *ProcessingEvent) ToResponseMap() map[string]interface{} {
	resp := map[string]interface{}{
		"service_name": e.ServiceName,
		"job_id":       e.JobID,
		"status":       string(e.Status),
		"timestamp":    e.Timestamp,
	}
	if e.Details != nil {
		resp["details"] = e.Details
	}
	if e.ErrorKind != "" {
		resp["error_kind"] = e.ErrorKind
	}
	if e.ErrorDetail != "" {
		resp["error_detail"] = e.ErrorDetail
	}
	if e.RetryCount > 0 {
		resp["retry_count"] = e.RetryCount
	}
	return resp
}
