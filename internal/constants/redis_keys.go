package constants

// Redis Key 前缀和格式常量
// 状态键保存作业的最新处理事件，审计Hash按job_id保留事件快照
const (
	// StatusKeyPrefix 作业状态Hash的键前缀
	// 格式: status:{job_id}
	StatusKeyPrefix = "status:"

	// ReviewAuditHashKey 处理审计Hash (HASH, field=job_id, value=事件JSON)
	ReviewAuditHashKey = "interview:reviews:audit"
)

// StatusKey 拼接指定作业的状态键
func StatusKey(jobID string) string {
	return StatusKeyPrefix + jobID
}
