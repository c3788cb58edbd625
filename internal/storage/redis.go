package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"interview-review-go/internal/config"
	"interview-review-go/internal/constants"
	"interview-review-go/internal/types"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key is not found in Redis.
// It wraps the underlying redis.Nil error for abstraction.
var ErrNotFound = redis.Nil

// Redis 状态存储适配器。
// 写入作业的最新处理事件（30天过期），并按job_id维护独立的审计映射。
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("redis host is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	// Ping to check connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// RecordEvent 写入/覆盖作业的最新状态Hash并刷新30天过期时间，
// 同时把事件快照写入审计映射（field=job_id）。
// 调用方应把写入失败当作警告处理，状态写失败绝不能中止一个本来成功的作业。
func (r *Redis) RecordEvent(ctx context.Context, event *types.ProcessingEvent) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	if event == nil || event.JobID == "" {
		return fmt.Errorf("事件缺少job_id，无法写入状态存储")
	}

	key := constants.StatusKey(event.JobID)
	pipe := r.Client.Pipeline()
	pipe.HSet(ctx, key, event.ToRedisMap())
	pipe.Expire(ctx, key, constants.StatusRetention)

	// 审计映射只保存携带作业载荷的事件（STARTED/RETRYING），
	// 后续状态不覆盖，手动重投时才能取回原始载荷
	if event.Status == types.StatusStarted || event.Status == types.StatusRetrying {
		auditValue, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("序列化审计事件失败: %w", err)
		}
		pipe.HSet(ctx, constants.ReviewAuditHashKey, event.JobID, string(auditValue))
		// ExpireNX: 只在审计Hash还没有过期时间时设置，避免每次写入都续期
		pipe.ExpireNX(ctx, constants.ReviewAuditHashKey, constants.StatusRetention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入处理事件失败 (job_id=%s): %w", event.JobID, err)
	}
	return nil
}

// GetLatestEvent 读取作业的最新处理事件。
// 未知job_id返回ErrNotFound，绝不返回空而存在的记录。
func (r *Redis) GetLatestEvent(ctx context.Context, jobID string) (*types.ProcessingEvent, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis client is not initialized")
	}
	fields, err := r.Client.HGetAll(ctx, constants.StatusKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("读取作业状态失败 (job_id=%s): %w", jobID, err)
	}
	// HGetAll对不存在的key返回空map而不是redis.Nil
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return types.EventFromRedisMap(fields), nil
}

// GetAuditEvent 读取审计映射中的事件快照，手动重投时从这里取回原始作业载荷
func (r *Redis) GetAuditEvent(ctx context.Context, jobID string) (*types.ProcessingEvent, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("redis client is not initialized")
	}
	raw, err := r.Client.HGet(ctx, constants.ReviewAuditHashKey, jobID).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取审计事件失败 (job_id=%s): %w", jobID, err)
	}
	var event types.ProcessingEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		// 审计值不是合法JSON时降级为原文，读路径不抛硬错误
		log.Printf("审计事件反序列化失败 (job_id=%s): %v", jobID, err)
		return &types.ProcessingEvent{JobID: jobID, Details: raw}, nil
	}
	return &event, nil
}
