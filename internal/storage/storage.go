package storage

import (
	"fmt"
	"log"

	"interview-review-go/internal/config"
)

// Storage 聚合所有存储组件，统一初始化和关闭
type Storage struct {
	RabbitMQ *RabbitMQ
	Redis    *Redis
	MySQL    *MySQL // 可选，配置为空时为nil
}

// NewStorage 初始化全部存储组件。
// RabbitMQ和Redis是硬依赖，任一失败即返回错误，进程不应在无法写状态的情况下消费消息。
// MySQL归档是可选旁路，未配置或初始化失败时跳过并记录警告。
func NewStorage(cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}

	s := &Storage{}

	mq, err := NewRabbitMQ(&cfg.RabbitMQ)
	if err != nil {
		return nil, fmt.Errorf("初始化RabbitMQ失败: %w", err)
	}
	s.RabbitMQ = mq

	rds, err := NewRedisAdapter(&cfg.Redis)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("初始化Redis失败: %w", err)
	}
	s.Redis = rds

	if cfg.MySQL.Host != "" {
		db, err := NewMySQL(&cfg.MySQL)
		if err != nil {
			// 归档库不可用不阻塞启动
			log.Printf("初始化MySQL归档库失败，结果归档已禁用: %v", err)
		} else {
			s.MySQL = db
		}
	} else {
		log.Println("未配置MySQL，结果归档已禁用")
	}

	return s, nil
}

// Close 关闭所有已初始化的存储组件
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Printf("关闭RabbitMQ连接失败: %v", err)
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Printf("关闭Redis连接失败: %v", err)
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Printf("关闭MySQL连接失败: %v", err)
		}
	}
}
