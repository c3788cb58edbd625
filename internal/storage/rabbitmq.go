package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"interview-review-go/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageQueue 消息队列接口
type MessageQueue interface {
	// 发布消息到指定队列（默认交换机，routing key即队列名）
	PublishMessage(ctx context.Context, queueName string, message []byte, persistent bool) error

	// 发布JSON格式消息
	PublishJSON(ctx context.Context, queueName string, data interface{}, persistent bool) error

	// 确保队列存在
	EnsureQueue(queueName string, durable bool) error

	// 启动消费者
	StartConsumer(queueName string, prefetchCount int, handler func([]byte) bool) (chan struct{}, error)

	// 校验连接与目标队列，不消费消息
	HealthCheck(ctx context.Context) error

	// 关闭连接
	Close() error
}

// 确保RabbitMQ实现了MessageQueue接口
var _ MessageQueue = (*RabbitMQ)(nil)

// RabbitMQ 提供消息队列功能
type RabbitMQ struct {
	conn         *amqp.Connection
	channelPool  sync.Pool
	queueMap     map[string]bool // 记录已声明的queue
	queueMutex   sync.Mutex      // 保护queueMap
	publishMutex sync.Mutex      // 保护发布操作
	cfg          *config.RabbitMQConfig
}

// NewRabbitMQ 创建RabbitMQ客户端。
// 连不上broker直接返回错误，由调用方决定是否终止进程。
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}

	amqpURL := cfg.AMQPURL()
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}

	mq := &RabbitMQ{
		conn:     conn,
		queueMap: make(map[string]bool),
		cfg:      cfg,
	}

	mq.channelPool = sync.Pool{
		New: func() interface{} {
			ch, errPool := conn.Channel()
			if errPool != nil {
				log.Printf("创建RabbitMQ通道失败: %v", errPool)
				return nil
			}
			return ch
		},
	}

	// 测试连接和通道
	testCh := mq.getChannel()
	if testCh == nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道")
	}
	mq.putChannel(testCh)

	log.Printf("成功连接到RabbitMQ服务器")
	return mq, nil
}

// 获取可用通道
func (r *RabbitMQ) getChannel() *amqp.Channel {
	ch := r.channelPool.Get()
	if ch == nil {
		newCh, err := r.conn.Channel()
		if err != nil {
			log.Printf("创建新RabbitMQ通道失败: %v", err)
			return nil
		}
		return newCh
	}
	return ch.(*amqp.Channel)
}

// 归还通道到池
func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil {
		r.channelPool.Put(ch)
	}
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// EnsureQueue 确保队列存在
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	if queueName == "" {
		return fmt.Errorf("队列名称不能为空")
	}

	r.queueMutex.Lock()
	_, exists := r.queueMap[queueName]
	r.queueMutex.Unlock()
	if exists {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	_, err := ch.QueueDeclare(
		queueName, // 队列名称
		durable,   // 持久化
		false,     // 自动删除
		false,     // 独占
		false,     // 非阻塞
		nil,       // 参数
	)
	if err != nil {
		return fmt.Errorf("声明队列失败: %w", err)
	}

	r.queueMutex.Lock()
	r.queueMap[queueName] = true
	r.queueMutex.Unlock()
	log.Printf("已确保队列存在: %s", queueName)
	return nil
}

// PublishMessage 发布消息到指定队列。
// 发布失败同步返回错误，绝不静默丢弃。
func (r *RabbitMQ) PublishMessage(ctx context.Context, queueName string, message []byte, persistent bool) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	var deliveryMode uint8 = 1 // 非持久化
	if persistent {
		deliveryMode = 2 // 持久化，broker重启后消息保留
	}

	return ch.PublishWithContext(
		ctx,
		"",        // 默认交换机
		queueName, // 路由键即队列名
		false,     // 强制
		false,     // 立即
		amqp.Publishing{
			DeliveryMode: deliveryMode,
			ContentType:  "application/json",
			Body:         message,
			Timestamp:    time.Now(),
		},
	)
}

// PublishJSON 发布JSON格式的消息
func (r *RabbitMQ) PublishJSON(ctx context.Context, queueName string, data interface{}, persistent bool) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}

	return r.PublishMessage(ctx, queueName, jsonData, persistent)
}

// HealthCheck 校验broker连接并被动声明目标队列，不消费任何消息
func (r *RabbitMQ) HealthCheck(ctx context.Context) error {
	if r.conn == nil || r.conn.IsClosed() {
		return fmt.Errorf("RabbitMQ连接已关闭")
	}

	// 被动声明失败会关闭通道，所以不从池里取，也不归还
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("无法创建RabbitMQ通道: %w", err)
	}
	defer ch.Close()

	if r.cfg.Queue != "" {
		if _, err := ch.QueueDeclarePassive(r.cfg.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("队列 '%s' 不存在或参数不匹配: %w", r.cfg.Queue, err)
		}
	}
	return nil
}

// StartConsumer 启动消费者处理函数。
// handler返回true则确认消息；返回false时本层只做Nack且不重新入队，
// 终态失败的处理责任在上层处理服务（记录FAILED后仍应返回true）。
func (r *RabbitMQ) StartConsumer(queueName string, prefetchCount int, handler func([]byte) bool) (chan struct{}, error) {
	stopCh := make(chan struct{})

	ch := r.getChannel()
	if ch == nil {
		return nil, fmt.Errorf("无法获取RabbitMQ通道")
	}

	// 设置QoS，prefetch=1时一次只投递一条，处理完才取下一条
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("设置QoS失败: %w", err)
	}

	deliveries, err := ch.Consume(
		queueName, // 队列
		"",        // 消费者标签，留空由server生成唯一标签
		false,     // 自动确认
		false,     // 独占
		false,     // 非本地
		false,     // 非阻塞
		nil,       // 参数
	)
	if err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("注册消费者失败: %w", err)
	}

	go func() {
		defer r.putChannel(ch)
		defer log.Printf("RabbitMQ消费者已停止: %s", queueName)

		log.Printf("RabbitMQ消费者已启动，队列: %s, 预取数量: %d", queueName, prefetchCount)

		for {
			select {
			case <-stopCh:
				return
			case delivery, ok := <-deliveries:
				if !ok {
					log.Println("RabbitMQ通道已关闭")
					return
				}

				if handler(delivery.Body) {
					if err := delivery.Ack(false); err != nil {
						log.Printf("确认消息失败: %v", err)
					}
				} else {
					// 不由本层重新入队，是否重投由处理服务决定
					if err := delivery.Nack(false, false); err != nil {
						log.Printf("拒绝消息失败: %v", err)
					}
				}
			}
		}
	}()

	return stopCh, nil
}
