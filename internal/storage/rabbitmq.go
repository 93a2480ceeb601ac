package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"hiregenai/internal/config"
)

// RabbitMQ 评估事件的发布和消费
type RabbitMQ struct {
	conn        *amqp.Connection
	channelPool sync.Pool
	publishMu   sync.Mutex

	declareMu sync.Mutex
	declared  map[string]bool // "exchange:x" / "queue:q" / "bind:x:q:key"

	cfg    *config.RabbitMQConfig
	logger zerolog.Logger
}

// NewRabbitMQ 连接并验证可以创建通道
func NewRabbitMQ(cfg *config.RabbitMQConfig, log zerolog.Logger) (*RabbitMQ, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器: %w", err)
	}

	mq := &RabbitMQ{
		conn:     conn,
		declared: make(map[string]bool),
		cfg:      cfg,
		logger:   log,
	}
	mq.channelPool.New = func() interface{} {
		ch, err := conn.Channel()
		if err != nil {
			mq.logger.Error().Err(err).Msg("创建RabbitMQ通道失败")
			return nil
		}
		return ch
	}

	if err := mq.withChannel(func(*amqp.Channel) error { return nil }); err != nil {
		conn.Close()
		return nil, err
	}
	mq.logger.Info().Msg("成功连接到RabbitMQ服务器")
	return mq, nil
}

// withChannel 从池中借出一个通道，用完归还；已关闭的通道直接丢弃
func (r *RabbitMQ) withChannel(fn func(ch *amqp.Channel) error) error {
	ch, _ := r.channelPool.Get().(*amqp.Channel)
	if ch == nil || ch.IsClosed() {
		var err error
		if ch, err = r.conn.Channel(); err != nil {
			return fmt.Errorf("无法获取RabbitMQ通道: %w", err)
		}
	}
	err := fn(ch)
	if !ch.IsClosed() {
		r.channelPool.Put(ch)
	}
	return err
}

// declareOnce 同一个 key 在连接生命周期内只声明一次
func (r *RabbitMQ) declareOnce(key string, fn func(ch *amqp.Channel) error) error {
	r.declareMu.Lock()
	defer r.declareMu.Unlock()
	if r.declared[key] {
		return nil
	}
	if err := r.withChannel(fn); err != nil {
		return err
	}
	r.declared[key] = true
	r.logger.Debug().Str("declared", key).Msg("RabbitMQ拓扑已声明")
	return nil
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// SetupEvaluationTopology 声明评估事件交换机，以及简历解析事件的消费队列
func (r *RabbitMQ) SetupEvaluationTopology() error {
	if err := r.EnsureExchange(r.cfg.EvaluationExchange, amqp.ExchangeTopic, true); err != nil {
		return err
	}
	if r.cfg.ResumeParsedQueue == "" {
		return nil
	}
	if err := r.EnsureQueue(r.cfg.ResumeParsedQueue, true); err != nil {
		return err
	}
	return r.BindQueue(r.cfg.ResumeParsedQueue, r.cfg.EvaluationExchange, r.cfg.ResumeParsedKey)
}

// EnsureExchange 确保exchange存在，不允许声明默认交换机
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	switch exchangeName {
	case "":
		return fmt.Errorf("exchange名称不能为空")
	case "amq.default", "default":
		return fmt.Errorf("不能声明默认交换机 '%s'", exchangeName)
	}
	return r.declareOnce("exchange:"+exchangeName, func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(exchangeName, exchangeType, durable, false, false, false, nil); err != nil {
			return fmt.Errorf("声明exchange失败: %w", err)
		}
		return nil
	})
}

// EnsureQueue 确保队列存在
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	return r.declareOnce("queue:"+queueName, func(ch *amqp.Channel) error {
		if _, err := ch.QueueDeclare(queueName, durable, false, false, false, nil); err != nil {
			return fmt.Errorf("声明队列失败: %w", err)
		}
		return nil
	})
}

// BindQueue 绑定队列到exchange
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	key := fmt.Sprintf("bind:%s:%s:%s", exchangeName, queueName, routingKey)
	return r.declareOnce(key, func(ch *amqp.Channel) error {
		if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
			return fmt.Errorf("绑定队列到exchange失败: %w", err)
		}
		return nil
	})
}

// PublishMessage 发布 JSON 消息，当前链路上下文写入消息头
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	r.publishMu.Lock()
	defer r.publishMu.Unlock()

	msg := amqp.Publishing{
		DeliveryMode: amqp.Transient,
		ContentType:  "application/json",
		Body:         message,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{},
	}
	if persistent {
		msg.DeliveryMode = amqp.Persistent
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Headers))

	return r.withChannel(func(ch *amqp.Channel) error {
		return ch.PublishWithContext(ctx, exchangeName, routingKey, false, false, msg)
	})
}

// StartConsumer 在独立通道上消费 queueName，ctx 取消后停止。
// handler 返回 true 时确认消息，返回 false 时拒绝并重新入队。
func (r *RabbitMQ) StartConsumer(ctx context.Context, queueName string, prefetchCount int, handler func(context.Context, []byte) bool) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("无法获取RabbitMQ通道: %w", err)
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("设置QoS失败: %w", err)
	}
	// 消费者标签留空由 server 生成，手动确认
	deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("注册消费者失败: %w", err)
	}

	log := r.logger.With().Str("queue", queueName).Logger()
	go func() {
		defer ch.Close()
		log.Info().Int("prefetch", prefetchCount).Msg("RabbitMQ消费者已启动")
		defer log.Info().Msg("RabbitMQ消费者已停止")

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Warn().Msg("RabbitMQ通道已关闭")
					return
				}
				msgCtx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier(d.Headers))
				if handler(msgCtx, d.Body) {
					if err := d.Ack(false); err != nil {
						log.Error().Err(err).Msg("确认消息失败")
					}
				} else if err := d.Nack(false, true); err != nil {
					log.Error().Err(err).Msg("拒绝消息失败")
				}
			}
		}
	}()
	return nil
}

// headerCarrier 让 otel propagator 读写 AMQP 消息头
type headerCarrier amqp.Table

var _ propagation.TextMapCarrier = headerCarrier(nil)

func (c headerCarrier) Get(key string) string {
	v, _ := c[key].(string)
	return v
}

func (c headerCarrier) Set(key, value string) {
	c[key] = value
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
