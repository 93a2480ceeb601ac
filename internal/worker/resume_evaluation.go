// Package worker 消费简历解析完成事件，自动触发简历评估。
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/pipeline"
	"hiregenai/internal/storage"
	"hiregenai/internal/tracing"
	"hiregenai/internal/types"
)

// ResumeEvaluator pipeline.Service 实现了该接口
type ResumeEvaluator interface {
	EvaluateResume(ctx context.Context, in pipeline.EvaluateResumeInput) (types.ResumeEvaluation, error)
}

// Consumer storage.RabbitMQ 实现了该接口
type Consumer interface {
	StartConsumer(ctx context.Context, queueName string, prefetchCount int, handler func(context.Context, []byte) bool) error
}

// ResumeEvaluationConsumer 收到 resume.parsed 后评估简历
type ResumeEvaluationConsumer struct {
	evaluator  ResumeEvaluator
	queue      string
	workers    int
	prefetch   int
	retryDelay time.Duration
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// Option 定义配置选项函数
type Option func(*ResumeEvaluationConsumer)

// WithWorkers 并发消费者数量
func WithWorkers(n int) Option {
	return func(c *ResumeEvaluationConsumer) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithPrefetch 每个消费者的预取数量
func WithPrefetch(n int) Option {
	return func(c *ResumeEvaluationConsumer) {
		if n > 0 {
			c.prefetch = n
		}
	}
}

// WithRetryDelay 可重试错误重新入队前的等待时间
func WithRetryDelay(d time.Duration) Option {
	return func(c *ResumeEvaluationConsumer) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger zerolog.Logger) Option {
	return func(c *ResumeEvaluationConsumer) {
		c.logger = logger
	}
}

// NewResumeEvaluationConsumer 默认 1 个消费者、预取 1 条
func NewResumeEvaluationConsumer(evaluator ResumeEvaluator, queue string, opts ...Option) *ResumeEvaluationConsumer {
	c := &ResumeEvaluationConsumer{
		evaluator:  evaluator,
		queue:      queue,
		workers:    1,
		prefetch:   1,
		retryDelay: 2 * time.Second,
		logger:     zerolog.Nop(),
		tracer:     tracing.Tracer("worker"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start 注册 workers 个消费者，ctx 取消后全部停止
func (c *ResumeEvaluationConsumer) Start(ctx context.Context, consumer Consumer) error {
	for i := 0; i < c.workers; i++ {
		if err := consumer.StartConsumer(ctx, c.queue, c.prefetch, c.Handle); err != nil {
			return fmt.Errorf("启动简历评估消费者 %d 失败: %w", i, err)
		}
	}
	c.logger.Info().Str("queue", c.queue).Int("workers", c.workers).Msg("简历评估消费者已启动")
	return nil
}

// Handle 返回 false 表示消息需要重新入队，只有可重试错误才会这样
func (c *ResumeEvaluationConsumer) Handle(ctx context.Context, body []byte) bool {
	ctx, span := c.tracer.Start(ctx, "worker.HandleResumeParsed", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	var event storage.ResumeParsedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeParse)
		c.logger.Error().Err(err).Msg("无法解析resume.parsed消息，丢弃")
		return true
	}
	span.SetAttributes(
		attribute.String("application.id", event.ApplicationID),
		attribute.String("company.id", event.CompanyID),
	)
	log := c.logger.With().Str("application_id", event.ApplicationID).Str("company_id", event.CompanyID).Logger()

	if event.Empty || event.ApplicationID == "" {
		log.Debug().Bool("empty", event.Empty).Msg("简历没有可评估的文本，跳过")
		return true
	}

	ev, err := c.evaluator.EvaluateResume(ctx, pipeline.EvaluateResumeInput{
		CompanyID:     event.CompanyID,
		ApplicationID: event.ApplicationID,
	})
	if err != nil {
		// 上游 4xx（密钥失效、请求被拒）重试也不会成功，和其他不可重试错误一样确认丢弃
		retry := apperrors.Retryable(err)
		tracing.RecordRabbitMQNack(span, err, retry)
		if retry {
			log.Warn().Err(err).Msg("简历评估失败，稍后重试")
			c.wait(ctx)
			return false
		}
		log.Error().Err(err).Str("code", apperrors.Code(err)).Msg("简历评估失败，不再重试")
		return true
	}

	log.Info().Int("score_percent", ev.Overall.ScorePercent).Bool("qualified", ev.Overall.Qualified).Msg("自动简历评估完成")
	return true
}

func (c *ResumeEvaluationConsumer) wait(ctx context.Context) {
	if c.retryDelay <= 0 {
		return
	}
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
