package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// RateLimitedLLMModel 对LLM模型的调用进行限流的代理
type RateLimitedLLMModel struct {
	original    model.ToolCallingChatModel
	rateLimiter *TokenBucket
}

var _ model.ToolCallingChatModel = (*RateLimitedLLMModel)(nil)

// NewRateLimitedLLMModel 创建一个新的限流LLM模型代理
func NewRateLimitedLLMModel(original model.ToolCallingChatModel, qpm int) *RateLimitedLLMModel {
	return &RateLimitedLLMModel{
		original:    original,
		rateLimiter: NewTokenBucket(qpm, qpm/2), // 容量设为QPM的一半，允许一定的突发流量
	}
}

// newWithBucket 与其他代理共享同一个令牌桶
func newWithBucket(original model.ToolCallingChatModel, bucket *TokenBucket) *RateLimitedLLMModel {
	return &RateLimitedLLMModel{original: original, rateLimiter: bucket}
}

// WithRetryPolicy 设置重试策略
func (rl *RateLimitedLLMModel) WithRetryPolicy(waitTime time.Duration, maxRetries int) *RateLimitedLLMModel {
	rl.rateLimiter.WithRetryPolicy(waitTime, maxRetries)
	return rl
}

// Generate 代理Generate方法，增加限流和重试逻辑
func (rl *RateLimitedLLMModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	var response *schema.Message
	err := rl.rateLimiter.RetryWithBackoff(ctx, func() error {
		var genErr error
		response, genErr = rl.original.Generate(ctx, messages, options...)
		return genErr
	})
	return response, err
}

// Stream 代理Stream方法，增加限流和重试逻辑
func (rl *RateLimitedLLMModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	var stream *schema.StreamReader[*schema.Message]
	err := rl.rateLimiter.RetryWithBackoff(ctx, func() error {
		var streamErr error
		stream, streamErr = rl.original.Stream(ctx, messages, options...)
		return streamErr
	})
	return stream, err
}

// WithTools 代理WithTools方法，保留原有的限流设置
func (rl *RateLimitedLLMModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	newModel, err := rl.original.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return newWithBucket(newModel, rl.rateLimiter), nil
}

// Registry 按模型名共享令牌桶。
// 每个请求都会用租户自己的密钥构造模型实例，但同一模型的配额在进程内共用。
type Registry struct {
	mu            sync.Mutex
	buckets       map[string]*TokenBucket
	qpmFor        func(modelName string) int
	retryWaitTime time.Duration
	maxRetries    int
}

// NewRegistry qpmFor 返回模型的每分钟请求数
func NewRegistry(qpmFor func(modelName string) int, retryWaitTime time.Duration, maxRetries int) *Registry {
	return &Registry{
		buckets:       make(map[string]*TokenBucket),
		qpmFor:        qpmFor,
		retryWaitTime: retryWaitTime,
		maxRetries:    maxRetries,
	}
}

// Wrap 为 original 套上 modelName 对应的共享限流器
func (r *Registry) Wrap(original model.ToolCallingChatModel, modelName string) model.ToolCallingChatModel {
	return newWithBucket(original, r.bucket(modelName))
}

func (r *Registry) bucket(modelName string) *TokenBucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buckets[modelName]; ok {
		return b
	}
	qpm := 0
	if r.qpmFor != nil {
		qpm = r.qpmFor(modelName)
	}
	if qpm <= 0 {
		qpm = 30 // 默认QPM
	}
	b := NewTokenBucket(qpm, qpm/2).WithRetryPolicy(r.retryWaitTime, r.maxRetries)
	r.buckets[modelName] = b
	return b
}
