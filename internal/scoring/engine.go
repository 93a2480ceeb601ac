// Package scoring 实现"先定内容、后打分"的两阶段评估。
//
// 第一阶段只分析回答或简历本身，产出优点和不足；第二阶段在这些结论固定之后
// 才给出分数，分数阶段的输出不会回写第一阶段的结论。
package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/llm"
	"hiregenai/internal/tracing"
)

// 评分模式
const (
	ModeTwoPass    = "two_pass"
	ModeSinglePass = "single_pass"
)

// Schema 描述一种评估：内容阶段的结果类型 C 和分数阶段的结果类型 S
type Schema[C, S any] struct {
	Name      string // 错误和日志中的操作名
	MaxTokens int    // 0 表示使用引擎默认值

	ContentPrompt func() []*schema.Message
	ScorePrompt   func(content C) []*schema.Message
	SinglePrompt  func() []*schema.Message

	// Validate 可选，在解码前校验 JSON 对象，phase 为 content | score | single
	Validate      func(phase, obj string) error
	DecodeContent func(obj gjson.Result) C
	DecodeScore   func(obj gjson.Result, content C) S
}

// Engine 调用模型并按模式组织两个阶段
type Engine struct {
	mode        string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// Option 定义配置选项函数
type Option func(*Engine)

// WithMode two_pass | single_pass
func WithMode(mode string) Option {
	return func(e *Engine) {
		if mode != "" {
			e.mode = strings.ToLower(mode)
		}
	}
}

// WithGeneration 评分调用的温度和 token 上限
func WithGeneration(temperature float32, maxTokens int) Option {
	return func(e *Engine) {
		e.temperature = temperature
		if maxTokens > 0 {
			e.maxTokens = maxTokens
		}
	}
}

// WithTimeout 单次模型调用超时
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine 默认 two_pass、温度 0.2、每阶段 1000 token、60 秒超时
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		mode:        ModeTwoPass,
		temperature: 0.2,
		maxTokens:   1000,
		timeout:     60 * time.Second,
		logger:      zerolog.Nop(),
		tracer:      tracing.Tracer("scoring"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.mode != ModeTwoPass && e.mode != ModeSinglePass {
		return nil, fmt.Errorf("unknown scoring mode %q", e.mode)
	}
	return e, nil
}

// Mode 当前模式
func (e *Engine) Mode() string {
	return e.mode
}

// Source 写入评估结果的来源标记
func (e *Engine) Source() string {
	return "llm:" + e.mode
}

// Run 执行一次评估。two_pass 下分数阶段拿到的是已经解码的内容结果；
// single_pass 下同一个对象先解码内容再解码分数。
func Run[C, S any](ctx context.Context, e *Engine, m model.ToolCallingChatModel, s Schema[C, S]) (C, S, error) {
	var (
		content C
		score   S
	)
	if m == nil {
		return content, score, apperrors.NewInternalError(s.Name, errors.New("no chat model configured"))
	}

	if e.mode == ModeSinglePass {
		obj, err := e.call(ctx, "scoring.single", m, s.Name, s.MaxTokens, s.Validate, s.SinglePrompt())
		if err != nil {
			return content, score, err
		}
		parsed := gjson.Parse(obj)
		content = s.DecodeContent(parsed)
		score = s.DecodeScore(parsed, content)
		return content, score, nil
	}

	obj, err := e.call(ctx, "scoring.content", m, s.Name, s.MaxTokens, s.Validate, s.ContentPrompt())
	if err != nil {
		return content, score, err
	}
	content = s.DecodeContent(gjson.Parse(obj))

	obj, err = e.call(ctx, "scoring.score", m, s.Name, s.MaxTokens, s.Validate, s.ScorePrompt(content))
	if err != nil {
		return content, score, err
	}
	score = s.DecodeScore(gjson.Parse(obj), content)
	return content, score, nil
}

// call 一次模型调用，返回校验过的 JSON 对象文本
func (e *Engine) call(ctx context.Context, phase string, m model.ToolCallingChatModel, op string, maxTokens int, validate func(phase, obj string) error, messages []*schema.Message) (string, error) {
	ctx, span := e.tracer.Start(ctx, phase)
	defer span.End()
	span.SetAttributes(
		attribute.String("scoring.op", op),
		attribute.String("scoring.mode", e.mode),
	)

	if maxTokens <= 0 {
		maxTokens = e.maxTokens
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := m.Generate(callCtx, messages,
		model.WithTemperature(e.temperature),
		model.WithMaxTokens(maxTokens),
		llm.WithJSONMode(),
	)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		e.logger.Error().Err(err).Str("op", op).Str("phase", phase).Msg("评分模型调用失败")
		var ee *apperrors.EvalError
		if errors.As(err, &ee) {
			return "", err
		}
		return "", apperrors.NewUpstreamUnavailableError(op, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		err := apperrors.NewParseError(op, "model returned an empty response")
		tracing.RecordError(span, err, tracing.ErrorTypeParse)
		return "", err
	}
	e.logger.Debug().
		Str("op", op).
		Str("phase", phase).
		Dur("elapsed", time.Since(start)).
		Str("response", tracing.SafePrompt(resp.Content)).
		Msg("评分模型返回")

	obj, err := parseObject(op, resp.Content)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeParse)
		return "", err
	}
	if validate != nil {
		if err := validate(strings.TrimPrefix(phase, "scoring."), obj); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeParse)
			return "", err
		}
	}
	return obj, nil
}
