// Package criterion 把面试问题解析为面试轮次配置的评估维度之一。
package criterion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hiregenai/internal/constants"
	"hiregenai/internal/tracing"
	"hiregenai/internal/types"
)

// 解析策略
const (
	StrategyLLM            = "llm"
	StrategyKeyword        = "keyword"
	StrategyKeywordThenLLM = "keyword_then_llm"
)

// 结果来源
const (
	SourceSupplied = "supplied"
	SourceFallback = "fallback"
	SourceGeneral  = "general"
)

// FallbackPolicy 所有分类器都失败时的确定性默认值，catalog 非空
type FallbackPolicy interface {
	Fallback(catalog []string) string
}

// FirstEntry 返回目录的第一项
type FirstEntry struct{}

func (FirstEntry) Fallback(catalog []string) string { return catalog[0] }

// Match 按不区分大小写的完全相等、再按双向子串匹配，把 label 对应到目录条目
func Match(label string, catalog []string) (string, bool) {
	l := strings.ToLower(cleanLabel(label))
	if l == "" {
		return "", false
	}
	for _, c := range catalog {
		if strings.ToLower(c) == l {
			return c, true
		}
	}
	for _, c := range catalog {
		lc := strings.ToLower(c)
		if lc != "" && (strings.Contains(l, lc) || strings.Contains(lc, l)) {
			return c, true
		}
	}
	return "", false
}

// cleanLabel 去掉模型回复里常见的引号、强调符号和句号
func cleanLabel(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "Criterion:")
	return strings.TrimSpace(strings.Trim(s, " \t\"'`*.“”"))
}

// NormalizeCatalog 去空白、去重（不区分大小写），保持原顺序
func NormalizeCatalog(catalog []string) []string {
	out := make([]string, 0, len(catalog))
	seen := make(map[string]bool, len(catalog))
	for _, c := range catalog {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// Resolver 两级策略：主分类器（关键词和/或模型）+ 确定性回退
type Resolver struct {
	strategy    string
	rules       []Rule
	fallback    FallbackPolicy
	temperature float32
	maxTokens   int
	timeout     time.Duration
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// Option 定义配置选项函数
type Option func(*Resolver)

// WithStrategy llm | keyword | keyword_then_llm
func WithStrategy(strategy string) Option {
	return func(r *Resolver) {
		if strategy != "" {
			r.strategy = strategy
		}
	}
}

// WithRules 替换关键词规则
func WithRules(rules []Rule) Option {
	return func(r *Resolver) {
		if len(rules) > 0 {
			r.rules = rules
		}
	}
}

// WithFallback 替换回退策略
func WithFallback(policy FallbackPolicy) Option {
	return func(r *Resolver) {
		if policy != nil {
			r.fallback = policy
		}
	}
}

// WithGeneration 分类调用的温度、token 上限和超时
func WithGeneration(temperature float32, maxTokens int, timeout time.Duration) Option {
	return func(r *Resolver) {
		r.temperature = temperature
		r.maxTokens = maxTokens
		r.timeout = timeout
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver 默认 llm 策略、回退到目录第一项
func NewResolver(opts ...Option) (*Resolver, error) {
	r := &Resolver{
		strategy:  StrategyLLM,
		rules:     DefaultRules,
		fallback:  FirstEntry{},
		maxTokens: 20,
		timeout:   15 * time.Second,
		logger:    zerolog.Nop(),
		tracer:    tracing.Tracer("criterion"),
	}
	for _, opt := range opts {
		opt(r)
	}
	switch r.strategy {
	case StrategyLLM, StrategyKeyword, StrategyKeywordThenLLM:
	default:
		return nil, fmt.Errorf("unknown criterion strategy %q", r.strategy)
	}
	return r, nil
}

// Strategy 当前策略
func (r *Resolver) Strategy() string {
	return r.strategy
}

// NeedsModel 当前策略是否会调用模型
func (r *Resolver) NeedsModel() bool {
	return r.strategy != StrategyKeyword
}

func (r *Resolver) classifiers(m model.ToolCallingChatModel) []Classifier {
	var out []Classifier
	if r.strategy == StrategyKeyword || r.strategy == StrategyKeywordThenLLM {
		out = append(out, NewKeywordClassifier(r.rules))
	}
	if r.strategy != StrategyKeyword && m != nil {
		out = append(out, NewLLMClassifier(m, r.rules, r.temperature, r.maxTokens, r.timeout))
	}
	return out
}

// Resolve 不返回错误：ResolvedLabel 要么是 supplied，要么属于 catalog，目录为空时为 "General"。
// m 可以为 nil，此时跳过模型分类。
func (r *Resolver) Resolve(ctx context.Context, m model.ToolCallingChatModel, supplied, question string, catalog []string) types.CriterionAssignment {
	ctx, span := r.tracer.Start(ctx, "criterion.Resolve")
	defer span.End()

	out := types.CriterionAssignment{Question: question}
	defer func() {
		span.SetAttributes(
			attribute.String("criterion.label", out.ResolvedLabel),
			attribute.String("criterion.source", out.Source),
		)
	}()

	if s := strings.TrimSpace(supplied); s != "" && !strings.EqualFold(s, constants.GeneralCriterion) {
		out.ResolvedLabel, out.Source = supplied, SourceSupplied
		return out
	}

	catalog = NormalizeCatalog(catalog)
	if len(catalog) == 0 {
		out.ResolvedLabel, out.Source = constants.GeneralCriterion, SourceGeneral
		return out
	}

	for _, c := range r.classifiers(m) {
		label, err := safeClassify(ctx, c, question, catalog)
		if err != nil {
			r.logger.Warn().Err(err).Str("classifier", c.Name()).Msg("问题维度分类失败")
			tracing.RecordError(span, err, tracing.ErrorTypeLLM)
			continue
		}
		// 分类器的结果再校验一次，保证落在目录内
		if canonical, ok := Match(label, catalog); ok {
			out.ResolvedLabel, out.Source = canonical, c.Name()
			return out
		}
	}

	out.ResolvedLabel, out.Source = r.fallback.Fallback(catalog), SourceFallback
	if _, ok := Match(out.ResolvedLabel, catalog); !ok {
		out.ResolvedLabel = catalog[0]
	}
	r.logger.Debug().Str("label", out.ResolvedLabel).Msg("使用回退维度")
	return out
}

func safeClassify(ctx context.Context, c Classifier, question string, catalog []string) (label string, err error) {
	defer func() {
		if p := recover(); p != nil {
			label, err = "", fmt.Errorf("%s classifier panic: %v", c.Name(), p)
		}
	}()
	return c.Classify(ctx, question, catalog)
}
