package criterion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrNoMatch 分类器没有给出目录内的维度
var ErrNoMatch = errors.New("no catalog criterion matched")

// Classifier 把问题归入目录中的一个维度。返回值必须是目录中的原始条目。
type Classifier interface {
	Name() string
	Classify(ctx context.Context, question string, catalog []string) (string, error)
}

// KeywordClassifier 只用规则表，不访问网络
type KeywordClassifier struct {
	rules []Rule
}

var _ Classifier = (*KeywordClassifier)(nil)

// NewKeywordClassifier rules 为空时使用 DefaultRules
func NewKeywordClassifier(rules []Rule) *KeywordClassifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &KeywordClassifier{rules: rules}
}

func (k *KeywordClassifier) Name() string { return "keyword" }

// Classify 命中关键词最多的规则胜出，同分按规则顺序
func (k *KeywordClassifier) Classify(_ context.Context, question string, catalog []string) (string, error) {
	q := strings.ToLower(question)
	best, bestHits := "", 0
	for _, r := range k.rules {
		label, ok := Match(r.Label, catalog)
		if !ok {
			continue
		}
		hits := 0
		for _, kw := range r.Keywords {
			if containsWordPrefix(q, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = label, hits
		}
	}
	if best == "" {
		return "", ErrNoMatch
	}
	return best, nil
}

// containsWordPrefix kw 出现在某个单词的开头
func containsWordPrefix(s, kw string) bool {
	for from := 0; from <= len(s); {
		i := strings.Index(s[from:], kw)
		if i < 0 {
			return false
		}
		i += from
		if i == 0 || !isWordByte(s[i-1]) {
			return true
		}
		from = i + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b >= 0x80
}

const classifySystemPrompt = `You classify interview questions into exactly one evaluation criterion.

Available criteria:
%s
Classification rules:
%s- otherwise choose the closest criterion from the list

Reply with the criterion name only, exactly as written in the list. No explanation.`

// LLMClassifier 调用模型分类，回复再经过 Match 校验
type LLMClassifier struct {
	model       model.ToolCallingChatModel
	rules       []Rule
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

var _ Classifier = (*LLMClassifier)(nil)

// NewLLMClassifier 温度 0、最多 20 个 token
func NewLLMClassifier(m model.ToolCallingChatModel, rules []Rule, temperature float32, maxTokens int, timeout time.Duration) *LLMClassifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	if maxTokens <= 0 {
		maxTokens = 20
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LLMClassifier{model: m, rules: rules, temperature: temperature, maxTokens: maxTokens, timeout: timeout}
}

func (l *LLMClassifier) Name() string { return "llm" }

func (l *LLMClassifier) Classify(ctx context.Context, question string, catalog []string) (string, error) {
	if l.model == nil {
		return "", errors.New("llm classifier has no model")
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var list strings.Builder
	for _, c := range catalog {
		list.WriteString("- " + c + "\n")
	}
	messages := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(classifySystemPrompt, list.String(), rulesPrompt(l.rules, catalog))),
		schema.UserMessage("Question: " + question),
	}
	resp, err := l.model.Generate(ctx, messages,
		model.WithTemperature(l.temperature),
		model.WithMaxTokens(l.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("classify question: %w", err)
	}
	if resp == nil {
		return "", errors.New("classify question: empty model response")
	}
	label, ok := Match(resp.Content, catalog)
	if !ok {
		return "", fmt.Errorf("%w: model replied %q", ErrNoMatch, resp.Content)
	}
	return label, nil
}
