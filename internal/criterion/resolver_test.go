package criterion

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/llm"
)

var roundCatalog = []string{"Technical", "Team Player", "Culture Fit"}

func newResolver(t *testing.T, opts ...Option) *Resolver {
	t.Helper()
	r, err := NewResolver(opts...)
	require.NoError(t, err)
	return r
}

func TestMatch(t *testing.T) {
	tests := []struct {
		reply string
		want  string
		ok    bool
	}{
		{"Team Player", "Team Player", true},
		{"team player", "Team Player", true},
		{"  \"Culture Fit\".", "Culture Fit", true},
		{"**Technical**", "Technical", true},
		{"Criterion: Technical", "Technical", true},
		{"Team", "Team Player", true},
		{"Technical skills", "Technical", true},
		{"Leadership", "", false},
		{"", "", false},
		{"Culture Fit\nbecause the question is about values", "Culture Fit", true},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			got, ok := Match(tt.reply, roundCatalog)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeCatalog(t *testing.T) {
	assert.Equal(t, []string{"Technical", "team player"}, NormalizeCatalog([]string{" Technical ", "", "team player", "Team Player", "technical"}))
	assert.Empty(t, NormalizeCatalog(nil))
}

func TestResolveShortCircuit(t *testing.T) {
	mock := llm.NewMockChatClient("Culture Fit", nil)
	r := newResolver(t)

	got := r.Resolve(context.Background(), mock, "Leadership", "How do you handle team conflicts?", roundCatalog)
	assert.Equal(t, "Leadership", got.ResolvedLabel, "显式维度原样返回，即使不在目录中")
	assert.Equal(t, SourceSupplied, got.Source)
	assert.Equal(t, 0, mock.CallCount())

	got = r.Resolve(context.Background(), mock, "general", "Why us?", roundCatalog)
	assert.Equal(t, "Culture Fit", got.ResolvedLabel, "General 不算显式维度")
	assert.Equal(t, 1, mock.CallCount())
}

func TestResolveEmptyCatalog(t *testing.T) {
	mock := llm.NewMockChatClient("Technical", nil)
	got := newResolver(t).Resolve(context.Background(), mock, "", "Anything?", []string{" ", ""})
	assert.Equal(t, "General", got.ResolvedLabel)
	assert.Equal(t, SourceGeneral, got.Source)
	assert.Equal(t, 0, mock.CallCount())
}

func TestResolveTeamConflictWithLLM(t *testing.T) {
	mock := llm.NewMockChatClient("Team Player", nil)
	r := newResolver(t, WithGeneration(0, 20, 0))

	got := r.Resolve(context.Background(), mock, "", "How do you handle team conflicts?", roundCatalog)
	assert.Equal(t, "Team Player", got.ResolvedLabel)
	assert.Equal(t, "llm", got.Source)

	require.Equal(t, 1, mock.CallCount())
	msgs := mock.LastMessages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "- Team Player\n")
	assert.Contains(t, msgs[0].Content, "teamwork")
	assert.NotContains(t, msgs[0].Content, "Leadership", "只列出目录中存在的维度规则")
	assert.Contains(t, msgs[1].Content, "How do you handle team conflicts?")

	opts := mock.Options[0]
	require.NotNil(t, opts.Temperature)
	assert.Equal(t, float32(0), *opts.Temperature)
	require.NotNil(t, opts.MaxTokens)
	assert.Equal(t, 20, *opts.MaxTokens)
}

func TestResolveFallsBackToFirstEntry(t *testing.T) {
	tests := []struct {
		name string
		mock *llm.MockChatClient
	}{
		{"上游错误", llm.NewMockChatClient("", apperrors.NewUpstreamError("llm.generate", 503, "overloaded"))},
		{"网络错误", llm.NewMockChatClient("", errors.New("dial tcp: connection refused"))},
		{"目录外的维度", llm.NewMockChatClient("Leadership", nil)},
		{"空回复", llm.NewMockChatClient("", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newResolver(t).Resolve(context.Background(), tt.mock, "", "How do you handle team conflicts?", roundCatalog)
			assert.Equal(t, "Technical", got.ResolvedLabel)
			assert.Equal(t, SourceFallback, got.Source)
		})
	}

	// 没有模型时直接回退
	got := newResolver(t).Resolve(context.Background(), nil, "", "Tell me about yourself", roundCatalog)
	assert.Equal(t, "Technical", got.ResolvedLabel)
}

type lastEntry struct{}

func (lastEntry) Fallback(catalog []string) string { return catalog[len(catalog)-1] }

func TestResolveCustomFallback(t *testing.T) {
	r := newResolver(t, WithFallback(lastEntry{}))
	got := r.Resolve(context.Background(), llm.NewMockChatClient("nonsense", nil), "", "q", roundCatalog)
	assert.Equal(t, "Culture Fit", got.ResolvedLabel)
}

func TestKeywordStrategies(t *testing.T) {
	r := newResolver(t, WithStrategy(StrategyKeyword))
	assert.False(t, r.NeedsModel())

	mock := llm.NewMockChatClient("Culture Fit", nil)
	got := r.Resolve(context.Background(), mock, "", "How do you handle team conflicts?", roundCatalog)
	assert.Equal(t, "Team Player", got.ResolvedLabel)
	assert.Equal(t, StrategyKeyword, got.Source)
	assert.Equal(t, 0, mock.CallCount(), "keyword 策略不调用模型")

	got = r.Resolve(context.Background(), mock, "", "Which databases and frameworks have you used?", roundCatalog)
	assert.Equal(t, "Technical", got.ResolvedLabel)

	got = r.Resolve(context.Background(), mock, "", "Why do you want to join us and when are you available to start?", roundCatalog)
	assert.Equal(t, "Culture Fit", got.ResolvedLabel)

	got = r.Resolve(context.Background(), mock, "", "Tell me about yourself", roundCatalog)
	assert.Equal(t, SourceFallback, got.Source)

	chain := newResolver(t, WithStrategy(StrategyKeywordThenLLM))
	got = chain.Resolve(context.Background(), mock, "", "Tell me about yourself", roundCatalog)
	assert.Equal(t, "Culture Fit", got.ResolvedLabel, "关键词未命中时交给模型")
	assert.Equal(t, "llm", got.Source)
	assert.Equal(t, 1, mock.CallCount())

	got = chain.Resolve(context.Background(), mock, "", "How do you handle team conflicts?", roundCatalog)
	assert.Equal(t, "Team Player", got.ResolvedLabel)
	assert.Equal(t, 1, mock.CallCount(), "关键词命中时不调用模型")
}

func TestKeywordClassifierWordPrefix(t *testing.T) {
	k := NewKeywordClassifier(nil)
	_, err := k.Classify(context.Background(), "What is your capital city?", []string{"Technical"})
	assert.ErrorIs(t, err, ErrNoMatch, "api 不能匹配 capital")

	label, err := k.Classify(context.Background(), "Describe an API you designed", []string{"technical"})
	require.NoError(t, err)
	assert.Equal(t, "technical", label, "返回目录中的原始写法")
}

func TestUnknownStrategy(t *testing.T) {
	_, err := NewResolver(WithStrategy("magic"))
	assert.Error(t, err)
}

func TestResolveMembershipProperty(t *testing.T) {
	labels := []string{"Technical", "Team Player", "Culture Fit", "Communication", "Problem Solving", "Leadership", "Domain Knowledge"}
	replies := []string{"Technical", "leadership", "", "Nothing relevant", "Problem", "COMMUNICATION.", "Sales"}
	questions := []string{
		"How do you handle team conflicts?",
		"Explain a complex system to a non-technical stakeholder",
		"What motivates you?",
		"Describe a difficult bug you solved",
		"How do you mentor junior engineers?",
		"Tell me about yourself",
	}
	strategies := []string{StrategyLLM, StrategyKeyword, StrategyKeywordThenLLM}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		n := 1 + rng.Intn(len(labels))
		catalog := append([]string(nil), labels...)
		rng.Shuffle(len(catalog), func(a, b int) { catalog[a], catalog[b] = catalog[b], catalog[a] })
		catalog = catalog[:n]

		var mock *llm.MockChatClient
		if rng.Intn(4) == 0 {
			mock = llm.NewMockChatClient("", fmt.Errorf("status %d", 500))
		} else {
			mock = llm.NewMockChatClient(replies[rng.Intn(len(replies))], nil)
		}
		r := newResolver(t, WithStrategy(strategies[rng.Intn(len(strategies))]))
		q := questions[rng.Intn(len(questions))]

		got := r.Resolve(context.Background(), mock, "", q, catalog)
		assert.Contains(t, catalog, got.ResolvedLabel, "catalog=%v question=%q", catalog, q)
		assert.NotEqual(t, "", strings.TrimSpace(got.Source))
	}
}

type panickingModel struct {
	*llm.MockChatClient
}

func (panickingModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	panic("nil response body")
}

func TestResolveRecoversClassifierPanic(t *testing.T) {
	m := panickingModel{llm.NewMockChatClient("", nil)}
	got := newResolver(t).Resolve(context.Background(), m, "", "How do you handle team conflicts?", roundCatalog)
	assert.Equal(t, "Technical", got.ResolvedLabel)
	assert.Equal(t, SourceFallback, got.Source)
}
