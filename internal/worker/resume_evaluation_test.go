package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/pipeline"
	"hiregenai/internal/storage"
	"hiregenai/internal/types"
)

type fakeEvaluator struct {
	calls []pipeline.EvaluateResumeInput
	err   error
}

func (f *fakeEvaluator) EvaluateResume(_ context.Context, in pipeline.EvaluateResumeInput) (types.ResumeEvaluation, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return types.ResumeEvaluation{}, f.err
	}
	return types.ResumeEvaluation{Overall: types.ResumeOverall{ScorePercent: 80, Qualified: true}}, nil
}

type fakeConsumer struct {
	queues []string
	err    error
}

func (f *fakeConsumer) StartConsumer(_ context.Context, queue string, _ int, _ func(context.Context, []byte) bool) error {
	f.queues = append(f.queues, queue)
	return f.err
}

func eventBody(t *testing.T, e storage.ResumeParsedEvent) []byte {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return b
}

func TestHandle(t *testing.T) {
	tests := []struct {
		name      string
		body      func(t *testing.T) []byte
		evalErr   error
		wantAck   bool
		wantCalls int
	}{
		{
			name:      "评估成功",
			body:      func(t *testing.T) []byte { return eventBody(t, storage.ResumeParsedEvent{ApplicationID: "a1", CompanyID: "c1"}) },
			wantAck:   true,
			wantCalls: 1,
		},
		{
			name:    "空简历跳过",
			body:    func(t *testing.T) []byte { return eventBody(t, storage.ResumeParsedEvent{ApplicationID: "a1", CompanyID: "c1", Empty: true}) },
			wantAck: true,
		},
		{
			name:    "消息格式错误",
			body:    func(*testing.T) []byte { return []byte("not json") },
			wantAck: true,
		},
		{
			name:      "不可重试错误直接确认",
			body:      func(t *testing.T) []byte { return eventBody(t, storage.ResumeParsedEvent{ApplicationID: "a1", CompanyID: "c1"}) },
			evalErr:   apperrors.NewMissingCredentialError("test", "no LLM key configured"),
			wantAck:   true,
			wantCalls: 1,
		},
		{
			name:      "上游错误重新入队",
			body:      func(t *testing.T) []byte { return eventBody(t, storage.ResumeParsedEvent{ApplicationID: "a1", CompanyID: "c1"}) },
			evalErr:   apperrors.NewUpstreamError("test", 503, "overloaded"),
			wantAck:   false,
			wantCalls: 1,
		},
		{
			name:      "上游限流重新入队",
			body:      func(t *testing.T) []byte { return eventBody(t, storage.ResumeParsedEvent{ApplicationID: "a1", CompanyID: "c1"}) },
			evalErr:   apperrors.NewUpstreamError("test", 429, "rate limited"),
			wantAck:   false,
			wantCalls: 1,
		},
		{
			name:      "上游鉴权失败直接确认",
			body:      func(t *testing.T) []byte { return eventBody(t, storage.ResumeParsedEvent{ApplicationID: "a1", CompanyID: "c1"}) },
			evalErr:   apperrors.NewUpstreamError("test", 401, "invalid api key"),
			wantAck:   true,
			wantCalls: 1,
		},
		{
			name:      "上游拒绝请求直接确认",
			body:      func(t *testing.T) []byte { return eventBody(t, storage.ResumeParsedEvent{ApplicationID: "a1", CompanyID: "c1"}) },
			evalErr:   apperrors.NewUpstreamError("test", 400, "context length exceeded"),
			wantAck:   true,
			wantCalls: 1,
		},
		{
			name:      "评估进行中重新入队",
			body:      func(t *testing.T) []byte { return eventBody(t, storage.ResumeParsedEvent{ApplicationID: "a1", CompanyID: "c1"}) },
			evalErr:   apperrors.NewConflictError("test", ""),
			wantAck:   false,
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &fakeEvaluator{err: tt.evalErr}
			c := NewResumeEvaluationConsumer(ev, "q", WithRetryDelay(0))

			assert.Equal(t, tt.wantAck, c.Handle(context.Background(), tt.body(t)))
			require.Len(t, ev.calls, tt.wantCalls)
			if tt.wantCalls > 0 {
				assert.Equal(t, pipeline.EvaluateResumeInput{CompanyID: "c1", ApplicationID: "a1"}, ev.calls[0])
			}
		})
	}
}

// 密钥失效时每条消息只评估一次，不会反复重新入队
func TestHandleUnauthorizedUpstreamAcksEveryDelivery(t *testing.T) {
	ev := &fakeEvaluator{err: apperrors.NewUpstreamError("llm.generate", 401, `{"error":"invalid_api_key"}`)}
	c := NewResumeEvaluationConsumer(ev, "q", WithRetryDelay(0))
	body := eventBody(t, storage.ResumeParsedEvent{ApplicationID: "a1", CompanyID: "c1"})

	acks := 0
	for i := 0; i < 5; i++ {
		if c.Handle(context.Background(), body) {
			acks++
		}
	}
	assert.Equal(t, 5, acks)
	assert.Len(t, ev.calls, 5)
}

func TestStartRegistersWorkers(t *testing.T) {
	consumer := &fakeConsumer{}
	c := NewResumeEvaluationConsumer(&fakeEvaluator{}, "hiregenai.resume.parsed", WithWorkers(3), WithPrefetch(2))
	require.NoError(t, c.Start(context.Background(), consumer))
	assert.Equal(t, []string{"hiregenai.resume.parsed", "hiregenai.resume.parsed", "hiregenai.resume.parsed"}, consumer.queues)

	failing := &fakeConsumer{err: errors.New("channel closed")}
	assert.Error(t, c.Start(context.Background(), failing))
	assert.Len(t, failing.queues, 1)
}
