package tracing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"hiregenai/internal/apperrors"
)

func recordSpan(t *testing.T, fn func(ctx context.Context)) sdktrace.ReadOnlySpan {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	fn(ctx)
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	return ended[0]
}

func spanOf(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(span.Attributes()))
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestRecordHTTPError(t *testing.T) {
	t.Run("4xx不标记失败", func(t *testing.T) {
		err := apperrors.NewValidationError("op", "questionNumber must be positive")
		span := recordSpan(t, func(ctx context.Context) {
			RecordHTTPError(spanOf(ctx), err, http.StatusBadRequest)
		})
		a := attrs(span)
		assert.NotEqual(t, codes.Error, span.Status().Code)
		assert.Equal(t, int64(400), a["http.status_code"].AsInt64())
		assert.Equal(t, "client_error", a["error.category"].AsString())
		assert.Equal(t, "validation_error", a["error.code"].AsString())
		assert.Equal(t, string(ErrorTypeValidation), a["error.type"].AsString())
		assert.Equal(t, "questionNumber must be positive", a["error.message"].AsString())
		assert.Empty(t, span.Events())
	})

	t.Run("5xx标记失败", func(t *testing.T) {
		err := apperrors.NewInternalError("op", errors.New("db down"))
		span := recordSpan(t, func(ctx context.Context) {
			RecordHTTPError(spanOf(ctx), err, http.StatusInternalServerError)
		})
		a := attrs(span)
		assert.Equal(t, codes.Error, span.Status().Code)
		assert.Equal(t, "server_error", a["error.category"].AsString())
		assert.Equal(t, string(ErrorTypeInternal), a["error.type"].AsString())
		assert.NotEmpty(t, span.Events())
	})

	t.Run("nil错误不记录", func(t *testing.T) {
		span := recordSpan(t, func(ctx context.Context) {
			RecordHTTPError(spanOf(ctx), nil, http.StatusBadRequest)
		})
		assert.Empty(t, span.Attributes())
	})
}

func TestRecordRabbitMQNack(t *testing.T) {
	tests := []struct {
		name    string
		requeue bool
		outcome string
	}{
		{"重新入队", true, "nack"},
		{"确认丢弃", false, "dropped"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := apperrors.NewUpstreamError("op", 401, "bad key")
			span := recordSpan(t, func(ctx context.Context) {
				RecordRabbitMQNack(spanOf(ctx), err, tt.requeue)
			})
			a := attrs(span)
			assert.Equal(t, codes.Error, span.Status().Code)
			assert.Equal(t, "rabbitmq", a["messaging.system"].AsString())
			assert.Equal(t, tt.outcome, a["messaging.outcome"].AsString())
			assert.Equal(t, tt.requeue, a["messaging.rabbitmq.requeue"].AsBool())
			assert.Equal(t, string(ErrorTypeLLM), a["error.type"].AsString())
		})
	}
}

func TestRecordErrorTruncatesMessage(t *testing.T) {
	err := errors.New(strings.Repeat("x", 1000))
	span := recordSpan(t, func(ctx context.Context) {
		RecordError(spanOf(ctx), err, ErrorTypeDB)
	})
	a := attrs(span)
	assert.Equal(t, "db", a["error.type"].AsString())
	assert.Len(t, []rune(a["error.message"].AsString()), DefaultMaxLength)
	assert.Len(t, []rune(span.Status().Description), DefaultMaxLength)
}

func TestErrorTypeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"校验", apperrors.NewValidationError("op", "x"), ErrorTypeValidation},
		{"不存在", apperrors.NewNotFoundError("op", "x"), ErrorTypeNotFound},
		{"凭证", apperrors.NewMissingCredentialError("op", "x"), ErrorTypeCredential},
		{"上游", apperrors.NewUpstreamError("op", 500, "x"), ErrorTypeLLM},
		{"解析", apperrors.NewParseError("op", "x"), ErrorTypeParse},
		{"冲突", apperrors.NewConflictError("op", "x"), ErrorTypeConflict},
		{"普通错误", errors.New("boom"), ErrorTypeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorTypeOf(tt.err))
		})
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abc...xyz", TruncateString("abcdefghijklmnopqrstuvwxyz", 9))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
	assert.Equal(t, "张三...八九", TruncateString("张三李四王五赵六钱七孙八九", 7))
}

func TestMaskPII(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"张", "*"},
		{"张三", "张*"},
		{"王小明", "王*明"},
		{"jane@acme.io", "ja********io"},
		{"+8613800138000", "+8**********00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskPII(tt.in), tt.in)
	}
}

func TestSafeResumeContent(t *testing.T) {
	assert.Equal(t, "Jane Doe Senior Go engineer", SafeResumeContent("Jane Doe\n\n  Senior   Go\tengineer\n"))

	long := strings.Repeat("resume line\n", 100)
	got := SafeResumeContent(long)
	assert.Len(t, []rune(got), MaxResumeLength)
	assert.NotContains(t, got, "\n")
}

func TestSafeRedisKey(t *testing.T) {
	assert.Equal(t, "hiregenai:lock:app-1", SafeRedisKey("hiregenai:lock:app-1"))
	assert.Len(t, SafeRedisKey(strings.Repeat("k", 500)), MaxRedisLength)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****cdef", MaskSecret("sk-abcdef"))
	assert.Equal(t, "***", MaskSecret("abc"))
}
