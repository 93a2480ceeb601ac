package tracing

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"hiregenai/internal/apperrors"
)

// ErrorType span 上 error.type 属性的取值
type ErrorType string

const (
	ErrorTypeDB          ErrorType = "db"
	ErrorTypeRedis       ErrorType = "redis"
	ErrorTypeObjectStore ErrorType = "object_store"
	ErrorTypeLLM         ErrorType = "llm"
	ErrorTypeParse       ErrorType = "parse"
	ErrorTypeCredential  ErrorType = "credential"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeInternal    ErrorType = "internal"
)

// ErrorTypeOf 按 apperrors 的错误种类归类，无法识别时为 internal
func ErrorTypeOf(err error) ErrorType {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return ErrorTypeValidation
	case errors.Is(err, apperrors.ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, apperrors.ErrCredential):
		return ErrorTypeCredential
	case errors.Is(err, apperrors.ErrUpstream):
		return ErrorTypeLLM
	case errors.Is(err, apperrors.ErrParse):
		return ErrorTypeParse
	case errors.Is(err, apperrors.ErrConflict):
		return ErrorTypeConflict
	}
	return ErrorTypeInternal
}

// RecordError 记录错误并标记 span 失败
func RecordError(span trace.Span, err error, errorType ErrorType) {
	if span == nil || err == nil {
		return
	}
	msg := TruncateString(err.Error(), DefaultMaxLength)
	span.RecordError(err)
	span.SetAttributes(
		attribute.String("error.type", string(errorType)),
		attribute.String("error.message", msg),
	)
	span.SetStatus(codes.Error, msg)
}

// RecordHTTPError 接口返回错误响应时调用；4xx 只记录属性，5xx 才把 span 标记为失败
func RecordHTTPError(span trace.Span, err error, statusCode int) {
	if span == nil || err == nil {
		return
	}
	category := "client_error"
	if statusCode >= 500 {
		category = "server_error"
	}
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.String("error.category", category),
		attribute.String("error.code", apperrors.Code(err)),
	)
	if statusCode >= 500 {
		RecordError(span, err, ErrorTypeOf(err))
		return
	}
	span.SetAttributes(
		attribute.String("error.type", string(ErrorTypeOf(err))),
		attribute.String("error.message", TruncateString(apperrors.Message(err), DefaultMaxLength)),
	)
}

// RecordRabbitMQNack 消费失败时调用；requeue 为 false 表示消息已确认丢弃，不再投递
func RecordRabbitMQNack(span trace.Span, err error, requeue bool) {
	if span == nil || err == nil {
		return
	}
	RecordError(span, err, ErrorTypeOf(err))
	outcome := "dropped"
	if requeue {
		outcome = "nack"
	}
	span.SetAttributes(
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.outcome", outcome),
		attribute.Bool("messaging.rabbitmq.requeue", requeue),
	)
}
