package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// 错误种类
var (
	ErrValidation = errors.New("请求参数无效")
	ErrNotFound   = errors.New("资源不存在")
	ErrCredential = errors.New("模型访问凭据不可用")
	ErrUpstream   = errors.New("上游模型服务返回错误")
	ErrParse      = errors.New("模型输出无法解析")
	ErrConflict   = errors.New("资源正在被其他请求处理")
	ErrInternal   = errors.New("内部错误")
)

// EvalError 评估流程中的错误，带操作名和可读的详情
type EvalError struct {
	Op      string
	BaseErr error
	Detail  string
	Err     error // 原始错误，可为空
	Status  int   // 非零时覆盖默认的 HTTP 状态码
}

func (e *EvalError) Error() string {
	msg := fmt.Sprintf("%s (操作:%s)", e.BaseErr, e.Op)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EvalError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持按种类比较
func (e *EvalError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// UpstreamError LLM 服务返回非成功状态码
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// Is 让 errors.Is(err, ErrUpstream) 对裸的 UpstreamError 也成立
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// 错误构造函数

func NewValidationError(op, detail string) error {
	return &EvalError{Op: op, BaseErr: ErrValidation, Detail: detail}
}

func NewNotFoundError(op, detail string) error {
	return &EvalError{Op: op, BaseErr: ErrNotFound, Detail: detail}
}

// NewMissingCredentialError 租户没有配置模型密钥
func NewMissingCredentialError(op, detail string) error {
	return &EvalError{Op: op, BaseErr: ErrCredential, Detail: detail, Status: http.StatusBadRequest}
}

// NewUndecryptableCredentialError 密钥存在但无法解密
func NewUndecryptableCredentialError(op string, err error) error {
	return &EvalError{Op: op, BaseErr: ErrCredential, Detail: "stored LLM credential could not be decrypted", Err: err, Status: http.StatusInternalServerError}
}

func NewUpstreamError(op string, statusCode int, body string) error {
	return &EvalError{
		Op:      op,
		BaseErr: ErrUpstream,
		Detail:  fmt.Sprintf("status %d", statusCode),
		Err:     &UpstreamError{StatusCode: statusCode, Body: body},
	}
}

// NewUpstreamUnavailableError 请求没有拿到响应，例如超时或连接失败
func NewUpstreamUnavailableError(op string, err error) error {
	return &EvalError{Op: op, BaseErr: ErrUpstream, Detail: "LLM provider unreachable", Err: err}
}

// NewConflictError 同一申请的简历评估已在进行中
func NewConflictError(op, detail string) error {
	return &EvalError{Op: op, BaseErr: ErrConflict, Detail: detail}
}

func NewParseError(op, detail string) error {
	return &EvalError{Op: op, BaseErr: ErrParse, Detail: detail}
}

func NewInternalError(op string, err error) error {
	return &EvalError{Op: op, BaseErr: ErrInternal, Err: err}
}

// HTTPStatus 把错误映射到 HTTP 状态码
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ee *EvalError
	if errors.As(err, &ee) && ee.Status != 0 {
		return ee.Status
	}
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrCredential):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Code 稳定的机器可读错误码
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCredential):
		return "credential_error"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	case errors.Is(err, ErrParse):
		return "parse_error"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal_error"
	}
}

// Message 面向调用方的可读信息
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ee *EvalError
	if !errors.As(err, &ee) {
		return "Internal server error"
	}
	switch {
	case errors.Is(ee.BaseErr, ErrUpstream):
		var ue *UpstreamError
		if errors.As(err, &ue) {
			return fmt.Sprintf("LLM provider returned status %d: %s", ue.StatusCode, ue.Body)
		}
		return "LLM provider request failed"
	case errors.Is(ee.BaseErr, ErrInternal):
		return "Internal server error"
	}
	if ee.Detail != "" {
		return ee.Detail
	}
	return defaultMessages[Code(err)]
}

var defaultMessages = map[string]string{
	"validation_error": "Invalid request",
	"not_found":        "Resource not found",
	"credential_error": "LLM credential unavailable",
	"parse_error":      "Model output could not be parsed",
	"conflict":         "Another evaluation is already running for this application",
}

// Retryable 冲突和内部错误值得重试；上游错误只有 429 和 5xx 值得重试，
// 没有状态码的上游错误（超时、连接失败）也重试
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode == http.StatusTooManyRequests || ue.StatusCode >= 500
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrCredential), errors.Is(err, ErrParse):
		return false
	}
	return true
}
