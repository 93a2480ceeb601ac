package router

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/keyauth"
	"github.com/rs/zerolog"

	"hiregenai/internal/logger"
)

// HeaderRequestID 请求ID头
const HeaderRequestID = "X-Request-ID"

// DefaultServiceKeyHeader 服务密钥头
const DefaultServiceKeyHeader = "X-Service-Key"

type requestIDKey struct{}

// RequestIDFrom 取中间件写入的请求ID
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID 沿用调用方的 X-Request-ID，没有时生成一个
func RequestID() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		id := string(ctx.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set("request_id", id)
		ctx.Response.Header.Set(HeaderRequestID, id)
		ctx.Next(context.WithValue(c, requestIDKey{}, id))
	}
}

// AccessLog 每个请求一条日志，并把带 request_id 的 logger 放进上下文
func AccessLog(base zerolog.Logger) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		reqLogger := base.With().Str("request_id", RequestIDFrom(c)).Logger()
		ctx.Next(logger.WithContext(c, reqLogger))

		status := ctx.Response.StatusCode()
		ev := reqLogger.Info()
		if status >= consts.StatusInternalServerError {
			ev = reqLogger.Error()
		} else if status >= consts.StatusBadRequest {
			ev = reqLogger.Warn()
		}
		ev.Str("method", string(ctx.Method())).
			Str("path", string(ctx.Path())).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTP请求")
	}
}

// ServiceKeyAuth 校验服务密钥，header 为空时使用 X-Service-Key
func ServiceKeyAuth(keys []string, header string) app.HandlerFunc {
	if header == "" {
		header = DefaultServiceKeyHeader
	}
	allowed := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			allowed = append(allowed, []byte(k))
		}
	}
	return keyauth.New(
		keyauth.WithKeyLookUp("header:"+header, ""),
		keyauth.WithContextKey("service_key"),
		keyauth.WithValidator(func(_ context.Context, _ *app.RequestContext, key string) (bool, error) {
			for _, k := range allowed {
				if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
					return true, nil
				}
			}
			return false, errInvalidServiceKey
		}),
		keyauth.WithErrorHandler(func(_ context.Context, ctx *app.RequestContext, err error) {
			ctx.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{
				"ok":      false,
				"error":   "unauthorized",
				"message": "missing or invalid service key",
			})
		}),
	)
}

var errInvalidServiceKey = errors.New("invalid service key")
