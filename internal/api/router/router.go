package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/rs/zerolog"

	"hiregenai/internal/api/handler"
)

// Options 路由级别的中间件配置
type Options struct {
	ServiceKeys      []string // 为空时 /api/v1 不校验服务密钥
	ServiceKeyHeader string
	Logger           zerolog.Logger
}

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, eval *handler.EvaluationHandler, opts Options) {
	h.Use(RequestID(), AccessLog(opts.Logger))

	// 添加健康检查
	h.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	api := h.Group("/api/v1")
	if len(opts.ServiceKeys) > 0 {
		api.Use(ServiceKeyAuth(opts.ServiceKeys, opts.ServiceKeyHeader))
	}

	api.POST("/evaluate-answer", eval.HandleEvaluateAnswer)
	api.POST("/parse-resume", eval.HandleParseResume)
	api.POST("/evaluate-resume", eval.HandleEvaluateResume)
}
