package llm

import (
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"

	"hiregenai/internal/config"
	"hiregenai/pkg/ratelimit"
)

// ModelFactory 用租户凭据构造聊天模型
type ModelFactory interface {
	ChatModel(apiKey, projectID, modelName string) (model.ToolCallingChatModel, error)
}

// Factory 默认实现：OpenAI 兼容客户端 + 按模型共享的限流器
type Factory struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	limiters   *ratelimit.Registry
	logger     zerolog.Logger
}

var _ ModelFactory = (*Factory)(nil)

// NewFactory 所有租户共用一个 HTTP 连接池
func NewFactory(cfg config.LLMConfig, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: config.GetDuration(cfg.Timeout, 60*time.Second)},
		limiters: ratelimit.NewRegistry(
			cfg.ModelQPM,
			config.GetDuration(cfg.RetryWait, time.Second),
			cfg.MaxRetries,
		),
		logger: logger,
	}
}

// ChatModel modelName 为空时使用配置的默认模型
func (f *Factory) ChatModel(apiKey, projectID, modelName string) (model.ToolCallingChatModel, error) {
	if modelName == "" {
		modelName = f.cfg.Model
	}
	m, err := NewOpenAIChatModel(apiKey, modelName, f.cfg.APIURL,
		WithProject(projectID, f.cfg.ProjectHeader),
		WithHTTPClient(f.httpClient),
		WithLogger(f.logger.With().Str("model", modelName).Logger()),
	)
	if err != nil {
		return nil, err
	}
	return f.limiters.Wrap(m, modelName), nil
}
