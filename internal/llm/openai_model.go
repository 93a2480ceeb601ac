package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/tracing"
)

const (
	defaultAPIURL        = "https://api.openai.com/v1/chat/completions"
	defaultModelName     = "gpt-4o-mini"
	defaultProjectHeader = "OpenAI-Project"
	maxErrorBodyBytes    = 2048
)

// OpenAIChatModel OpenAI 兼容的 chat completions 客户端，每个租户一个实例
type OpenAIChatModel struct {
	apiKey        string
	projectID     string
	projectHeader string
	modelName     string
	apiURL        string
	httpClient    *http.Client
	logger        zerolog.Logger
}

var _ model.ToolCallingChatModel = (*OpenAIChatModel)(nil)

// ChatModelOption 构造选项
type ChatModelOption func(*OpenAIChatModel)

// WithProject 设置项目 ID 以及携带它的请求头
func WithProject(projectID, header string) ChatModelOption {
	return func(m *OpenAIChatModel) {
		m.projectID = strings.TrimSpace(projectID)
		if header != "" {
			m.projectHeader = header
		}
	}
}

// WithHTTPClient 替换默认 HTTP 客户端
func WithHTTPClient(c *http.Client) ChatModelOption {
	return func(m *OpenAIChatModel) {
		if c != nil {
			m.httpClient = c
		}
	}
}

// WithLogger 注入日志
func WithLogger(l zerolog.Logger) ChatModelOption {
	return func(m *OpenAIChatModel) { m.logger = l }
}

// NewOpenAIChatModel 创建客户端，apiKey 不能为空
func NewOpenAIChatModel(apiKey, modelName, apiURL string, opts ...ChatModelOption) (*OpenAIChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultModelName
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultAPIURL
	}

	m := &OpenAIChatModel{
		apiKey:        apiKey,
		modelName:     modelName,
		apiURL:        apiURL,
		projectHeader: defaultProjectHeader,
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ModelName 实际使用的模型
func (m *OpenAIChatModel) ModelName() string { return m.modelName }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string  `json:"role"`
			Content *string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate 发送一次 chat completion 请求，不做重试
func (m *OpenAIChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	common := model.GetCommonOptions(&model.Options{Model: &m.modelName}, options...)
	specific := model.GetImplSpecificOptions(&requestOptions{}, options...)

	reqPayload := chatCompletionRequest{
		Model:       *common.Model,
		Temperature: common.Temperature,
		MaxTokens:   common.MaxTokens,
	}
	if specific.jsonMode {
		reqPayload.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		reqPayload.Messages = append(reqPayload.Messages, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if m.projectID != "" {
		httpReq.Header.Set(m.projectHeader, m.projectID)
	}

	m.logger.Debug().
		Str("model", reqPayload.Model).
		Str("api_key", tracing.MaskSecret(m.apiKey)).
		Int("messages", len(reqPayload.Messages)).
		Msg("发送 chat completion 请求")

	start := time.Now()
	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		body := string(bodyBytes)
		if len(body) > maxErrorBodyBytes {
			body = body[:maxErrorBodyBytes]
		}
		m.logger.Warn().
			Int("status", httpResp.StatusCode).
			Str("body", tracing.SafePrompt(body)).
			Msg("模型服务返回非成功状态")
		return nil, apperrors.NewUpstreamError("llm.generate", httpResp.StatusCode, body)
	}

	var resp chatCompletionResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return nil, apperrors.NewParseError("llm.generate", fmt.Sprintf("invalid completion payload: %v", err))
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.NewParseError("llm.generate", "completion contained no choices")
	}

	content := ""
	if resp.Choices[0].Message.Content != nil {
		content = *resp.Choices[0].Message.Content
	}

	m.logger.Debug().
		Dur("elapsed", time.Since(start)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Str("finish_reason", resp.Choices[0].FinishReason).
		Msg("收到 chat completion 响应")

	out := schema.AssistantMessage(content, nil)
	out.ResponseMeta = &schema.ResponseMeta{
		FinishReason: resp.Choices[0].FinishReason,
		Usage: &schema.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
		},
	}
	return out, nil
}

// Stream 评估流程只需要一次性的完整回复
func (m *OpenAIChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("OpenAIChatModel 不支持 Stream")
}

// WithTools 评估流程不绑定工具，返回自身
func (m *OpenAIChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if len(tools) > 0 {
		return nil, fmt.Errorf("OpenAIChatModel 不支持工具调用")
	}
	return m, nil
}

type requestOptions struct {
	jsonMode bool
}

// WithJSONMode 要求模型只输出 JSON 对象
func WithJSONMode() model.Option {
	return model.WrapImplSpecificOptFn(func(o *requestOptions) {
		o.jsonMode = true
	})
}
