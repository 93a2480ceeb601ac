package normalizer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TikaExtractor 通过 Apache Tika 服务器提取 pdf/doc/docx 文本
type TikaExtractor struct {
	// Tika服务器地址，例如 http://localhost:9998
	ServerURL string
	Client    *http.Client

	contentType        string
	extractAnnotations bool
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaExtractor)

// WithTikaTimeout 配置HTTP客户端超时时间
func WithTikaTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaExtractor) {
		if timeout > 0 {
			e.Client.Timeout = timeout
		}
	}
}

// WithTikaHTTPClient 替换默认HTTP客户端
func WithTikaHTTPClient(c *http.Client) TikaOption {
	return func(e *TikaExtractor) {
		if c != nil {
			e.Client = c
		}
	}
}

// WithAnnotations 配置是否提取PDF链接注释文本
func WithAnnotations(extract bool) TikaOption {
	return func(e *TikaExtractor) {
		e.extractAnnotations = extract
	}
}

var _ Extractor = (*TikaExtractor)(nil)

// NewTikaExtractor contentType 为上传时发送的 Content-Type，空值由 Tika 自行探测
func NewTikaExtractor(serverURL, contentType string, options ...TikaOption) *TikaExtractor {
	e := &TikaExtractor{
		ServerURL:          strings.TrimRight(serverURL, "/"),
		Client:             &http.Client{Timeout: 60 * time.Second},
		contentType:        contentType,
		extractAnnotations: true,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// forType 返回共享客户端、不同 Content-Type 的副本
func (e *TikaExtractor) forType(contentType string) *TikaExtractor {
	c := *e
	c.contentType = contentType
	return &c
}

func (e *TikaExtractor) Name() string { return "tika" }

func (e *TikaExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.ServerURL+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	if e.contentType != "" {
		req.Header.Set("Content-Type", e.contentType)
	}
	req.Header.Set("Accept", "text/plain")
	if !e.extractAnnotations {
		req.Header.Set("X-Tika-PDFExtractAnnotationText", "false")
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tika服务器返回错误状态码: %d", resp.StatusCode)
	}
	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取Tika响应失败: %w", err)
	}
	if strings.TrimSpace(string(text)) == "" {
		return "", ErrNoText
	}
	return string(text), nil
}
