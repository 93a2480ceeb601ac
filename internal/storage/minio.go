package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hiregenai/internal/config"
	"hiregenai/internal/tracing"
)

var minioTracer = tracing.Tracer("storage/minio")

// ObjectStorage 简历原件和规整文本的对象存储
type ObjectStorage interface {
	// UploadOriginal 上传原始文件，返回对象键
	UploadOriginal(ctx context.Context, applicationID, fileMD5, fileName string, data []byte, contentType string) (string, error)
	// UploadParsedText 上传规整后的纯文本，返回对象键
	UploadParsedText(ctx context.Context, applicationID, fileMD5, text string) (string, error)
	// GetOriginal 读取原始文件
	GetOriginal(ctx context.Context, objectKey string) ([]byte, error)
	// GetPresignedURL 获取原始文件的预签名下载地址
	GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client         *minio.Client
	cfg            *config.MinIOConfig
	originalBucket string
	parsedBucket   string
	logger         zerolog.Logger
}

// NewMinIO 创建MinIO客户端，确保存储桶存在并设置过期规则
func NewMinIO(cfg *config.MinIOConfig, log zerolog.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:         client,
		cfg:            cfg,
		originalBucket: defaultString(cfg.OriginalsBucket, "resume-originals"),
		parsedBucket:   defaultString(cfg.ParsedTextBucket, "resume-parsed-text"),
		logger:         log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, bucket := range []string{m.originalBucket, m.parsedBucket} {
		if err := m.ensureBucketExists(ctx, bucket, cfg.Location); err != nil {
			return nil, err
		}
	}

	if cfg.OriginalFileExpireDays > 0 || cfg.ParsedTextExpireDays > 0 {
		if err := m.setupLifecycleRules(ctx); err != nil {
			// 生命周期规则失败不影响读写
			m.logger.Warn().Err(err).Msg("设置MinIO生命周期规则失败")
		}
	}

	m.logger.Info().Str("endpoint", cfg.Endpoint).
		Str("originals_bucket", m.originalBucket).
		Str("parsed_bucket", m.parsedBucket).
		Msg("MinIO客户端初始化完成")
	return m, nil
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName, location string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
	}
	m.logger.Info().Str("bucket", bucketName).Msg("已创建存储桶")
	return nil
}

// setupLifecycleRules 设置对象生命周期规则
func (m *MinIO) setupLifecycleRules(ctx context.Context) error {
	if m.cfg.OriginalFileExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.originalBucket, "expire-originals", m.cfg.OriginalFileExpireDays); err != nil {
			return fmt.Errorf("为原始文件存储桶 %s 设置生命周期失败: %w", m.originalBucket, err)
		}
	}
	if m.cfg.ParsedTextExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.parsedBucket, "expire-parsed-text", m.cfg.ParsedTextExpireDays); err != nil {
			return fmt.Errorf("为解析文本存储桶 %s 设置生命周期失败: %w", m.parsedBucket, err)
		}
	}
	return nil
}

func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, cfg)
}

// OriginalObjectKey 原件对象键: applications/{applicationID}/resume/{md5}{ext}
func OriginalObjectKey(applicationID, fileMD5, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	owner := applicationID
	if owner == "" {
		owner = "unassigned"
	}
	return fmt.Sprintf("applications/%s/resume/%s%s", owner, fileMD5, ext)
}

// ParsedTextObjectKey 规整文本对象键: applications/{applicationID}/resume/{md5}.txt
func ParsedTextObjectKey(applicationID, fileMD5 string) string {
	return OriginalObjectKey(applicationID, fileMD5, ".txt")
}

func (m *MinIO) put(ctx context.Context, spanName, bucket, objectKey string, data []byte, contentType string) error {
	ctx, span := minioTracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("minio.bucket", bucket),
			attribute.String("minio.object", objectKey),
			attribute.Int("minio.size", len(data)),
		))
	defer span.End()

	_, err := m.client.PutObject(ctx, bucket, objectKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return fmt.Errorf("上传对象 %s/%s 失败: %w", bucket, objectKey, err)
	}
	return nil
}

// UploadOriginal 上传原始简历到 originals 存储桶
func (m *MinIO) UploadOriginal(ctx context.Context, applicationID, fileMD5, fileName string, data []byte, contentType string) (string, error) {
	key := OriginalObjectKey(applicationID, fileMD5, fileName)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := m.put(ctx, "MinIO.UploadOriginal", m.originalBucket, key, data, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// UploadParsedText 上传规整文本到 parsed 存储桶
func (m *MinIO) UploadParsedText(ctx context.Context, applicationID, fileMD5, text string) (string, error) {
	key := ParsedTextObjectKey(applicationID, fileMD5)
	if err := m.put(ctx, "MinIO.UploadParsedText", m.parsedBucket, key, []byte(text), "text/plain; charset=utf-8"); err != nil {
		return "", err
	}
	return key, nil
}

// GetOriginal 下载原始简历
func (m *MinIO) GetOriginal(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.originalBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s 失败: %w", objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s 失败: %w", objectKey, err)
	}
	return data, nil
}

// GetPresignedURL 获取预签名URL
func (m *MinIO) GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.originalBucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成预签名URL失败: %w", err)
	}
	return u.String(), nil
}
