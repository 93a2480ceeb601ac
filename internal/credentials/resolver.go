package credentials

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"hiregenai/internal/apperrors"
)

// StoredCredential 数据库中保存的租户凭据
type StoredCredential struct {
	EncryptedKey string
	ProjectID    string // 可选，可能同样是加密格式
}

// Credential 解密后可直接用于调用模型的凭据
type Credential struct {
	APIKey    string
	ProjectID string
}

// Store 读取租户凭据；公司不存在时返回 NotFound 类错误
type Store interface {
	CompanyCredential(ctx context.Context, companyID string) (StoredCredential, error)
}

// Resolver 按请求即时解密租户凭据，不做缓存
type Resolver struct {
	store          Store
	masterKey      string
	allowPlaintext bool
	logger         zerolog.Logger
}

// ResolverOption 构造选项
type ResolverOption func(*Resolver)

// WithAllowPlaintext 接受未加密的旧数据
func WithAllowPlaintext(allow bool) ResolverOption {
	return func(r *Resolver) { r.allowPlaintext = allow }
}

// WithLogger 注入日志
func WithLogger(l zerolog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver 创建凭据解析器
func NewResolver(store Store, masterKey string, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, masterKey: masterKey, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 返回公司的模型凭据
func (r *Resolver) Resolve(ctx context.Context, companyID string) (Credential, error) {
	const op = "credentials.resolve"
	companyID = strings.TrimSpace(companyID)
	if companyID == "" {
		return Credential{}, apperrors.NewValidationError(op, "companyId is required")
	}

	stored, err := r.store.CompanyCredential(ctx, companyID)
	if err != nil {
		return Credential{}, err
	}
	if strings.TrimSpace(stored.EncryptedKey) == "" {
		return Credential{}, apperrors.NewMissingCredentialError(op, "no LLM API key is configured for this company")
	}

	payload, err := r.reveal(stored.EncryptedKey)
	if err != nil {
		r.logger.Error().Err(err).Str("company_id", companyID).Msg("解密租户密钥失败")
		return Credential{}, apperrors.NewUndecryptableCredentialError(op, err)
	}
	apiKey := ExtractAPIKey(payload)
	if apiKey == "" {
		return Credential{}, apperrors.NewUndecryptableCredentialError(op, errors.New("解密后的内容中没有密钥"))
	}

	projectID := strings.TrimSpace(stored.ProjectID)
	if IsSealed(projectID) {
		if projectID, err = Open(r.masterKey, projectID); err != nil {
			return Credential{}, apperrors.NewUndecryptableCredentialError(op, err)
		}
		projectID = ExtractAPIKey(projectID)
	}

	return Credential{APIKey: apiKey, ProjectID: projectID}, nil
}

func (r *Resolver) reveal(stored string) (string, error) {
	stored = strings.TrimSpace(stored)
	if IsSealed(stored) {
		return Open(r.masterKey, stored)
	}
	if r.allowPlaintext {
		return stored, nil
	}
	return "", ErrMalformed
}
