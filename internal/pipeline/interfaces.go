package pipeline

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/model"

	"hiregenai/internal/credentials"
	"hiregenai/internal/storage"
	"hiregenai/internal/storage/models"
	"hiregenai/internal/types"
)

//
// 持久化相关接口
//

// ApplicationRepository 申请、岗位、公司和面试轮次的读写，storage.ApplicationStore 实现了该接口
type ApplicationRepository interface {
	GetApplication(ctx context.Context, applicationID string) (*models.Application, error)
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	GetCompany(ctx context.Context, companyID string) (*models.Company, error)

	// RoundCriteria 面试轮次的维度目录，未配置时返回空目录
	RoundCriteria(ctx context.Context, jobID string, round int) ([]string, error)

	// 以下写操作在同一事务中写入 event（可为 nil）。
	// 回答评估覆盖已有记录时沿用原 evaluation_id，事件按最终 id 构造
	SaveAnswerEvaluation(ctx context.Context, rec *models.AnswerEvaluationRecord, buildEvent storage.AnswerEventFunc) error
	SaveParsedResume(ctx context.Context, applicationID string, upd storage.ParsedResumeUpdate, event *models.OutboxMessage) error
	SaveResumeEvaluation(ctx context.Context, applicationID string, upd storage.ResumeEvaluationUpdate, event *models.OutboxMessage) error
}

// ParseCache 按文件 MD5 缓存解析结果
type ParseCache interface {
	GetParsedDocument(ctx context.Context, fileMD5 string) (types.ParsedDocument, bool, error)
	SetParsedDocument(ctx context.Context, fileMD5 string, doc types.ParsedDocument, ttl time.Duration) error
}

// ResumeArchive 保存简历原件和规整文本
type ResumeArchive interface {
	UploadOriginal(ctx context.Context, applicationID, fileMD5, fileName string, data []byte, contentType string) (string, error)
	UploadParsedText(ctx context.Context, applicationID, fileMD5, text string) (string, error)
}

// Locker 分布式锁，获取失败时返回空 token
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) (bool, error)
}

//
// 评估相关接口
//

// CredentialResolver 解析租户的模型凭据，credentials.Resolver 实现了该接口
type CredentialResolver interface {
	Resolve(ctx context.Context, companyID string) (credentials.Credential, error)
}

// DocumentParser 文档规整，normalizer.Normalizer 实现了该接口
type DocumentParser interface {
	ParseNamed(ctx context.Context, data []byte, declaredMime, filename string) types.ParsedDocument
	MaxBytes() int64
}

// CriterionResolver 问题维度解析，criterion.Resolver 实现了该接口
type CriterionResolver interface {
	Resolve(ctx context.Context, m model.ToolCallingChatModel, supplied, question string, catalog []string) types.CriterionAssignment
	NeedsModel() bool
}
