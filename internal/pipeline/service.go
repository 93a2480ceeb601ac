package pipeline // 评估流程编排：加载申请 → 解析凭据 → 维度解析 → 评分 → 持久化

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/constants"
	"hiregenai/internal/llm"
	"hiregenai/internal/scoring"
	"hiregenai/internal/storage"
	"hiregenai/internal/storage/models"
	"hiregenai/internal/tracing"
)

// Components 聚合所有功能组件依赖，便于集中管理和测试替换。
// Cache、Archive、Locker 可为 nil。
type Components struct {
	Repository  ApplicationRepository
	Credentials CredentialResolver
	Models      llm.ModelFactory
	Normalizer  DocumentParser
	Criteria    CriterionResolver
	Answers     *scoring.AnswerScorer
	Resumes     *scoring.ResumeScorer

	Cache   ParseCache
	Archive ResumeArchive
	Locker  Locker
}

// Settings 纯配置项
type Settings struct {
	// 事件发布，Exchange 为空时不写 outbox
	Exchange           string
	ResumeParsedKey    string
	AnswerEvaluatedKey string
	ResumeEvaluatedKey string

	ClassifierModel    string        // 维度分类模型，为空时与评分共用
	ParseCacheTTL      time.Duration // 解析缓存有效期
	LockTTL            time.Duration // 简历评估锁有效期
	TransportTextLimit int           // 接口返回 rawText 的字符上限

	Logger zerolog.Logger
}

// Service 评估流程
type Service struct {
	c      Components
	s      Settings
	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New 校验必需组件
func New(c Components, s Settings) (*Service, error) {
	switch {
	case c.Repository == nil:
		return nil, fmt.Errorf("pipeline: Repository is required")
	case c.Credentials == nil:
		return nil, fmt.Errorf("pipeline: Credentials is required")
	case c.Models == nil:
		return nil, fmt.Errorf("pipeline: Models is required")
	case c.Normalizer == nil:
		return nil, fmt.Errorf("pipeline: Normalizer is required")
	case c.Criteria == nil:
		return nil, fmt.Errorf("pipeline: Criteria is required")
	case c.Answers == nil || c.Resumes == nil:
		return nil, fmt.Errorf("pipeline: Answers and Resumes scorers are required")
	}
	if s.TransportTextLimit <= 0 {
		s.TransportTextLimit = constants.TransportTextLimit
	}
	if s.LockTTL <= 0 {
		s.LockTTL = 5 * time.Minute
	}
	return &Service{
		c:      c,
		s:      s,
		logger: s.Logger,
		tracer: tracing.Tracer("pipeline"),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// tenantModels 租户的评分模型和分类模型；两者相同时共用一个实例
func (p *Service) tenantModels(ctx context.Context, companyID, modelOverride string, needClassifier bool) (scoringModel, classifier model.ToolCallingChatModel, err error) {
	const op = "pipeline.tenantModels"
	cred, err := p.c.Credentials.Resolve(ctx, companyID)
	if err != nil {
		return nil, nil, err
	}
	scoringModel, err = p.c.Models.ChatModel(cred.APIKey, cred.ProjectID, modelOverride)
	if err != nil {
		return nil, nil, apperrors.NewInternalError(op, err)
	}
	if !needClassifier {
		return scoringModel, nil, nil
	}
	if p.s.ClassifierModel == "" || p.s.ClassifierModel == modelOverride {
		return scoringModel, scoringModel, nil
	}
	classifier, err = p.c.Models.ChatModel(cred.APIKey, cred.ProjectID, p.s.ClassifierModel)
	if err != nil {
		return nil, nil, apperrors.NewInternalError(op, err)
	}
	return scoringModel, classifier, nil
}

// loadApplication 申请必须属于 companyID，否则视为不存在
func (p *Service) loadApplication(ctx context.Context, op, companyID, applicationID string) (*models.Application, error) {
	app, err := p.c.Repository.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if companyID != "" && app.CompanyID != companyID {
		return nil, apperrors.NewNotFoundError(op, fmt.Sprintf("application %s not found", applicationID))
	}
	return app, nil
}

// outboxEvent Exchange 未配置时返回 nil
func (p *Service) outboxEvent(aggregateID, eventType, routingKey string, payload interface{}) *models.OutboxMessage {
	if p.s.Exchange == "" || routingKey == "" {
		return nil
	}
	msg, err := storage.NewOutboxMessage(aggregateID, eventType, p.s.Exchange, routingKey, payload)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("构造outbox事件失败")
		return nil
	}
	return msg
}
