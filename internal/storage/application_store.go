package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/credentials"
	"hiregenai/internal/storage/models"
	"hiregenai/internal/tracing"
)

// ApplicationStore 评估流程读写的业务表：公司凭据、岗位、面试轮次、申请和回答评估
type ApplicationStore struct {
	db     *gorm.DB
	logger zerolog.Logger
}

var _ credentials.Store = (*ApplicationStore)(nil)

// NewApplicationStore 基于已迁移的连接创建
func NewApplicationStore(db *gorm.DB, log zerolog.Logger) *ApplicationStore {
	return &ApplicationStore{db: db, logger: log}
}

// ParsedResumeUpdate 简历解析完成后写回申请的字段
type ParsedResumeUpdate struct {
	ResumeText        string
	ParsedJSON        []byte
	ObjectKey         string
	FileMD5           string
	Empty             bool
	NormalizerVersion string
}

// ResumeEvaluationUpdate 简历评估完成后写回申请的字段
type ResumeEvaluationUpdate struct {
	EvaluationJSON []byte
	Score          int
	Qualified      bool
	EvaluatedAt    time.Time
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return mysqlTracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func failSpan(span trace.Span, err error) {
	tracing.RecordError(span, err, tracing.ErrorTypeDB)
}

// first 按主键查询；记录不存在时返回 NotFound 类错误
func (s *ApplicationStore) first(ctx context.Context, op, what, id string, dest interface{}, column string) error {
	err := s.db.WithContext(ctx).Where(column+" = ?", id).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NewNotFoundError(op, fmt.Sprintf("%s %s not found", what, id))
	}
	if err != nil {
		return apperrors.NewInternalError(op, err)
	}
	return nil
}

// CompanyCredential 实现 credentials.Store
func (s *ApplicationStore) CompanyCredential(ctx context.Context, companyID string) (credentials.StoredCredential, error) {
	company, err := s.GetCompany(ctx, companyID)
	if err != nil {
		return credentials.StoredCredential{}, err
	}
	return credentials.StoredCredential{
		EncryptedKey: company.LLMKeyEncrypted,
		ProjectID:    company.LLMProjectID,
	}, nil
}

// GetCompany 查询公司
func (s *ApplicationStore) GetCompany(ctx context.Context, companyID string) (*models.Company, error) {
	var company models.Company
	if err := s.first(ctx, "storage.GetCompany", "company", companyID, &company, "company_id"); err != nil {
		return nil, err
	}
	return &company, nil
}

// GetApplication 查询申请
func (s *ApplicationStore) GetApplication(ctx context.Context, applicationID string) (*models.Application, error) {
	var app models.Application
	if err := s.first(ctx, "storage.GetApplication", "application", applicationID, &app, "application_id"); err != nil {
		return nil, err
	}
	return &app, nil
}

// GetJob 查询岗位
func (s *ApplicationStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.first(ctx, "storage.GetJob", "job", jobID, &job, "job_id"); err != nil {
		return nil, err
	}
	return &job, nil
}

// RoundCriteria 返回岗位某一轮面试的维度目录。没有配置该轮次时返回空目录。
func (s *ApplicationStore) RoundCriteria(ctx context.Context, jobID string, round int) ([]string, error) {
	const op = "storage.RoundCriteria"
	ctx, span := startSpan(ctx, "MySQL.RoundCriteria", attribute.String("job.id", jobID), attribute.Int("round", round))
	defer span.End()

	var ir models.InterviewRound
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND round_number = ?", jobID, round).
		First(&ir).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []string{}, nil
	}
	if err != nil {
		failSpan(span, err)
		return nil, apperrors.NewInternalError(op, err)
	}

	catalog := ParseCriteria(ir.Criteria)
	span.SetAttributes(attribute.Int("criteria.count", len(catalog)))
	return catalog, nil
}

// ParseCriteria 解析 criteria 列。元素可以是字符串，也可以是带 name/label/criterion 的对象；
// 去掉空白项和重复项，保持原有顺序。
func ParseCriteria(raw datatypes.JSON) []string {
	out := []string{}
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return out
	}
	seen := make(map[string]struct{})
	gjson.ParseBytes(raw).ForEach(func(_, v gjson.Result) bool {
		var label string
		switch {
		case v.Type == gjson.String:
			label = v.Str
		case v.IsObject():
			for _, key := range []string{"name", "label", "criterion", "title"} {
				if f := v.Get(key); f.Type == gjson.String {
					label = f.Str
					break
				}
			}
		}
		label = strings.TrimSpace(label)
		if label == "" {
			return true
		}
		if _, dup := seen[label]; dup {
			return true
		}
		seen[label] = struct{}{}
		out = append(out, label)
		return true
	})
	return out
}

// AnswerEventFunc 按最终落库的 evaluation_id 构造 outbox 事件，返回 nil 表示不发事件
type AnswerEventFunc func(evaluationID string) *models.OutboxMessage

// SaveAnswerEvaluation 按 (application_id, question_number) 写入或覆盖回答评估。
// 覆盖时沿用已有的 evaluation_id，返回后 rec.EvaluationID 是库里的值；
// buildEvent 非空时用该 id 构造事件并在同一事务中写入 outbox
func (s *ApplicationStore) SaveAnswerEvaluation(ctx context.Context, rec *models.AnswerEvaluationRecord, buildEvent AnswerEventFunc) error {
	const op = "storage.SaveAnswerEvaluation"
	ctx, span := startSpan(ctx, "MySQL.SaveAnswerEvaluation",
		attribute.String("application.id", rec.ApplicationID),
		attribute.Int("question.number", rec.QuestionNumber),
	)
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "application_id"}, {Name: "question_number"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"question_text", "criterion", "criterion_source", "score",
				"recommendation", "evaluation", "source", "evaluated_at", "updated_at",
			}),
		}).Create(rec).Error
		if err != nil {
			return fmt.Errorf("写入回答评估失败: %w", err)
		}
		var stored models.AnswerEvaluationRecord
		err = tx.Select("evaluation_id").
			Where("application_id = ? AND question_number = ?", rec.ApplicationID, rec.QuestionNumber).
			Take(&stored).Error
		if err != nil {
			return fmt.Errorf("读取回答评估ID失败: %w", err)
		}
		rec.EvaluationID = stored.EvaluationID
		if buildEvent == nil {
			return nil
		}
		return createOutbox(tx, buildEvent(rec.EvaluationID))
	})
	if err != nil {
		failSpan(span, err)
		return apperrors.NewInternalError(op, err)
	}
	return nil
}

// SaveParsedResume 写回解析结果并更新处理状态
func (s *ApplicationStore) SaveParsedResume(ctx context.Context, applicationID string, upd ParsedResumeUpdate, event *models.OutboxMessage) error {
	const op = "storage.SaveParsedResume"
	status := models.StatusResumeParsed
	if upd.Empty {
		status = models.StatusResumeEmpty
	}
	updates := map[string]interface{}{
		"resume_text":        upd.ResumeText,
		"resume_parsed":      datatypes.JSON(upd.ParsedJSON),
		"resume_file_md5":    upd.FileMD5,
		"processing_status":  status,
		"normalizer_version": upd.NormalizerVersion,
	}
	if upd.ObjectKey != "" {
		updates["resume_object_key"] = upd.ObjectKey
	}
	return s.updateApplication(ctx, op, applicationID, updates, event)
}

// SaveResumeEvaluation 写回简历评估结果
func (s *ApplicationStore) SaveResumeEvaluation(ctx context.Context, applicationID string, upd ResumeEvaluationUpdate, event *models.OutboxMessage) error {
	const op = "storage.SaveResumeEvaluation"
	evaluatedAt := upd.EvaluatedAt
	updates := map[string]interface{}{
		"resume_evaluation":   datatypes.JSON(upd.EvaluationJSON),
		"resume_score":        upd.Score,
		"resume_qualified":    upd.Qualified,
		"resume_evaluated_at": &evaluatedAt,
		"processing_status":   models.StatusResumeEvaluated,
	}
	return s.updateApplication(ctx, op, applicationID, updates, event)
}

func (s *ApplicationStore) updateApplication(ctx context.Context, op, applicationID string, updates map[string]interface{}, event *models.OutboxMessage) error {
	ctx, span := startSpan(ctx, "MySQL.UpdateApplication",
		attribute.String("application.id", applicationID),
		attribute.String("operation", op),
	)
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var app models.Application
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("application_id").
			Where("application_id = ?", applicationID).
			First(&app).Error
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Application{}).Where("application_id = ?", applicationID).Updates(updates).Error; err != nil {
			return fmt.Errorf("更新申请失败: %w", err)
		}
		return createOutbox(tx, event)
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NewNotFoundError(op, fmt.Sprintf("application %s not found", applicationID))
	}
	if err != nil {
		failSpan(span, err)
		return apperrors.NewInternalError(op, err)
	}
	return nil
}

func createOutbox(tx *gorm.DB, event *models.OutboxMessage) error {
	if event == nil {
		return nil
	}
	if err := tx.Create(event).Error; err != nil {
		return fmt.Errorf("写入outbox失败: %w", err)
	}
	return nil
}

// NewOutboxMessage 构造一条待发布的事件
func NewOutboxMessage(aggregateID, eventType, exchange, routingKey string, payload interface{}) (*models.OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化事件 %s 失败: %w", eventType, err)
	}
	return &models.OutboxMessage{
		AggregateID:      aggregateID,
		EventType:        eventType,
		Payload:          string(body),
		TargetExchange:   exchange,
		TargetRoutingKey: routingKey,
		Status:           models.OutboxStatusPending,
	}, nil
}
