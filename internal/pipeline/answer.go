package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/scoring"
	"hiregenai/internal/storage"
	"hiregenai/internal/storage/models"
	"hiregenai/internal/tracing"
	"hiregenai/internal/types"
)

// EvaluateAnswerInput 单个面试回答的评估请求
type EvaluateAnswerInput struct {
	CompanyID      string
	ApplicationID  string // 可选，提供时从申请加载维度目录和岗位信息，并保存结果
	Question       string
	Answer         string
	Criterion      string
	QuestionNumber int
	TotalQuestions int
	JobTitle       string
	CompanyName    string
	JobLevel       string
}

// EvaluateAnswerResult 评估结果
type EvaluateAnswerResult struct {
	Evaluation   types.AnswerEvaluation
	Assignment   types.CriterionAssignment
	EvaluationID string // 仅在结果已保存时非空
}

// EvaluateAnswer 解析问题维度并给回答打分。空回答不调用模型，也不需要租户凭据。
func (p *Service) EvaluateAnswer(ctx context.Context, in EvaluateAnswerInput) (EvaluateAnswerResult, error) {
	const op = "pipeline.EvaluateAnswer"
	ctx, span := p.tracer.Start(ctx, op)
	defer span.End()

	in.CompanyID = strings.TrimSpace(in.CompanyID)
	in.ApplicationID = strings.TrimSpace(in.ApplicationID)
	if in.CompanyID == "" {
		return EvaluateAnswerResult{}, apperrors.NewValidationError(op, "companyId is required")
	}
	if strings.TrimSpace(in.Question) == "" {
		return EvaluateAnswerResult{}, apperrors.NewValidationError(op, "question is required")
	}
	span.SetAttributes(
		attribute.String("company.id", in.CompanyID),
		attribute.String("application.id", in.ApplicationID),
		attribute.Int("question.number", in.QuestionNumber),
	)
	log := p.logger.With().
		Str("company_id", in.CompanyID).
		Str("application_id", in.ApplicationID).
		Int("question_number", in.QuestionNumber).
		Logger()

	company, err := p.c.Repository.GetCompany(ctx, in.CompanyID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return EvaluateAnswerResult{}, err
	}

	job := types.JobContext{Title: in.JobTitle, Company: in.CompanyName, Level: types.JobLevel(in.JobLevel)}
	if job.Company == "" {
		job.Company = company.Name
	}

	catalog := []string{}
	var app *models.Application
	if in.ApplicationID != "" {
		if app, err = p.loadApplication(ctx, op, in.CompanyID, in.ApplicationID); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			return EvaluateAnswerResult{}, err
		}
		jobRecord, err := p.c.Repository.GetJob(ctx, app.JobID)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			return EvaluateAnswerResult{}, err
		}
		if job.Title == "" {
			job.Title = jobRecord.JobTitle
		}
		if job.Level == "" {
			job.Level = types.JobLevel(jobRecord.JobLevel)
		}
		if catalog, err = p.c.Repository.RoundCriteria(ctx, app.JobID, app.CurrentRound); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			return EvaluateAnswerResult{}, err
		}
	}

	var scoringModel, classifier model.ToolCallingChatModel
	if strings.TrimSpace(in.Answer) != "" {
		scoringModel, classifier, err = p.tenantModels(ctx, in.CompanyID, company.LLMModel, p.c.Criteria.NeedsModel())
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeCredential)
			return EvaluateAnswerResult{}, err
		}
	}

	assignment := p.c.Criteria.Resolve(ctx, classifier, in.Criterion, in.Question, catalog)

	ev, err := p.c.Answers.ScoreAnswer(ctx, scoringModel, scoring.AnswerInput{
		QuestionNumber: in.QuestionNumber,
		Question:       in.Question,
		Answer:         in.Answer,
		Criterion:      assignment.ResolvedLabel,
		Job:            job,
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		log.Error().Err(err).Str("criterion", assignment.ResolvedLabel).Msg("回答评分失败")
		return EvaluateAnswerResult{}, err
	}

	result := EvaluateAnswerResult{Evaluation: ev, Assignment: assignment}
	span.SetAttributes(
		attribute.String("criterion.label", assignment.ResolvedLabel),
		attribute.String("criterion.source", assignment.Source),
		attribute.Int("evaluation.score", ev.Score),
	)

	if app != nil {
		// 保存失败不影响本次返回
		id, err := p.saveAnswerEvaluation(ctx, app, assignment, ev)
		if err != nil {
			log.Warn().Err(err).Msg("保存回答评估失败")
		} else {
			result.EvaluationID = id
		}
	}

	log.Info().
		Str("criterion", assignment.ResolvedLabel).
		Str("criterion_source", assignment.Source).
		Int("score", ev.Score).
		Str("source", ev.Source).
		Msg("回答评估完成")
	return result, nil
}

func (p *Service) saveAnswerEvaluation(ctx context.Context, app *models.Application, assignment types.CriterionAssignment, ev types.AnswerEvaluation) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}

	rec := &models.AnswerEvaluationRecord{
		EvaluationID:    id.String(),
		ApplicationID:   app.ApplicationID,
		QuestionNumber:  ev.QuestionNumber,
		QuestionText:    ev.QuestionText,
		Criterion:       assignment.ResolvedLabel,
		CriterionSource: assignment.Source,
		Score:           ev.Score,
		Recommendation:  string(ev.Recommendation),
		Evaluation:      datatypes.JSON(body),
		Source:          ev.Source,
		EvaluatedAt:     ev.EvaluatedAt,
	}
	buildEvent := func(evaluationID string) *models.OutboxMessage {
		return p.outboxEvent(app.ApplicationID, storage.EventAnswerEvaluated, p.s.AnswerEvaluatedKey, storage.AnswerEvaluatedEvent{
			ApplicationID:  app.ApplicationID,
			CompanyID:      app.CompanyID,
			EvaluationID:   evaluationID,
			QuestionNumber: ev.QuestionNumber,
			Criterion:      assignment.ResolvedLabel,
			Score:          ev.Score,
			Recommendation: string(ev.Recommendation),
			EvaluatedAt:    ev.EvaluatedAt,
		})
	}
	if err := p.c.Repository.SaveAnswerEvaluation(ctx, rec, buildEvent); err != nil {
		return "", err
	}
	return rec.EvaluationID, nil
}
