package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/constants"
	"hiregenai/internal/normalizer"
	"hiregenai/internal/storage"
	"hiregenai/internal/tracing"
	"hiregenai/internal/types"
)

// ParseResumeInput 上传的简历文件
type ParseResumeInput struct {
	CompanyID     string
	ApplicationID string // 可选，提供时写回申请并发布 resume.parsed
	CandidateID   string
	FileName      string
	MimeType      string
	Data          []byte
}

// ParseResumeResult Parsed 为接口视图，rawText 已截断
type ParseResumeResult struct {
	Parsed    types.ParsedDocument
	FileMD5   string
	ObjectKey string
	Cached    bool
}

// ParseResume 规整简历文件。提取失败不报错，返回空结构。
func (p *Service) ParseResume(ctx context.Context, in ParseResumeInput) (ParseResumeResult, error) {
	const op = "pipeline.ParseResume"
	ctx, span := p.tracer.Start(ctx, op)
	defer span.End()

	if len(in.Data) == 0 {
		return ParseResumeResult{}, apperrors.NewValidationError(op, "resume file is empty")
	}
	if limit := p.c.Normalizer.MaxBytes(); int64(len(in.Data)) > limit {
		return ParseResumeResult{}, apperrors.NewValidationError(op,
			fmt.Sprintf("resume file exceeds %d MB limit", limit>>20))
	}
	if normalizer.DetectFormat(in.MimeType, in.FileName) == normalizer.FormatUnknown &&
		normalizer.SniffFormat(in.Data) == normalizer.FormatUnknown {
		return ParseResumeResult{}, apperrors.NewValidationError(op, "unsupported file type; upload a PDF, DOCX, DOC or TXT file")
	}

	in.ApplicationID = strings.TrimSpace(in.ApplicationID)
	span.SetAttributes(
		attribute.String("application.id", in.ApplicationID),
		attribute.String("file.name", in.FileName),
		attribute.Int("file.size", len(in.Data)),
	)
	log := p.logger.With().
		Str("company_id", in.CompanyID).
		Str("application_id", in.ApplicationID).
		Str("file_name", in.FileName).
		Logger()

	if in.ApplicationID != "" {
		app, err := p.loadApplication(ctx, op, in.CompanyID, in.ApplicationID)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			return ParseResumeResult{}, err
		}
		if in.CandidateID == "" {
			in.CandidateID = app.CandidateID
		}
	}

	sum := md5.Sum(in.Data)
	fileMD5 := hex.EncodeToString(sum[:])
	span.SetAttributes(attribute.String("file.md5", fileMD5))

	doc, cached := p.cachedDocument(ctx, fileMD5)
	if !cached {
		doc = p.c.Normalizer.ParseNamed(ctx, in.Data, in.MimeType, in.FileName)
	}
	span.SetAttributes(attribute.Bool("parse.cached", cached), attribute.Bool("parse.empty", doc.IsEmpty()))

	// 存档和缓存写入互不依赖，失败只记录日志
	var originalKey, textKey string
	g, gctx := errgroup.WithContext(ctx)
	if p.c.Archive != nil {
		g.Go(func() error {
			key, err := p.c.Archive.UploadOriginal(gctx, in.ApplicationID, fileMD5, in.FileName, in.Data, in.MimeType)
			if err != nil {
				log.Warn().Err(err).Msg("上传简历原件失败")
				return nil
			}
			originalKey = key
			return nil
		})
		if !doc.IsEmpty() {
			g.Go(func() error {
				key, err := p.c.Archive.UploadParsedText(gctx, in.ApplicationID, fileMD5, doc.RawText)
				if err != nil {
					log.Warn().Err(err).Msg("上传规整文本失败")
					return nil
				}
				textKey = key
				return nil
			})
		}
	}
	if p.c.Cache != nil && !cached && !doc.IsEmpty() {
		g.Go(func() error {
			if err := p.c.Cache.SetParsedDocument(gctx, fileMD5, doc, p.s.ParseCacheTTL); err != nil {
				log.Warn().Err(err).Msg("写入解析缓存失败")
			}
			return nil
		})
	}
	_ = g.Wait()

	if in.ApplicationID != "" {
		if err := p.saveParsedResume(ctx, in, doc, fileMD5, originalKey, textKey); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			log.Error().Err(err).Msg("保存解析结果失败")
			return ParseResumeResult{}, err
		}
	}

	log.Info().
		Str("file_md5", fileMD5).
		Bool("cached", cached).
		Bool("empty", doc.IsEmpty()).
		Int("text_len", len([]rune(doc.RawText))).
		Int("skills", len(doc.Skills)).
		Msg("简历解析完成")

	return ParseResumeResult{
		Parsed:    doc.ForTransport(p.s.TransportTextLimit),
		FileMD5:   fileMD5,
		ObjectKey: originalKey,
		Cached:    cached,
	}, nil
}

// cachedDocument 缓存不可用时按未命中处理
func (p *Service) cachedDocument(ctx context.Context, fileMD5 string) (types.ParsedDocument, bool) {
	if p.c.Cache == nil {
		return types.ParsedDocument{}, false
	}
	doc, hit, err := p.c.Cache.GetParsedDocument(ctx, fileMD5)
	if err != nil {
		p.logger.Warn().Err(err).Str("file_md5", fileMD5).Msg("读取解析缓存失败")
		return types.ParsedDocument{}, false
	}
	return doc, hit
}

func (p *Service) saveParsedResume(ctx context.Context, in ParseResumeInput, doc types.ParsedDocument, fileMD5, originalKey, textKey string) error {
	const op = "pipeline.saveParsedResume"
	body, err := json.Marshal(doc)
	if err != nil {
		return apperrors.NewInternalError(op, err)
	}
	event := p.outboxEvent(in.ApplicationID, storage.EventResumeParsed, p.s.ResumeParsedKey, storage.ResumeParsedEvent{
		ApplicationID:   in.ApplicationID,
		CompanyID:       in.CompanyID,
		CandidateID:     in.CandidateID,
		ResumeObjectKey: originalKey,
		ParsedTextKey:   textKey,
		FileMD5:         fileMD5,
		Empty:           doc.IsEmpty(),
		ParsedAt:        p.now(),
	})
	return p.c.Repository.SaveParsedResume(ctx, in.ApplicationID, storage.ParsedResumeUpdate{
		ResumeText:        doc.RawText,
		ParsedJSON:        body,
		ObjectKey:         originalKey,
		FileMD5:           fileMD5,
		Empty:             doc.IsEmpty(),
		NormalizerVersion: constants.NormalizerVersion,
	}, event)
}

// EvaluateResumeInput PassThreshold 为 0 时依次取岗位阈值和默认阈值
type EvaluateResumeInput struct {
	CompanyID     string
	ApplicationID string
	PassThreshold int
}

// EvaluateResume 对照岗位描述给申请的简历打分，同一申请同时只允许一个评估
func (p *Service) EvaluateResume(ctx context.Context, in EvaluateResumeInput) (types.ResumeEvaluation, error) {
	const op = "pipeline.EvaluateResume"
	ctx, span := p.tracer.Start(ctx, op)
	defer span.End()

	in.CompanyID = strings.TrimSpace(in.CompanyID)
	in.ApplicationID = strings.TrimSpace(in.ApplicationID)
	if in.CompanyID == "" || in.ApplicationID == "" {
		return types.ResumeEvaluation{}, apperrors.NewValidationError(op, "companyId and applicationId are required")
	}
	if in.PassThreshold < 0 || in.PassThreshold > 100 {
		return types.ResumeEvaluation{}, apperrors.NewValidationError(op, "passThreshold must be between 0 and 100")
	}
	span.SetAttributes(
		attribute.String("company.id", in.CompanyID),
		attribute.String("application.id", in.ApplicationID),
	)
	log := p.logger.With().
		Str("company_id", in.CompanyID).
		Str("application_id", in.ApplicationID).
		Logger()

	if p.c.Locker != nil {
		lockKey := storage.FormatKey(constants.KeyResumeEvaluationLock, in.ApplicationID)
		token, err := p.c.Locker.AcquireLock(ctx, lockKey, p.s.LockTTL)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("获取评估锁失败，继续无锁执行")
		case token == "":
			return types.ResumeEvaluation{}, apperrors.NewConflictError(op, "")
		default:
			defer func() {
				// 请求上下文可能已取消，释放锁用独立上下文
				if _, err := p.c.Locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
					log.Warn().Err(err).Msg("释放评估锁失败")
				}
			}()
		}
	}

	app, err := p.loadApplication(ctx, op, in.CompanyID, in.ApplicationID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return types.ResumeEvaluation{}, err
	}
	if strings.TrimSpace(app.ResumeText) == "" {
		return types.ResumeEvaluation{}, apperrors.NewValidationError(op, "application has no parsed resume text")
	}
	job, err := p.c.Repository.GetJob(ctx, app.JobID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return types.ResumeEvaluation{}, err
	}
	company, err := p.c.Repository.GetCompany(ctx, in.CompanyID)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return types.ResumeEvaluation{}, err
	}

	threshold := in.PassThreshold
	if threshold == 0 {
		threshold = job.PassThreshold
	}

	scoringModel, _, err := p.tenantModels(ctx, in.CompanyID, company.LLMModel, false)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeCredential)
		return types.ResumeEvaluation{}, err
	}

	ev, err := p.c.Resumes.ScoreResume(ctx, scoringModel, app.ResumeText, job.JobDescriptionText, threshold)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		log.Error().Err(err).Msg("简历评分失败")
		return types.ResumeEvaluation{}, err
	}
	span.SetAttributes(
		attribute.Int("evaluation.score_percent", ev.Overall.ScorePercent),
		attribute.Bool("evaluation.qualified", ev.Overall.Qualified),
	)

	body, err := json.Marshal(ev)
	if err != nil {
		return types.ResumeEvaluation{}, apperrors.NewInternalError(op, err)
	}
	event := p.outboxEvent(app.ApplicationID, storage.EventResumeEvaluated, p.s.ResumeEvaluatedKey, storage.ResumeEvaluatedEvent{
		ApplicationID: app.ApplicationID,
		CompanyID:     app.CompanyID,
		JobID:         app.JobID,
		ScorePercent:  ev.Overall.ScorePercent,
		Qualified:     ev.Overall.Qualified,
		PassThreshold: ev.Overall.PassThreshold,
		EvaluatedAt:   ev.EvaluatedAt,
	})
	if err := p.c.Repository.SaveResumeEvaluation(ctx, app.ApplicationID, storage.ResumeEvaluationUpdate{
		EvaluationJSON: body,
		Score:          ev.Overall.ScorePercent,
		Qualified:      ev.Overall.Qualified,
		EvaluatedAt:    ev.EvaluatedAt,
	}, event); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		log.Error().Err(err).Msg("保存简历评估失败")
		return types.ResumeEvaluation{}, err
	}

	log.Info().
		Int("score_percent", ev.Overall.ScorePercent).
		Bool("qualified", ev.Overall.Qualified).
		Int("pass_threshold", ev.Overall.PassThreshold).
		Str("source", ev.Source).
		Msg("简历评估完成")
	return ev, nil
}
