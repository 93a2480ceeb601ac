package handler

import (
	"context"
	"io"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/pipeline"
	"hiregenai/internal/tracing"
	"hiregenai/internal/types"
)

// Evaluator pipeline.Service 实现了该接口
type Evaluator interface {
	EvaluateAnswer(ctx context.Context, in pipeline.EvaluateAnswerInput) (pipeline.EvaluateAnswerResult, error)
	ParseResume(ctx context.Context, in pipeline.ParseResumeInput) (pipeline.ParseResumeResult, error)
	EvaluateResume(ctx context.Context, in pipeline.EvaluateResumeInput) (types.ResumeEvaluation, error)
}

// EvaluationHandler 评估相关的 HTTP 接口，只负责请求解析和响应格式
type EvaluationHandler struct {
	svc      Evaluator
	validate *validator.Validate
	maxBytes int64
	logger   zerolog.Logger
}

// NewEvaluationHandler maxFileBytes 为上传文件的大小上限
func NewEvaluationHandler(svc Evaluator, maxFileBytes int64, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		svc:      svc,
		validate: newValidator(),
		maxBytes: maxFileBytes,
		logger:   logger,
	}
}

// answerError {ok:false, error, message}
func (h *EvaluationHandler) answerError(ctx context.Context, c *app.RequestContext, err error) {
	status := apperrors.HTTPStatus(err)
	tracing.RecordHTTPError(trace.SpanFromContext(ctx), err, status)
	ev := h.logger.Warn()
	if status >= consts.StatusInternalServerError {
		ev = h.logger.Error()
	}
	ev.Err(err).Str("path", string(c.Path())).Int("status", status).Msg("请求失败")
	c.JSON(status, utils.H{
		"ok":      false,
		"error":   apperrors.Code(err),
		"message": apperrors.Message(err),
	})
}

// HandleEvaluateAnswer 评估单个面试回答
// POST /api/v1/evaluate-answer
func (h *EvaluationHandler) HandleEvaluateAnswer(ctx context.Context, c *app.RequestContext) {
	const op = "handler.EvaluateAnswer"
	var req EvaluateAnswerRequest
	if err := c.BindJSON(&req); err != nil {
		h.answerError(ctx, c, apperrors.NewValidationError(op, "request body must be a JSON object"))
		return
	}
	if err := validateRequest(h.validate, op, &req); err != nil {
		h.answerError(ctx, c, err)
		return
	}
	if err := req.check(); err != nil {
		h.answerError(ctx, c, err)
		return
	}

	res, err := h.svc.EvaluateAnswer(ctx, pipeline.EvaluateAnswerInput{
		CompanyID:      req.CompanyID,
		ApplicationID:  req.ApplicationID,
		Question:       req.Question,
		Answer:         *req.Answer,
		Criterion:      req.Criterion,
		QuestionNumber: req.QuestionNumber,
		TotalQuestions: req.TotalQuestions,
		JobTitle:       req.JobTitle,
		CompanyName:    req.CompanyName,
		JobLevel:       req.JobLevel,
	})
	if err != nil {
		h.answerError(ctx, c, err)
		return
	}

	body := utils.H{
		"ok":         true,
		"evaluation": res.Evaluation,
		"criterion":  res.Assignment,
	}
	if res.EvaluationID != "" {
		body["evaluationId"] = res.EvaluationID
	}
	c.JSON(consts.StatusOK, body)
}

// HandleEvaluateResume 对照岗位描述评估申请的简历
// POST /api/v1/evaluate-resume
func (h *EvaluationHandler) HandleEvaluateResume(ctx context.Context, c *app.RequestContext) {
	const op = "handler.EvaluateResume"
	var req EvaluateResumeRequest
	if err := c.BindJSON(&req); err != nil {
		h.answerError(ctx, c, apperrors.NewValidationError(op, "request body must be a JSON object"))
		return
	}
	if err := validateRequest(h.validate, op, &req); err != nil {
		h.answerError(ctx, c, err)
		return
	}

	ev, err := h.svc.EvaluateResume(ctx, pipeline.EvaluateResumeInput{
		CompanyID:     req.CompanyID,
		ApplicationID: req.ApplicationID,
		PassThreshold: req.PassThreshold,
	})
	if err != nil {
		h.answerError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, utils.H{"ok": true, "evaluation": ev})
}

// HandleParseResume 上传并规整简历文件，提取失败时仍返回 200 和空结构
// POST /api/v1/parse-resume
func (h *EvaluationHandler) HandleParseResume(ctx context.Context, c *app.RequestContext) {
	const op = "handler.ParseResume"
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.parseError(ctx, c, apperrors.NewValidationError(op, "file is required"))
		return
	}
	if h.maxBytes > 0 && fileHeader.Size > h.maxBytes {
		h.parseError(ctx, c, apperrors.NewValidationError(op, "file is too large"))
		return
	}

	form := ParseResumeForm{
		CompanyID:     string(c.FormValue("companyId")),
		CandidateID:   string(c.FormValue("candidateId")),
		ApplicationID: string(c.FormValue("applicationId")),
	}
	if err := validateRequest(h.validate, op, &form); err != nil {
		h.parseError(ctx, c, err)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.parseError(ctx, c, apperrors.NewInternalError(op, err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		h.parseError(ctx, c, apperrors.NewInternalError(op, err))
		return
	}

	res, err := h.svc.ParseResume(ctx, pipeline.ParseResumeInput{
		CompanyID:     form.CompanyID,
		ApplicationID: form.ApplicationID,
		CandidateID:   form.CandidateID,
		FileName:      fileHeader.Filename,
		MimeType:      fileHeader.Header.Get("Content-Type"),
		Data:          data,
	})
	if err != nil {
		h.parseError(ctx, c, err)
		return
	}

	c.JSON(consts.StatusOK, utils.H{
		"success": true,
		"parsed":  res.Parsed,
		"fileMd5": res.FileMD5,
		"cached":  res.Cached,
	})
}

// parseError {error}
func (h *EvaluationHandler) parseError(ctx context.Context, c *app.RequestContext, err error) {
	status := apperrors.HTTPStatus(err)
	tracing.RecordHTTPError(trace.SpanFromContext(ctx), err, status)
	h.logger.Warn().Err(err).Int("status", status).Msg("简历解析请求失败")
	c.JSON(status, utils.H{"error": apperrors.Message(err)})
}
