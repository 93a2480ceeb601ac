package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"hiregenai/internal/apperrors"
)

// EvaluateAnswerRequest POST /api/v1/evaluate-answer。
// Answer 必须出现，空字符串按空回答评估
type EvaluateAnswerRequest struct {
	Question       string  `json:"question" validate:"required,max=4000"`
	Answer         *string `json:"answer" validate:"required,max=20000"`
	Criterion      string  `json:"criterion,omitempty" validate:"max=100"`
	QuestionNumber int     `json:"questionNumber,omitempty" validate:"gte=0"`
	TotalQuestions int     `json:"totalQuestions,omitempty" validate:"gte=0"`
	JobTitle       string  `json:"jobTitle,omitempty" validate:"max=200"`
	CompanyName    string  `json:"companyName,omitempty" validate:"max=200"`
	CompanyID      string  `json:"companyId" validate:"required,max=64"`
	ApplicationID  string  `json:"applicationId,omitempty" validate:"max=64"`
	JobLevel       string  `json:"jobLevel,omitempty" validate:"max=32"`
}

// EvaluateResumeRequest POST /api/v1/evaluate-resume
type EvaluateResumeRequest struct {
	CompanyID     string `json:"companyId" validate:"required,max=64"`
	ApplicationID string `json:"applicationId" validate:"required,max=64"`
	PassThreshold int    `json:"passThreshold,omitempty" validate:"gte=0,lte=100"`
}

// ParseResumeForm POST /api/v1/parse-resume 的表单字段，文件单独读取
type ParseResumeForm struct {
	CompanyID     string `json:"companyId" validate:"max=64"`
	CandidateID   string `json:"candidateId" validate:"max=64"`
	ApplicationID string `json:"applicationId" validate:"max=64"`
}

// newValidator 错误信息中使用 json 字段名
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest 把校验失败转换为 ValidationError
func validateRequest(v *validator.Validate, op string, req interface{}) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewValidationError(op, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		case "gte", "lte":
			msgs = append(msgs, fmt.Sprintf("%s is out of range", fe.Field()))
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return apperrors.NewValidationError(op, strings.Join(msgs, "; "))
}

func (r *EvaluateAnswerRequest) check() error {
	if r.TotalQuestions > 0 && r.QuestionNumber > r.TotalQuestions {
		return apperrors.NewValidationError("handler.EvaluateAnswer", "questionNumber must not exceed totalQuestions")
	}
	return nil
}
