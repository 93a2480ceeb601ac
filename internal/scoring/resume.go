package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/types"
)

// DefaultPassThreshold 调用方未指定阈值时使用
const DefaultPassThreshold = 60

// 默认权重，模型没有给出权重时使用
var defaultWeights = map[string]float64{
	"skills":     0.4,
	"experience": 0.3,
	"education":  0.1,
	"role_fit":   0.2,
}

var componentOrder = []string{"skills", "experience", "education", "role_fit"}

// resumeContent 内容阶段：事实、硬性条件、生产经验、任职时长
type resumeContent struct {
	Extracted          types.ResumeExtracted    `json:"extracted"`
	Eligibility        types.Eligibility        `json:"eligibility"`
	ProductionExposure types.ProductionExposure `json:"production_exposure"`
	TenureAnalysis     types.TenureAnalysis     `json:"tenure_analysis"`
}

type resumeScore struct {
	Scores           types.ResumeScores
	RiskAdjustments  []types.RiskAdjustment
	ScorePercent     int
	ReasonSummary    string
	ExplainableScore types.ExplainableScore
}

// ResumeScorer 简历对照岗位描述评分
type ResumeScorer struct {
	engine           *Engine
	maxTokens        int
	maxResumeChars   int
	defaultThreshold int
	now              func() time.Time
}

// ResumeOption 定义配置选项函数
type ResumeOption func(*ResumeScorer)

// WithResumeMaxTokens 简历评估每阶段 token 上限
func WithResumeMaxTokens(n int) ResumeOption {
	return func(r *ResumeScorer) {
		if n > 0 {
			r.maxTokens = n
		}
	}
}

// WithMaxResumeChars 简历文本超出部分截断
func WithMaxResumeChars(n int) ResumeOption {
	return func(r *ResumeScorer) {
		if n > 0 {
			r.maxResumeChars = n
		}
	}
}

// WithDefaultPassThreshold passThreshold 为 0 时使用
func WithDefaultPassThreshold(n int) ResumeOption {
	return func(r *ResumeScorer) {
		if n > 0 && n <= 100 {
			r.defaultThreshold = n
		}
	}
}

// NewResumeScorer 创建简历评分器
func NewResumeScorer(engine *Engine, opts ...ResumeOption) *ResumeScorer {
	r := &ResumeScorer{
		engine:           engine,
		maxTokens:        2000,
		maxResumeChars:   20000,
		defaultThreshold: DefaultPassThreshold,
		now:              func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const resumeContentPrompt = `You are a senior technical recruiter. Compare the candidate resume with the job description.
Do NOT score the candidate in this step. Only record facts that are supported by the resume text.

Reply with a single JSON object and nothing else:
{
  "extracted": {
    "candidate_name": "", "current_title": "", "total_years_experience": 0,
    "skills": [], "matched_skills": [], "missing_skills": [],
    "education": [], "certifications": [],
    "strengths": ["full sentences citing concrete resume details"],
    "weaknesses": ["full sentences naming what the job needs and the resume lacks"],
    "notable_projects": [], "jd_required_skills": [], "jd_preferred_skills": []
  },
  "eligibility": {"meets_minimum_experience": true, "meets_education": true, "missing_must_haves": [], "notes": ""},
  "production_exposure": {"has_production_experience": true, "evidence": []},
  "tenure_analysis": {"average_tenure_months": 0, "short_stints": 0, "notes": ""}
}`

const resumeScorePrompt = `You are a senior technical recruiter. The factual analysis of the resume is already fixed and is given to you below.
Score the candidate consistently with that analysis. Do not add or remove strengths or weaknesses.

Rules:
- Score each component from 0 to 100: skills, experience, education, role_fit. Weights should sum to 1.
- risk_adjustments lists deductions (points are zero or negative), for example short tenures or missing must-haves.
- score_percent is the weighted component score plus the risk adjustments, between 0 and 100.
- A missing must-have requirement keeps score_percent below 40.

Reply with a single JSON object and nothing else:
{
  "scores": {
    "skills": {"score": 0, "weight": 0.4, "notes": ""},
    "experience": {"score": 0, "weight": 0.3, "notes": ""},
    "education": {"score": 0, "weight": 0.1, "notes": ""},
    "role_fit": {"score": 0, "weight": 0.2, "notes": ""}
  },
  "risk_adjustments": [{"reason": "", "points": 0}],
  "overall": {"score_percent": 0, "reason_summary": "at most three sentences"},
  "explainable_score": {"factors": [{"name": "", "score": 0, "weight": 0, "contribution": 0}], "formula": ""}
}`

// 只约束结构类型，字段都可以缺失
const resumeContentSchema = `{
  "type": "object",
  "properties": {
    "extracted": {
      "type": "object",
      "properties": {
        "total_years_experience": {"type": ["number", "string"]},
        "skills": {"type": ["array", "string"]},
        "matched_skills": {"type": ["array", "string"]},
        "missing_skills": {"type": ["array", "string"]},
        "strengths": {"type": ["array", "string"]},
        "weaknesses": {"type": ["array", "string"]}
      }
    },
    "eligibility": {"type": "object"},
    "production_exposure": {"type": "object"},
    "tenure_analysis": {"type": "object"}
  }
}`

const resumeScoreSchema = `{
  "type": "object",
  "definitions": {
    "component": {
      "type": "object",
      "properties": {
        "score": {"type": ["number", "string"]},
        "weight": {"type": ["number", "string"]}
      }
    }
  },
  "properties": {
    "scores": {
      "type": "object",
      "properties": {
        "skills": {"$ref": "#/definitions/component"},
        "experience": {"$ref": "#/definitions/component"},
        "education": {"$ref": "#/definitions/component"},
        "role_fit": {"$ref": "#/definitions/component"}
      }
    },
    "risk_adjustments": {"type": "array", "items": {"type": "object"}},
    "overall": {
      "type": "object",
      "properties": {"score_percent": {"type": ["number", "string"]}}
    },
    "explainable_score": {
      "type": "object",
      "properties": {"factors": {"type": "array", "items": {"type": "object"}}}
    }
  }
}`

var (
	contentSchemaLoader = gojsonschema.NewStringLoader(resumeContentSchema)
	scoreSchemaLoader   = gojsonschema.NewStringLoader(resumeScoreSchema)
)

// validateResumeObject 内容阶段和分数阶段分别校验；single 同时校验两者
func validateResumeObject(phase, obj string) error {
	const op = "scoring.ScoreResume"
	var loaders []gojsonschema.JSONLoader
	switch phase {
	case "content":
		loaders = []gojsonschema.JSONLoader{contentSchemaLoader}
	case "score":
		loaders = []gojsonschema.JSONLoader{scoreSchemaLoader}
	default:
		loaders = []gojsonschema.JSONLoader{contentSchemaLoader, scoreSchemaLoader}
	}
	for _, l := range loaders {
		result, err := gojsonschema.Validate(l, gojsonschema.NewStringLoader(obj))
		if err != nil {
			return apperrors.NewParseError(op, err.Error())
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				msgs = append(msgs, desc.Field()+": "+desc.Description())
			}
			return apperrors.NewParseError(op, "model response has unexpected shape: "+strings.Join(msgs, "; "))
		}
	}
	return nil
}

// ScoreResume 对照岗位描述评估简历，Qualified 按 passThreshold 本地计算
func (r *ResumeScorer) ScoreResume(ctx context.Context, m model.ToolCallingChatModel, resumeText, jobDescription string, passThreshold int) (types.ResumeEvaluation, error) {
	const op = "scoring.ScoreResume"
	if strings.TrimSpace(resumeText) == "" {
		return types.ResumeEvaluation{}, apperrors.NewValidationError(op, "resume text is required")
	}
	if strings.TrimSpace(jobDescription) == "" {
		return types.ResumeEvaluation{}, apperrors.NewValidationError(op, "job description is required")
	}
	if passThreshold < 0 || passThreshold > 100 {
		return types.ResumeEvaluation{}, apperrors.NewValidationError(op, "passThreshold must be between 0 and 100")
	}
	if passThreshold == 0 {
		passThreshold = r.defaultThreshold
	}
	if runes := []rune(resumeText); len(runes) > r.maxResumeChars {
		resumeText = string(runes[:r.maxResumeChars])
	}

	material := fmt.Sprintf("Job description:\n\"\"\"\n%s\n\"\"\"\n\nCandidate resume:\n\"\"\"\n%s\n\"\"\"", jobDescription, resumeText)
	s := Schema[resumeContent, resumeScore]{
		Name:      op,
		MaxTokens: r.maxTokens,
		ContentPrompt: func() []*schema.Message {
			return []*schema.Message{
				schema.SystemMessage(resumeContentPrompt),
				schema.UserMessage(material),
			}
		},
		ScorePrompt: func(c resumeContent) []*schema.Message {
			frozen, _ := json.Marshal(c)
			return []*schema.Message{
				schema.SystemMessage(resumeScorePrompt),
				schema.UserMessage(material + "\n\nFixed analysis:\n" + string(frozen)),
			}
		},
		SinglePrompt: func() []*schema.Message {
			return []*schema.Message{
				schema.SystemMessage(resumeContentPrompt + "\n\nAfter the analysis is final, add the scoring keys to the same object.\n\n" + resumeScorePrompt),
				schema.UserMessage(material),
			}
		},
		Validate:      validateResumeObject,
		DecodeContent: decodeResumeContent,
		DecodeScore:   decodeResumeScore,
	}

	content, score, err := Run(ctx, r.engine, m, s)
	if err != nil {
		return types.ResumeEvaluation{}, err
	}

	return types.ResumeEvaluation{
		Overall: types.ResumeOverall{
			ScorePercent:  score.ScorePercent,
			Qualified:     score.ScorePercent >= passThreshold,
			ReasonSummary: score.ReasonSummary,
			PassThreshold: passThreshold,
		},
		Extracted:          content.Extracted,
		Scores:             score.Scores,
		Eligibility:        content.Eligibility,
		RiskAdjustments:    score.RiskAdjustments,
		ProductionExposure: content.ProductionExposure,
		TenureAnalysis:     content.TenureAnalysis,
		ExplainableScore:   score.ExplainableScore,
		EvaluatedAt:        r.now(),
		Source:             r.engine.Source(),
	}, nil
}

func decodeResumeContent(obj gjson.Result) resumeContent {
	ex := obj.Get("extracted")
	el := obj.Get("eligibility")
	pe := obj.Get("production_exposure")
	ta := obj.Get("tenure_analysis")
	return resumeContent{
		Extracted: types.ResumeExtracted{
			CandidateName:     strings.TrimSpace(ex.Get("candidate_name").String()),
			CurrentTitle:      strings.TrimSpace(ex.Get("current_title").String()),
			TotalYears:        math.Max(0, floatValue(ex.Get("total_years_experience"), 0)),
			Skills:            stringList(ex.Get("skills")),
			MatchedSkills:     stringList(ex.Get("matched_skills")),
			MissingSkills:     stringList(ex.Get("missing_skills")),
			Education:         stringList(ex.Get("education")),
			Certifications:    stringList(ex.Get("certifications")),
			Strengths:         stringList(ex.Get("strengths")),
			Weaknesses:        stringList(ex.Get("weaknesses")),
			NotableProjects:   stringList(ex.Get("notable_projects")),
			RequiredSkillsJD:  stringList(ex.Get("jd_required_skills")),
			PreferredSkillsJD: stringList(ex.Get("jd_preferred_skills")),
		},
		Eligibility: types.Eligibility{
			MeetsMinimumExperience: boolValue(el.Get("meets_minimum_experience"), true),
			MeetsEducation:         boolValue(el.Get("meets_education"), true),
			MissingMustHaves:       stringList(el.Get("missing_must_haves")),
			Notes:                  strings.TrimSpace(el.Get("notes").String()),
		},
		ProductionExposure: types.ProductionExposure{
			HasProductionExperience: boolValue(pe.Get("has_production_experience"), false),
			Evidence:                stringList(pe.Get("evidence")),
		},
		TenureAnalysis: types.TenureAnalysis{
			AverageTenureMonths: max(0, intValue(ta.Get("average_tenure_months"), 0)),
			ShortStints:         max(0, intValue(ta.Get("short_stints"), 0)),
			Notes:               strings.TrimSpace(ta.Get("notes").String()),
		},
	}
}

// decodeResumeScore 缺失的总分由分项加权和扣分项推算，缺失的可解释拆分由分项生成
func decodeResumeScore(obj gjson.Result, _ resumeContent) resumeScore {
	s := resumeScore{
		RiskAdjustments: []types.RiskAdjustment{},
		ReasonSummary:   strings.TrimSpace(obj.Get("overall.reason_summary").String()),
	}

	components := map[string]types.ScoreComponent{}
	for _, name := range componentOrder {
		c := obj.Get("scores." + name)
		weight := floatValue(c.Get("weight"), 0)
		if weight <= 0 || weight > 1 {
			weight = defaultWeights[name]
		}
		components[name] = types.ScoreComponent{
			Score:  clamp(intValue(c.Get("score"), 0), 0, 100),
			Weight: weight,
			Notes:  strings.TrimSpace(c.Get("notes").String()),
		}
	}
	s.Scores = types.ResumeScores{
		Skills:     components["skills"],
		Experience: components["experience"],
		Education:  components["education"],
		RoleFit:    components["role_fit"],
	}

	penalty := 0
	for _, item := range obj.Get("risk_adjustments").Array() {
		reason := strings.TrimSpace(item.Get("reason").String())
		points := intValue(item.Get("points"), 0)
		if points > 0 {
			points = -points
		}
		if reason == "" && points == 0 {
			continue
		}
		s.RiskAdjustments = append(s.RiskAdjustments, types.RiskAdjustment{Reason: reason, Points: points})
		penalty += points
	}

	weighted, totalWeight := 0.0, 0.0
	for _, name := range componentOrder {
		c := components[name]
		weighted += float64(c.Score) * c.Weight
		totalWeight += c.Weight
	}
	computed := clamp(int(math.Round(weighted/totalWeight))+penalty, 0, 100)
	s.ScorePercent = clamp(intValue(obj.Get("overall.score_percent"), computed), 0, 100)

	for _, f := range obj.Get("explainable_score.factors").Array() {
		name := strings.TrimSpace(f.Get("name").String())
		if name == "" {
			continue
		}
		s.ExplainableScore.Factors = append(s.ExplainableScore.Factors, types.ScoreFactor{
			Name:         name,
			Score:        clamp(intValue(f.Get("score"), 0), 0, 100),
			Weight:       floatValue(f.Get("weight"), 0),
			Contribution: floatValue(f.Get("contribution"), 0),
		})
	}
	s.ExplainableScore.Formula = strings.TrimSpace(obj.Get("explainable_score.formula").String())
	if len(s.ExplainableScore.Factors) == 0 {
		s.ExplainableScore = explain(components, penalty, totalWeight)
	}
	return s
}

// explain 由分项得分生成可解释拆分
func explain(components map[string]types.ScoreComponent, penalty int, totalWeight float64) types.ExplainableScore {
	out := types.ExplainableScore{Factors: make([]types.ScoreFactor, 0, len(componentOrder))}
	terms := make([]string, 0, len(componentOrder)+1)
	for _, name := range componentOrder {
		c := components[name]
		contribution := math.Round(float64(c.Score)*c.Weight/totalWeight*100) / 100
		out.Factors = append(out.Factors, types.ScoreFactor{
			Name:         name,
			Score:        c.Score,
			Weight:       c.Weight,
			Contribution: contribution,
		})
		terms = append(terms, fmt.Sprintf("%s %d×%.2f", name, c.Score, c.Weight))
	}
	out.Formula = strings.Join(terms, " + ")
	if penalty != 0 {
		out.Formula += fmt.Sprintf(" %d (risk)", penalty)
	}
	return out
}
