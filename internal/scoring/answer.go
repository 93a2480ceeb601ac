package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tidwall/gjson"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/constants"
	"hiregenai/internal/types"
)

// SourceEmptyAnswer 空回答不调用模型
const SourceEmptyAnswer = "rule:empty-answer"

// AnswerInput 单个面试回答的评分输入
type AnswerInput struct {
	QuestionNumber int
	Question       string
	Answer         string
	Criterion      string
	Job            types.JobContext
}

// answerContent 内容阶段的结论，确定后不再修改
type answerContent struct {
	MatchesQuestion bool               `json:"matchesQuestion"`
	Completeness    types.Completeness `json:"completeness"`
	Strengths       []string           `json:"strengths"`
	Gaps            []string           `json:"gaps"`
}

type answerScore struct {
	Score          int
	Reasoning      string
	Recommendation types.Recommendation
}

// AnswerScorer 面试回答评分
type AnswerScorer struct {
	engine       *Engine
	defaultLevel types.JobLevel
	now          func() time.Time
}

// NewAnswerScorer defaultLevel 为空时用 mid
func NewAnswerScorer(engine *Engine, defaultLevel string) *AnswerScorer {
	return &AnswerScorer{
		engine:       engine,
		defaultLevel: NormalizeJobLevel(defaultLevel, types.JobLevelMid),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

const answerContentPrompt = `You are an interview assessor. Analyse the candidate's answer to one interview question.
Do NOT think about a score in this step.

1. Identify the concrete skills, tools, actions and claims that are present in the answer.
2. Identify what the question asks for that is explicitly absent from the answer.

Then write:
- "strengths": full sentences grounded only in what the candidate actually said. Each sentence must cite a concrete noun from the answer (a tool, concept, action or domain).
- "gaps": full sentences. Each states the missing element, why it matters for this question, and what would have improved the answer.
Neither list may mention a score, a grade or a hiring decision.

Reply with a single JSON object and nothing else:
{"matchesQuestion": true|false, "completeness": "complete|partial|incomplete|off_topic", "strengths": ["..."], "gaps": ["..."]}`

const answerScorePrompt = `You are an interview assessor. The qualitative analysis of the answer is already fixed and is given to you below.
Assign a score that is consistent with that analysis. Do not rewrite, extend or contradict the strengths and gaps.

%s
Recommendation values: "proceed" (score 60 or above), "needs_improvement" (40-59), "insufficient" (below 40).

Reply with a single JSON object and nothing else:
{"score": 0-100, "reasoning": "two or three sentences tied to the candidate level", "recommendation": "proceed|needs_improvement|insufficient"}`

const answerSinglePrompt = `You are an interview assessor. Evaluate the candidate's answer to one interview question in two strict steps.

STEP 1 (content only, before any scoring):
- Identify the concrete skills, tools, actions and claims present in the answer, and what the question asks for that is absent.
- "strengths": full sentences grounded only in what was said, each citing a concrete noun from the answer.
- "gaps": full sentences stating the missing element, why it matters for this question, and what would have improved it.
- Neither list may mention a score.

STEP 2 (only after step 1 is final):
%s
Recommendation values: "proceed" (score 60 or above), "needs_improvement" (40-59), "insufficient" (below 40).
The score must be consistent with step 1 and must not change it.

Reply with a single JSON object and nothing else, keeping the keys in this order:
{"matchesQuestion": true|false, "completeness": "complete|partial|incomplete|off_topic", "strengths": ["..."], "gaps": ["..."], "score": 0-100, "reasoning": "...", "recommendation": "proceed|needs_improvement|insufficient"}`

// ScoreAnswer 评估一个回答。空回答直接返回 off_topic / 0 分，不调用模型。
func (a *AnswerScorer) ScoreAnswer(ctx context.Context, m model.ToolCallingChatModel, in AnswerInput) (types.AnswerEvaluation, error) {
	const op = "scoring.ScoreAnswer"
	if strings.TrimSpace(in.Question) == "" {
		return types.AnswerEvaluation{}, apperrors.NewValidationError(op, "question is required")
	}
	in.Job.Level = NormalizeJobLevel(string(in.Job.Level), a.defaultLevel)
	if strings.TrimSpace(in.Criterion) == "" {
		in.Criterion = constants.GeneralCriterion
	}

	ev := types.AnswerEvaluation{
		QuestionNumber: in.QuestionNumber,
		QuestionText:   in.Question,
		FullAnswer:     in.Answer,
		Criterion:      in.Criterion,
	}

	if strings.TrimSpace(in.Answer) == "" {
		ev.MatchesQuestion = false
		ev.Completeness = types.CompletenessOffTopic
		ev.Strengths = []string{}
		ev.Gaps = []string{"No answer was provided, so none of what the question asks for could be assessed; a response describing concrete actions, tools and outcomes is needed."}
		ev.Score = 0
		ev.Reasoning = "The candidate did not answer the question."
		ev.Recommendation = types.RecommendationInsufficient
		ev.EvaluatedAt = a.now()
		ev.Source = SourceEmptyAnswer
		return ev, nil
	}

	content, score, err := Run(ctx, a.engine, m, a.schema(in))
	if err != nil {
		return types.AnswerEvaluation{}, err
	}

	ev.MatchesQuestion = content.MatchesQuestion
	ev.Completeness = content.Completeness
	ev.Strengths = content.Strengths
	ev.Gaps = content.Gaps
	ev.Score = score.Score
	ev.Reasoning = score.Reasoning
	ev.Recommendation = score.Recommendation
	ev.EvaluatedAt = a.now()
	ev.Source = a.engine.Source()
	return ev, nil
}

func (a *AnswerScorer) schema(in AnswerInput) Schema[answerContent, answerScore] {
	question := fmt.Sprintf("Criterion: %s\nQuestion: %s\n\nCandidate answer:\n\"\"\"\n%s\n\"\"\"", in.Criterion, in.Question, in.Answer)

	return Schema[answerContent, answerScore]{
		Name: "scoring.ScoreAnswer",
		ContentPrompt: func() []*schema.Message {
			return []*schema.Message{
				schema.SystemMessage(answerContentPrompt),
				schema.UserMessage(question),
			}
		},
		ScorePrompt: func(c answerContent) []*schema.Message {
			frozen, _ := json.Marshal(c)
			return []*schema.Message{
				schema.SystemMessage(fmt.Sprintf(answerScorePrompt, rubricPrompt(in.Job.Level))),
				schema.UserMessage(jobLine(in.Job) + question + "\n\nFixed analysis:\n" + string(frozen)),
			}
		},
		SinglePrompt: func() []*schema.Message {
			return []*schema.Message{
				schema.SystemMessage(fmt.Sprintf(answerSinglePrompt, rubricPrompt(in.Job.Level))),
				schema.UserMessage(jobLine(in.Job) + question),
			}
		},
		DecodeContent: decodeAnswerContent,
		DecodeScore: func(obj gjson.Result, _ answerContent) answerScore {
			return decodeAnswerScore(obj)
		},
	}
}

func jobLine(job types.JobContext) string {
	var sb strings.Builder
	if job.Title != "" {
		sb.WriteString("Job title: " + job.Title + "\n")
	}
	if job.Company != "" {
		sb.WriteString("Company: " + job.Company + "\n")
	}
	sb.WriteString("Candidate level: " + string(job.Level) + "\n\n")
	return sb.String()
}

// decodeAnswerContent 缺失字段取默认值：matchesQuestion=true，completeness=partial，列表为空
func decodeAnswerContent(obj gjson.Result) answerContent {
	c := answerContent{
		MatchesQuestion: boolValue(obj.Get("matchesQuestion"), true),
		Completeness:    types.Completeness(enumValue(obj.Get("completeness"))),
		Strengths:       stringList(obj.Get("strengths")),
		Gaps:            stringList(obj.Get("gaps")),
	}
	if !c.Completeness.Valid() {
		c.Completeness = types.CompletenessPartial
	}
	return c
}

// decodeAnswerScore 缺失字段取默认值：score=0，recommendation=proceed
func decodeAnswerScore(obj gjson.Result) answerScore {
	s := answerScore{
		Score:          clamp(intValue(obj.Get("score"), 0), 0, 100),
		Reasoning:      strings.TrimSpace(obj.Get("reasoning").String()),
		Recommendation: types.Recommendation(enumValue(obj.Get("recommendation"))),
	}
	if !s.Recommendation.Valid() {
		s.Recommendation = types.RecommendationProceed
	}
	return s
}
