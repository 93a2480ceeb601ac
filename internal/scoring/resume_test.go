package scoring

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hiregenai/internal/apperrors"
	"hiregenai/internal/llm"
)

const (
	sampleJD     = "Senior Go engineer. Must have 5+ years of Go, PostgreSQL and Kubernetes. Kafka is a plus."
	sampleResume = "Jane Doe. Senior Engineer at Acme Corp 2019-present. Built Go services on PostgreSQL, deployed to Kubernetes."

	resumeContentReply = `{
  "extracted": {
    "candidate_name": "Jane Doe",
    "current_title": "Senior Engineer",
    "total_years_experience": "6",
    "skills": ["Go", "PostgreSQL", "Kubernetes"],
    "matched_skills": ["Go", "PostgreSQL", "Kubernetes"],
    "missing_skills": ["Kafka"],
    "strengths": ["Jane built Go services on PostgreSQL and deployed them to Kubernetes at Acme Corp."],
    "weaknesses": ["The resume does not mention Kafka, which the job lists as a plus."]
  },
  "eligibility": {"meets_minimum_experience": true, "meets_education": true, "missing_must_haves": []},
  "production_exposure": {"has_production_experience": true, "evidence": ["deployed to Kubernetes"]},
  "tenure_analysis": {"average_tenure_months": 72, "short_stints": 0}
}`
)

func newResumeScorer(t *testing.T, opts ...ResumeOption) *ResumeScorer {
	t.Helper()
	e, err := NewEngine()
	require.NoError(t, err)
	r := NewResumeScorer(e, opts...)
	r.now = func() time.Time { return fixedTime }
	return r
}

func TestScoreResumeTwoPass(t *testing.T) {
	scoreReply := `{
  "scores": {
    "skills": {"score": 85, "weight": 0.4},
    "experience": {"score": 80, "weight": 0.3},
    "education": {"score": 60, "weight": 0.1},
    "role_fit": {"score": 75, "weight": 0.2}
  },
  "risk_adjustments": [{"reason": "No Kafka experience", "points": -2}],
  "overall": {"score_percent": 78, "reason_summary": "Strong Go and Kubernetes background."},
  "explainable_score": {"factors": [{"name": "skills", "score": 85, "weight": 0.4, "contribution": 34}], "formula": "sum(score*weight) + risk"}
}`

	tests := []struct {
		threshold int
		qualified bool
	}{
		{70, true},
		{78, true},
		{80, false},
	}
	for _, tt := range tests {
		mock := llm.NewMockChatClientSequential(
			llm.MockResponse{Content: resumeContentReply},
			llm.MockResponse{Content: scoreReply},
		)
		ev, err := newResumeScorer(t).ScoreResume(context.Background(), mock, sampleResume, sampleJD, tt.threshold)
		require.NoError(t, err)

		assert.Equal(t, 78, ev.Overall.ScorePercent)
		assert.Equal(t, tt.qualified, ev.Overall.Qualified, "threshold %d", tt.threshold)
		assert.Equal(t, tt.threshold, ev.Overall.PassThreshold)
		assert.Equal(t, "Strong Go and Kubernetes background.", ev.Overall.ReasonSummary)
		assert.Equal(t, "Jane Doe", ev.Extracted.CandidateName)
		assert.InDelta(t, 6.0, ev.Extracted.TotalYears, 1e-9)
		assert.Equal(t, []string{"Kafka"}, ev.Extracted.MissingSkills)
		assert.True(t, ev.ProductionExposure.HasProductionExperience)
		assert.Equal(t, 72, ev.TenureAnalysis.AverageTenureMonths)
		assert.Equal(t, 85, ev.Scores.Skills.Score)
		assert.Len(t, ev.RiskAdjustments, 1)
		assert.Equal(t, -2, ev.RiskAdjustments[0].Points)
		assert.Len(t, ev.ExplainableScore.Factors, 1)
		assert.Equal(t, "llm:two_pass", ev.Source)
		assert.Equal(t, fixedTime, ev.EvaluatedAt)

		assert.Contains(t, mock.Calls[1][1].Content, "Fixed analysis", "分数阶段收到内容阶段的结论")
		assert.Contains(t, mock.Calls[1][1].Content, "does not mention Kafka")
		opts := mock.Options[0]
		require.NotNil(t, opts.MaxTokens)
		assert.Equal(t, 2000, *opts.MaxTokens)
	}
}

func TestScoreResumeComputesMissingOverall(t *testing.T) {
	mock := llm.NewMockChatClientSequential(
		llm.MockResponse{Content: resumeContentReply},
		llm.MockResponse{Content: `{
  "scores": {
    "skills": {"score": 80},
    "experience": {"score": 70},
    "education": {"score": 60},
    "role_fit": {"score": 90}
  },
  "risk_adjustments": [{"reason": "Short stint", "points": 5}]
}`},
	)
	ev, err := newResumeScorer(t).ScoreResume(context.Background(), mock, sampleResume, sampleJD, 0)
	require.NoError(t, err)

	// 80*0.4 + 70*0.3 + 60*0.1 + 90*0.2 = 77，扣 5 分
	assert.Equal(t, 72, ev.Overall.ScorePercent)
	assert.Equal(t, DefaultPassThreshold, ev.Overall.PassThreshold)
	assert.True(t, ev.Overall.Qualified)
	assert.Equal(t, -5, ev.RiskAdjustments[0].Points, "扣分项统一为负数")
	assert.InDelta(t, 0.4, ev.Scores.Skills.Weight, 1e-9)

	require.Len(t, ev.ExplainableScore.Factors, 4)
	assert.Equal(t, "skills", ev.ExplainableScore.Factors[0].Name)
	assert.InDelta(t, 32.0, ev.ExplainableScore.Factors[0].Contribution, 1e-9)
	assert.True(t, strings.HasSuffix(ev.ExplainableScore.Formula, "-5 (risk)"), ev.ExplainableScore.Formula)
}

func TestScoreResumeRejectsUnexpectedShape(t *testing.T) {
	mock := llm.NewMockChatClient(`{"extracted": "Jane is great", "eligibility": []}`, nil)
	_, err := newResumeScorer(t).ScoreResume(context.Background(), mock, sampleResume, sampleJD, 60)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrParse)
	assert.Contains(t, apperrors.Message(err), "unexpected shape")
	assert.Equal(t, 1, mock.CallCount(), "内容阶段失败后不再打分")
}

func TestScoreResumeValidation(t *testing.T) {
	mock := llm.NewMockChatClient("{}", nil)
	r := newResumeScorer(t)

	_, err := r.ScoreResume(context.Background(), mock, " ", sampleJD, 60)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = r.ScoreResume(context.Background(), mock, sampleResume, "", 60)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = r.ScoreResume(context.Background(), mock, sampleResume, sampleJD, 150)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Equal(t, 0, mock.CallCount())
}

func TestScoreResumeTruncatesLongResume(t *testing.T) {
	mock := llm.NewMockChatClientSequential(
		llm.MockResponse{Content: resumeContentReply},
		llm.MockResponse{Content: `{"overall": {"score_percent": 50}}`},
	)
	long := strings.Repeat("简", 300)
	ev, err := newResumeScorer(t, WithMaxResumeChars(100), WithDefaultPassThreshold(40)).
		ScoreResume(context.Background(), mock, long, sampleJD, 0)
	require.NoError(t, err)

	assert.Equal(t, 40, ev.Overall.PassThreshold)
	assert.True(t, ev.Overall.Qualified)
	user := mock.Calls[0][1].Content
	assert.Contains(t, user, strings.Repeat("简", 100))
	assert.NotContains(t, user, strings.Repeat("简", 101))
}
