package types

import "time"

// Completeness 回答完整度
type Completeness string

const (
	CompletenessComplete   Completeness = "complete"
	CompletenessPartial    Completeness = "partial"
	CompletenessIncomplete Completeness = "incomplete"
	CompletenessOffTopic   Completeness = "off_topic"
)

// Valid 是否为已知取值
func (c Completeness) Valid() bool {
	switch c {
	case CompletenessComplete, CompletenessPartial, CompletenessIncomplete, CompletenessOffTopic:
		return true
	}
	return false
}

// Recommendation 针对单个回答的建议
type Recommendation string

const (
	RecommendationProceed          Recommendation = "proceed"
	RecommendationNeedsImprovement Recommendation = "needs_improvement"
	RecommendationInsufficient     Recommendation = "insufficient"
)

// Valid 是否为已知取值
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationProceed, RecommendationNeedsImprovement, RecommendationInsufficient:
		return true
	}
	return false
}

// JobLevel 岗位级别
type JobLevel string

const (
	JobLevelJunior JobLevel = "junior"
	JobLevelMid    JobLevel = "mid"
	JobLevelSenior JobLevel = "senior"
)

// JobContext 评分时注入的岗位信息
type JobContext struct {
	Title   string   `json:"jobTitle,omitempty"`
	Company string   `json:"companyName,omitempty"`
	Level   JobLevel `json:"jobLevel,omitempty"`
}

// CriterionAssignment 问题到维度的解析结果，ResolvedLabel 一定来自目录
type CriterionAssignment struct {
	Question      string `json:"question"`
	ResolvedLabel string `json:"resolvedLabel"`
	Source        string `json:"source"` // supplied | llm | keyword | fallback | general
}

// AnswerEvaluation 单个面试回答的评估结果。
// Strengths 与 Gaps 只来自 FullAnswer，在打分之前确定。
type AnswerEvaluation struct {
	QuestionNumber  int            `json:"questionNumber"`
	QuestionText    string         `json:"questionText"`
	FullAnswer      string         `json:"fullAnswer"`
	Criterion       string         `json:"criterion"`
	MatchesQuestion bool           `json:"matchesQuestion"`
	Completeness    Completeness   `json:"completeness"`
	Strengths       []string       `json:"strengths"`
	Gaps            []string       `json:"gaps"`
	Score           int            `json:"score"`
	Reasoning       string         `json:"reasoning"`
	Recommendation  Recommendation `json:"recommendation"`
	EvaluatedAt     time.Time      `json:"evaluatedAt"`
	Source          string         `json:"source"`
}

// ResumeEvaluation 简历对照岗位描述的评估结果
type ResumeEvaluation struct {
	Overall            ResumeOverall      `json:"overall"`
	Extracted          ResumeExtracted    `json:"extracted"`
	Scores             ResumeScores       `json:"scores"`
	Eligibility        Eligibility        `json:"eligibility"`
	RiskAdjustments    []RiskAdjustment   `json:"risk_adjustments"`
	ProductionExposure ProductionExposure `json:"production_exposure"`
	TenureAnalysis     TenureAnalysis     `json:"tenure_analysis"`
	ExplainableScore   ExplainableScore   `json:"explainable_score"`
	EvaluatedAt        time.Time          `json:"evaluated_at"`
	Source             string             `json:"source"`
}

// ResumeOverall 总体结论，Qualified 由引擎根据阈值计算
type ResumeOverall struct {
	ScorePercent  int    `json:"score_percent"`
	Qualified     bool   `json:"qualified"`
	ReasonSummary string `json:"reason_summary"`
	PassThreshold int    `json:"pass_threshold"`
}

// ResumeExtracted 内容分析阶段从简历中提取的事实
type ResumeExtracted struct {
	CandidateName     string   `json:"candidate_name,omitempty"`
	CurrentTitle      string   `json:"current_title,omitempty"`
	TotalYears        float64  `json:"total_years_experience"`
	Skills            []string `json:"skills"`
	MatchedSkills     []string `json:"matched_skills"`
	MissingSkills     []string `json:"missing_skills"`
	Education         []string `json:"education"`
	Certifications    []string `json:"certifications"`
	Strengths         []string `json:"strengths"`
	Weaknesses        []string `json:"weaknesses"`
	NotableProjects   []string `json:"notable_projects"`
	RequiredSkillsJD  []string `json:"jd_required_skills"`
	PreferredSkillsJD []string `json:"jd_preferred_skills"`
}

// ScoreComponent 单项得分
type ScoreComponent struct {
	Score  int     `json:"score"`
	Weight float64 `json:"weight"`
	Notes  string  `json:"notes,omitempty"`
}

// ResumeScores 分项得分
type ResumeScores struct {
	Skills     ScoreComponent `json:"skills"`
	Experience ScoreComponent `json:"experience"`
	Education  ScoreComponent `json:"education"`
	RoleFit    ScoreComponent `json:"role_fit"`
}

// Eligibility 硬性条件
type Eligibility struct {
	MeetsMinimumExperience bool     `json:"meets_minimum_experience"`
	MeetsEducation         bool     `json:"meets_education"`
	MissingMustHaves       []string `json:"missing_must_haves"`
	Notes                  string   `json:"notes,omitempty"`
}

// RiskAdjustment 扣分项，Points 为负数或零
type RiskAdjustment struct {
	Reason string `json:"reason"`
	Points int    `json:"points"`
}

// ProductionExposure 生产环境经验
type ProductionExposure struct {
	HasProductionExperience bool     `json:"has_production_experience"`
	Evidence                []string `json:"evidence"`
}

// TenureAnalysis 任职时长分析
type TenureAnalysis struct {
	AverageTenureMonths int    `json:"average_tenure_months"`
	ShortStints         int    `json:"short_stints"`
	Notes               string `json:"notes,omitempty"`
}

// ExplainableScore 分数的可解释拆分
type ExplainableScore struct {
	Factors []ScoreFactor `json:"factors"`
	Formula string        `json:"formula"`
}

// ScoreFactor 一个加权因子的贡献
type ScoreFactor struct {
	Name         string  `json:"name"`
	Score        int     `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}
