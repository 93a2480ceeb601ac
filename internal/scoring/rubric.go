package scoring

import (
	"fmt"
	"strings"

	"hiregenai/internal/types"
)

// Band 评分区间，Min 为下限（含）
type Band struct {
	Min   int
	Label string
	Guide string
}

// Bands 从高到低排列
var Bands = []Band{
	{90, "exceptional", "complete, specific and clearly above what the level expects"},
	{80, "strong", "specific and well structured with only minor omissions"},
	{70, "good", "relevant and concrete, a few gaps in depth or evidence"},
	{60, "adequate", "addresses the question but stays general in places"},
	{50, "below expectations", "partially relevant, important elements are missing"},
	{40, "weak", "mostly vague or only loosely related to the question"},
	{0, "poor", "off topic, empty or contradicts the question"},
}

// BandFor 分数所在区间
func BandFor(score int) Band {
	for _, b := range Bands {
		if score >= b.Min {
			return b
		}
	}
	return Bands[len(Bands)-1]
}

var levelExpectations = map[types.JobLevel]string{
	types.JobLevelJunior: `Candidate level: JUNIOR.
- Reward clear reasoning, curiosity and willingness to learn.
- Textbook knowledge applied correctly is enough for the "good" band.
- Do not penalise the absence of ownership or large-scale impact.`,
	types.JobLevelMid: `Candidate level: MID.
- Expect hands-on experience with concrete tools and situations.
- Balance technical depth with how the candidate worked with others.
- Some ownership language is expected for the "strong" band.`,
	types.JobLevelSenior: `Candidate level: SENIOR.
- Expect ownership, measurable impact and trade-off reasoning.
- Look for first-person contribution ("I designed", "I led"), not only team outcomes.
- Generic or purely theoretical answers belong in the "adequate" band or below.`,
}

// NormalizeJobLevel 小写化，未知或为空时用 def，def 也无效时为 mid
func NormalizeJobLevel(level string, def types.JobLevel) types.JobLevel {
	l := types.JobLevel(strings.ToLower(strings.TrimSpace(level)))
	if _, ok := levelExpectations[l]; ok {
		return l
	}
	if _, ok := levelExpectations[def]; ok {
		return def
	}
	return types.JobLevelMid
}

// rubricPrompt 分数阶段使用的评分说明
func rubricPrompt(level types.JobLevel) string {
	var sb strings.Builder
	sb.WriteString("Score the answer from 0 to 100 using these bands:\n")
	for i, b := range Bands {
		if i == 0 {
			fmt.Fprintf(&sb, "- %d-100 %s: %s\n", b.Min, b.Label, b.Guide)
			continue
		}
		if b.Min == 0 {
			fmt.Fprintf(&sb, "- below %d %s: %s\n", Bands[i-1].Min, b.Label, b.Guide)
			continue
		}
		fmt.Fprintf(&sb, "- %d-%d %s: %s\n", b.Min, Bands[i-1].Min-1, b.Label, b.Guide)
	}
	sb.WriteString("\n")
	sb.WriteString(levelExpectations[NormalizeJobLevel(string(level), types.JobLevelMid)])
	sb.WriteString("\n")
	return sb.String()
}
