package criterion

import (
	"fmt"
	"strings"
)

// Rule 一条关键词规则：问题命中关键词时倾向于该维度
type Rule struct {
	Label    string
	Hint     string   // 写进分类提示词的说明
	Keywords []string // 小写，按子串匹配
}

// DefaultRules 分类规则，顺序即同分时的优先级
var DefaultRules = []Rule{
	{
		Label: "Technical",
		Hint:  "questions about tools, technologies, programming languages, frameworks, databases, architecture or technical skills",
		Keywords: []string{
			"tool", "technolog", "tech stack", "framework", "programming", "language", "database", "sql",
			"architecture", "system design", "design a", "code", "coding", "api", "debug", "deploy",
			"infrastructure", "algorithm", "cloud", "scalab", "performance", "testing",
		},
	},
	{
		Label:    "Team Player",
		Hint:     "questions about teamwork, collaboration, working with colleagues or handling team conflicts",
		Keywords: []string{"team", "collaborat", "colleague", "coworker", "co-worker", "conflict", "peer", "cross-functional", "disagree"},
	},
	{
		Label: "Culture Fit",
		Hint:  "questions about motivation, values, why this company or role, work style and logistics such as availability, relocation, notice period or salary",
		Keywords: []string{
			"motivat", "value", "why do you want", "why this", "why our", "culture", "passion", "relocat",
			"salary", "compensation", "notice period", "availability", "available to start", "start date",
			"remote", "work environment", "work style",
		},
	},
	{
		Label:    "Communication",
		Hint:     "questions about explaining, articulating, presenting or communicating ideas to others",
		Keywords: []string{"explain", "articulat", "present", "communicat", "stakeholder", "non-technical", "audience", "convince", "persuade"},
	},
	{
		Label:    "Problem Solving",
		Hint:     "questions about analytical thinking, challenges, troubleshooting or solving difficult problems",
		Keywords: []string{"problem", "analy", "challeng", "difficult", "troubleshoot", "solve", "root cause", "obstacle"},
	},
	{
		Label:    "Leadership",
		Hint:     "questions about managing, mentoring, leading people or taking ownership of outcomes",
		Keywords: []string{"lead", "manag", "mentor", "coach", "delegat", "direct report", "ownership", "supervis"},
	},
}

// rulesPrompt 只列出目录里存在的维度的规则
func rulesPrompt(rules []Rule, catalog []string) string {
	var sb strings.Builder
	for _, r := range rules {
		label, ok := Match(r.Label, catalog)
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "- %s → %s\n", r.Hint, label)
	}
	return sb.String()
}
