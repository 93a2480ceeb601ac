package normalizer

import (
	"regexp"
	"sort"
	"strings"
)

// defaultSkills 规范名和别名。CaseSensitive 的词只按原样匹配，避免把普通英文单词当成技能。
var defaultSkills = []skillEntry{
	{Name: "Go", Aliases: []string{"Golang"}, CaseSensitive: true},
	{Name: "Python"},
	{Name: "Java"},
	{Name: "JavaScript"},
	{Name: "TypeScript"},
	{Name: "C++"},
	{Name: "C#"},
	{Name: "Ruby"},
	{Name: "PHP"},
	{Name: "Rust", CaseSensitive: true},
	{Name: "Kotlin"},
	{Name: "Swift", CaseSensitive: true},
	{Name: "Scala"},
	{Name: "SQL"},
	{Name: "HTML"},
	{Name: "CSS"},
	{Name: "React", Aliases: []string{"React.js", "ReactJS"}},
	{Name: "Angular"},
	{Name: "Vue.js", Aliases: []string{"Vue", "VueJS"}},
	{Name: "Next.js"},
	{Name: "Node.js", Aliases: []string{"NodeJS"}},
	{Name: "Express", Aliases: []string{"Express.js"}, CaseSensitive: true},
	{Name: "Django"},
	{Name: "Flask"},
	{Name: "FastAPI"},
	{Name: "Spring Boot", Aliases: []string{"Spring Framework"}},
	{Name: ".NET", Aliases: []string{"dotnet", "ASP.NET"}},
	{Name: "GraphQL"},
	{Name: "REST", Aliases: []string{"RESTful", "REST API"}, CaseSensitive: true},
	{Name: "gRPC"},
	{Name: "PostgreSQL", Aliases: []string{"Postgres"}},
	{Name: "MySQL"},
	{Name: "MongoDB", Aliases: []string{"Mongo"}},
	{Name: "Redis"},
	{Name: "Elasticsearch"},
	{Name: "Kafka"},
	{Name: "RabbitMQ"},
	{Name: "Docker"},
	{Name: "Kubernetes", Aliases: []string{"k8s"}},
	{Name: "Terraform"},
	{Name: "Ansible"},
	{Name: "AWS", Aliases: []string{"Amazon Web Services"}},
	{Name: "GCP", Aliases: []string{"Google Cloud"}},
	{Name: "Azure"},
	{Name: "Linux"},
	{Name: "Git"},
	{Name: "CI/CD"},
	{Name: "Jenkins"},
	{Name: "GitHub Actions"},
	{Name: "Microservices"},
	{Name: "Machine Learning"},
	{Name: "Deep Learning"},
	{Name: "TensorFlow"},
	{Name: "PyTorch"},
	{Name: "Pandas"},
	{Name: "NumPy"},
	{Name: "Spark", Aliases: []string{"Apache Spark"}},
	{Name: "Hadoop"},
	{Name: "Tableau"},
	{Name: "Power BI"},
	{Name: "Excel", CaseSensitive: true},
	{Name: "Figma"},
	{Name: "Jira"},
	{Name: "Agile"},
	{Name: "Scrum"},
	{Name: "Project Management"},
	{Name: "Data Analysis"},
	{Name: "Communication"},
	{Name: "Leadership"},
	{Name: "Salesforce"},
	{Name: "SAP", CaseSensitive: true},
}

type skillEntry struct {
	Name          string
	Aliases       []string
	CaseSensitive bool
}

type skillMatcher struct {
	name    string
	pattern *regexp.Regexp
}

// SkillDictionary 按关键词词典识别技能
type SkillDictionary struct {
	matchers []skillMatcher
}

// NewSkillDictionary extra 追加到内置词典之后，重名的忽略
func NewSkillDictionary(extra ...string) *SkillDictionary {
	entries := append([]skillEntry{}, defaultSkills...)
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		seen[strings.ToLower(e.Name)] = true
	}
	for _, name := range extra {
		name = strings.TrimSpace(name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		entries = append(entries, skillEntry{Name: name})
	}

	d := &SkillDictionary{matchers: make([]skillMatcher, 0, len(entries))}
	for _, e := range entries {
		terms := append([]string{e.Name}, e.Aliases...)
		// 长的别名优先，"REST API" 先于 "REST"
		sort.SliceStable(terms, func(i, j int) bool { return len(terms[i]) > len(terms[j]) })
		quoted := make([]string, len(terms))
		for i, t := range terms {
			quoted[i] = regexp.QuoteMeta(t)
		}
		expr := `(?:^|[^A-Za-z0-9+#.])(?:` + strings.Join(quoted, "|") + `)(?:$|[^A-Za-z0-9+#])`
		if !e.CaseSensitive {
			expr = `(?i)` + expr
		}
		d.matchers = append(d.matchers, skillMatcher{name: e.Name, pattern: regexp.MustCompile(expr)})
	}
	return d
}

// Detect 返回文本中出现的技能，按首次出现的位置排序并去重
func (d *SkillDictionary) Detect(text string) []string {
	type hit struct {
		name string
		pos  int
	}
	hits := make([]hit, 0)
	for _, m := range d.matchers {
		if loc := m.pattern.FindStringIndex(text); loc != nil {
			hits = append(hits, hit{name: m.name, pos: loc[0]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.name)
	}
	return out
}
