package normalizer

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"

	"hiregenai/internal/types"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\(?\d[\d ().\-]{6,}\d`)
	linkPattern  = regexp.MustCompile(`(?i)\b(?:https?://[^\s<>()"']+|(?:www\.)?(?:linkedin\.com|github\.com|gitlab\.com)/[^\s<>()"']+)`)
	yearPattern  = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)

	month     = `(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*\.?`
	datePoint = `(?:` + month + `\s+)?(?:\d{1,2}/)?(?:19|20)\d{2}`

	// 例如 "Jan 2019 - Present"、"2018 – 2021"、"03/2020 to 05/2022"
	durationPattern = regexp.MustCompile(`(?i)` + datePoint + `\s*(?:-|–|—|to|until)\s*(?:present|current|now|today|` + datePoint + `)`)

	locationLabel  = regexp.MustCompile(`(?i)^(?:location|address|based in)\s*[:\-]\s*(.+)$`)
	cityRegion     = regexp.MustCompile(`^[A-Z][A-Za-z.'\- ]{1,40},\s*[A-Z][A-Za-z.'\- ]{1,40}$`)
	languagesLabel = regexp.MustCompile(`(?i)^languages?\s*[:\-]\s*(.+)$`)

	degreePattern      = regexp.MustCompile(`(?i)\b(?:bachelor|master|ph\.?d|doctorate|mba|associate|diploma|b\.?sc|m\.?sc|b\.?s\.|m\.?s\.|b\.?a\.|m\.?a\.|b\.?tech|m\.?tech|b\.?eng|m\.?eng)`)
	institutionPattern = regexp.MustCompile(`(?i)\b(?:university|college|institute|school|academy|polytechnic)\b`)
	roleOrgSeparators  = []string{" at ", " @ ", " | ", " - ", " – ", " — ", ", "}
)

type section string

const (
	sectionHeader         section = "header"
	sectionSummary        section = "summary"
	sectionExperience     section = "experience"
	sectionEducation      section = "education"
	sectionSkills         section = "skills"
	sectionCertifications section = "certifications"
	sectionLanguages      section = "languages"
	sectionProjects       section = "projects"
	sectionOther          section = "other"
)

var headings = map[string]section{
	"summary":                     sectionSummary,
	"professional summary":        sectionSummary,
	"profile":                     sectionSummary,
	"professional profile":        sectionSummary,
	"about me":                    sectionSummary,
	"objective":                   sectionSummary,
	"career objective":            sectionSummary,
	"experience":                  sectionExperience,
	"work experience":             sectionExperience,
	"professional experience":     sectionExperience,
	"employment history":          sectionExperience,
	"employment":                  sectionExperience,
	"work history":                sectionExperience,
	"education":                   sectionEducation,
	"academic background":         sectionEducation,
	"education and training":      sectionEducation,
	"skills":                      sectionSkills,
	"technical skills":            sectionSkills,
	"core competencies":           sectionSkills,
	"certifications":              sectionCertifications,
	"certificates":                sectionCertifications,
	"licenses and certifications": sectionCertifications,
	"licenses & certifications":   sectionCertifications,
	"languages":                   sectionLanguages,
	"projects":                    sectionProjects,
	"personal projects":           sectionProjects,
	"interests":                   sectionOther,
	"hobbies":                     sectionOther,
	"references":                  sectionOther,
	"awards":                      sectionOther,
	"volunteer experience":        sectionOther,
	"publications":                sectionOther,
	"additional information":      sectionOther,
	"certifications and licenses": sectionCertifications,
	"skills and abilities":        sectionSkills,
	"education & qualifications":  sectionEducation,
}

// FieldExtractor 从清洗后的文本中启发式提取结构化字段
type FieldExtractor struct {
	skills      *SkillDictionary
	phoneRegion string
}

// NewFieldExtractor phoneRegion 为空时使用 US
func NewFieldExtractor(skills *SkillDictionary, phoneRegion string) *FieldExtractor {
	if skills == nil {
		skills = NewSkillDictionary()
	}
	if phoneRegion == "" {
		phoneRegion = "US"
	}
	return &FieldExtractor{skills: skills, phoneRegion: strings.ToUpper(phoneRegion)}
}

// Extract text 必须已经过 CleanText
func (fe *FieldExtractor) Extract(text string) types.ParsedDocument {
	doc := types.EmptyParsedDocument()
	doc.RawText = text
	if text == "" {
		return doc
	}

	sections := splitSections(text)

	doc.Email = emailPattern.FindString(text)
	doc.Phone = fe.findPhone(text)
	doc.Skills = fe.skills.Detect(text)
	doc.Links = findLinks(text)
	doc.Name = findName(sections[sectionHeader])
	doc.Location = findLocation(sections[sectionHeader], doc.Name)
	doc.Summary = joinParagraph(sections[sectionSummary], 1000)
	doc.Experience = parseExperience(sections[sectionExperience])
	doc.Education = parseEducation(sections[sectionEducation])
	doc.Certifications = listItems(sections[sectionCertifications])
	doc.Languages = findLanguages(sections[sectionLanguages], text)
	return doc
}

// splitSections 按标题行切分文本，标题前的内容归入 header
func splitSections(text string) map[section][]string {
	out := make(map[section][]string)
	current := sectionHeader
	for _, line := range strings.Split(text, "\n") {
		if s, ok := headingOf(line); ok {
			current = s
			// 保证段落存在，即使内容为空
			if _, exists := out[current]; !exists {
				out[current] = []string{}
			}
			continue
		}
		out[current] = append(out[current], line)
	}
	return out
}

func headingOf(line string) (section, bool) {
	t := strings.TrimSpace(line)
	if t == "" || len(t) > 40 {
		return "", false
	}
	t = strings.ToLower(strings.TrimRight(t, ":：-— "))
	s, ok := headings[t]
	return s, ok
}

func (fe *FieldExtractor) findPhone(text string) string {
	var fallback string
	for _, candidate := range phonePattern.FindAllString(text, 20) {
		digits := countDigits(candidate)
		if digits < 7 || digits > 15 {
			continue
		}
		if durationPattern.MatchString(candidate) {
			continue
		}
		if num, err := phonenumbers.Parse(candidate, fe.phoneRegion); err == nil && phonenumbers.IsValidNumber(num) {
			return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
		}
		if fallback == "" && digits >= 10 {
			fallback = strings.Join(strings.Fields(candidate), " ")
		}
	}
	return fallback
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func findLinks(text string) []string {
	links := []string{}
	seen := map[string]bool{}
	for _, l := range linkPattern.FindAllString(text, -1) {
		l = strings.TrimRight(l, ".,;:!?")
		key := strings.ToLower(l)
		if seen[key] {
			continue
		}
		seen[key] = true
		links = append(links, l)
	}
	return links
}

// findName 取开头几行中第一条像人名的行
func findName(header []string) string {
	checked := 0
	for _, line := range header {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		checked++
		if checked > 5 {
			break
		}
		if looksLikeName(line) {
			return line
		}
	}
	return ""
}

func looksLikeName(line string) bool {
	if len(line) > 50 || strings.ContainsAny(line, "@/:|,0123456789") {
		return false
	}
	words := strings.Fields(line)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		first := []rune(w)[0]
		if !unicode.IsUpper(first) {
			return false
		}
		for _, r := range w {
			if !unicode.IsLetter(r) && r != '.' && r != '\'' && r != '-' {
				return false
			}
		}
	}
	return true
}

func findLocation(header []string, name string) string {
	limit := len(header)
	if limit > 8 {
		limit = 8
	}
	for _, line := range header[:limit] {
		if m := locationLabel.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	for _, line := range header[:limit] {
		if line == name {
			continue
		}
		for _, seg := range splitAny(line, "|•·") {
			seg = strings.TrimSpace(seg)
			if strings.ContainsAny(seg, "@0123456789") {
				continue
			}
			if cityRegion.MatchString(seg) {
				return seg
			}
		}
	}
	return ""
}

func joinParagraph(lines []string, max int) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	out := strings.Join(parts, " ")
	if r := []rune(out); len(r) > max {
		out = string(r[:max])
	}
	return out
}

// blocks 按空行切分段落；一个段落里出现第二个时间段时也视为新条目
func blocks(lines []string) [][]string {
	var out [][]string
	var cur []string
	curHasDuration := false
	flush := func() {
		if len(cur) > 0 {
			out = append(out, cur)
		}
		cur = nil
		curHasDuration = false
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		hasDuration := durationPattern.MatchString(line)
		if hasDuration && curHasDuration && !isBullet(line) {
			flush()
		}
		if hasDuration {
			curHasDuration = true
		}
		cur = append(cur, line)
	}
	flush()
	return out
}

func parseExperience(lines []string) []types.ExperienceEntry {
	entries := []types.ExperienceEntry{}
	for _, b := range blocks(lines) {
		var e types.ExperienceEntry
		var desc []string
		headerDone := false
		for i, line := range b {
			if loc := durationPattern.FindStringIndex(line); loc != nil && e.Duration == "" {
				e.Duration = strings.TrimSpace(line[loc[0]:loc[1]])
				line = strings.Trim(strings.TrimSpace(line[:loc[0]]+" "+line[loc[1]:]), " ,|()-–—")
				if line == "" {
					continue
				}
			}
			if !headerDone && !isBullet(line) && i < 3 {
				if e.Role == "" {
					e.Role, e.Organization = splitRoleOrg(line)
				} else if e.Organization == "" {
					e.Organization = line
				} else {
					desc = append(desc, line)
				}
				continue
			}
			headerDone = true
			desc = append(desc, stripBullet(line))
		}
		e.Description = strings.Join(desc, "\n")
		if e.Role != "" || e.Organization != "" || e.Duration != "" || e.Description != "" {
			entries = append(entries, e)
		}
	}
	return entries
}

func splitRoleOrg(line string) (string, string) {
	for _, sep := range roleOrgSeparators {
		if i := strings.Index(line, sep); i > 0 {
			return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+len(sep):])
		}
	}
	return strings.TrimSpace(line), ""
}

func parseEducation(lines []string) []types.EducationEntry {
	entries := []types.EducationEntry{}
	for _, b := range blocks(lines) {
		var e types.EducationEntry
		for _, line := range b {
			line = stripBullet(line)
			if ys := yearPattern.FindAllString(line, -1); len(ys) > 0 {
				e.Year = ys[len(ys)-1]
			}
			if e.Degree == "" && degreePattern.MatchString(line) {
				e.Degree = withoutYears(line)
			} else if e.Institution == "" && institutionPattern.MatchString(line) {
				e.Institution = withoutYears(line)
			}
		}
		if e.Degree == "" && e.Institution == "" && len(b) > 0 {
			e.Institution = stripBullet(b[0])
		}
		// 学位和学校在同一行时拆开
		if e.Degree != "" && e.Degree == e.Institution {
			e.Degree, e.Institution = splitRoleOrg(e.Degree)
		}
		entries = append(entries, e)
	}
	return entries
}

func withoutYears(line string) string {
	out := strings.TrimSpace(yearPattern.ReplaceAllString(line, ""))
	out = strings.TrimRight(out, " ,;|()-–—")
	if out == "" {
		return line
	}
	return out
}

func listItems(lines []string) []string {
	items := []string{}
	for _, l := range lines {
		if l = stripBullet(l); l != "" {
			items = append(items, l)
		}
	}
	return items
}

func findLanguages(sectionLines []string, text string) []string {
	var raw []string
	if len(sectionLines) > 0 {
		for _, l := range sectionLines {
			raw = append(raw, splitAny(stripBullet(l), ",;|•·")...)
		}
	} else {
		for _, line := range strings.Split(text, "\n") {
			if m := languagesLabel.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				raw = append(raw, splitAny(m[1], ",;|•·")...)
				break
			}
		}
	}
	out := []string{}
	seen := map[string]bool{}
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" || seen[strings.ToLower(r)] {
			continue
		}
		seen[strings.ToLower(r)] = true
		out = append(out, r)
	}
	return out
}

func splitAny(s, seps string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return strings.ContainsRune(seps, r) })
}

func isBullet(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "•") || strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ") ||
		strings.HasPrefix(t, "▪") || strings.HasPrefix(t, "◦") || strings.HasPrefix(t, "–")
}

func stripBullet(line string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "•-*▪◦–·"))
}
