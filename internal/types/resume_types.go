package types

// ExperienceEntry 简历中的一段工作经历，字段都可能缺失
type ExperienceEntry struct {
	Role         string `json:"role,omitempty"`
	Organization string `json:"organization,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Description  string `json:"description,omitempty"`
}

// EducationEntry 简历中的一段教育经历
type EducationEntry struct {
	Degree      string `json:"degree,omitempty"`
	Institution string `json:"institution,omitempty"`
	Year        string `json:"year,omitempty"`
}

// ParsedDocument 上传简历的规整结果。
// RawText 总是存在，提取失败时为空字符串；其余字段尽力而为。
type ParsedDocument struct {
	RawText        string            `json:"rawText"`
	Name           string            `json:"name,omitempty"`
	Email          string            `json:"email,omitempty"`
	Phone          string            `json:"phone,omitempty"`
	Location       string            `json:"location,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	Skills         []string          `json:"skills"`
	Experience     []ExperienceEntry `json:"experience"`
	Education      []EducationEntry  `json:"education"`
	Certifications []string          `json:"certifications"`
	Languages      []string          `json:"languages"`
	Links          []string          `json:"links"`
}

// EmptyParsedDocument 提取失败时返回的空结果，切片字段均为非 nil
func EmptyParsedDocument() ParsedDocument {
	return ParsedDocument{
		Skills:         []string{},
		Experience:     []ExperienceEntry{},
		Education:      []EducationEntry{},
		Certifications: []string{},
		Languages:      []string{},
		Links:          []string{},
	}
}

// IsEmpty 提取是否走了回退路径
func (d ParsedDocument) IsEmpty() bool {
	return d.RawText == ""
}

// ForTransport 返回接口响应使用的副本，rawText 截断为前 limit 个字符
func (d ParsedDocument) ForTransport(limit int) ParsedDocument {
	out := d
	if limit > 0 {
		runes := []rune(d.RawText)
		if len(runes) > limit {
			out.RawText = string(runes[:limit])
		}
	}
	out.Skills = cloneStrings(d.Skills)
	out.Certifications = cloneStrings(d.Certifications)
	out.Languages = cloneStrings(d.Languages)
	out.Links = cloneStrings(d.Links)
	out.Experience = append([]ExperienceEntry{}, d.Experience...)
	out.Education = append([]EducationEntry{}, d.Education...)
	return out
}

func cloneStrings(in []string) []string {
	return append([]string{}, in...)
}
