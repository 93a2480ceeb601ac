package normalizer

import (
	"regexp"
	"strings"
	"unicode"
)

var ligatures = strings.NewReplacer(
	"ﬀ", "ff",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	"ﬅ", "st",
	"ﬆ", "st",
)

var (
	cidPattern = regexp.MustCompile(`\(cid:\d+\)`)

	// 提取器泄漏出来的 PDF 结构行
	pdfStructLine = regexp.MustCompile(`^(?:\d+ \d+ obj|endobj|stream|endstream|xref|trailer|startxref|%%EOF|%PDF-\d\.\d|BT|ET)$`)

	pdfOperators = map[string]bool{
		"Tf": true, "Td": true, "TD": true, "Tm": true, "Tj": true, "TJ": true, "T*": true, "Tc": true, "Tw": true, "TL": true,
		"re": true, "rg": true, "RG": true, "cm": true, "q": true, "Q": true, "w": true, "g": true, "G": true,
		"m": true, "l": true, "f": true, "S": true, "n": true, "h": true, "W": true, "Do": true, "BT": true, "ET": true,
		"obj": true, "endobj": true, "R": true, "<<": true, ">>": true, "[": true, "]": true,
	}

	numberToken = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)
)

// CleanText 去除控制字符和提取残留，不改变语义内容。
// 对任何输入满足 CleanText(CleanText(s)) == CleanText(s)。
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = strings.Map(mapControl, s)
	s = ligatures.Replace(s)
	for cidPattern.MatchString(s) {
		s = cidPattern.ReplaceAllString(s, "")
	}

	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, isHorizontalSpace), " ")
		if line != "" && isPDFArtifact(line) {
			continue
		}
		kept = append(kept, line)
	}

	// 最多保留一个空行
	out := make([]string, 0, len(kept))
	blank := false
	for _, line := range kept {
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func mapControl(r rune) rune {
	switch {
	case r == '\n':
		return r
	case r == '\t':
		return ' '
	case r == '\v' || r == '\f' || r == '\u2028' || r == '\u2029':
		return '\n'
	case r == '\uFFFD':
		return -1
	case unicode.Is(unicode.Cc, r), unicode.Is(unicode.Cf, r):
		return -1
	case r >= '\uE000' && r <= '\uF8FF':
		// 私有区字符一般来自嵌入字体，无法显示
		return -1
	}
	return r
}

func isHorizontalSpace(r rune) bool {
	return r != '\n' && unicode.IsSpace(r)
}

// isPDFArtifact 整行只由 PDF 操作符、数字和名字对象组成，且以操作符结尾。
// 只有一个操作符时还要求带名字对象或至少两个数字，"Q 4 2023"、"5 m" 这类正文保留。
func isPDFArtifact(line string) bool {
	if pdfStructLine.MatchString(line) {
		return true
	}
	tokens := strings.Fields(line)
	if len(tokens) < 2 || !pdfOperators[tokens[len(tokens)-1]] {
		return false
	}
	operators, numbers, names := 0, 0, 0
	for _, tok := range tokens {
		switch {
		case pdfOperators[tok]:
			operators++
		case numberToken.MatchString(tok):
			numbers++
		case len(tok) > 1 && tok[0] == '/' && !strings.ContainsAny(tok[1:], "/."):
			names++
		default:
			return false
		}
	}
	return operators > 1 || names > 0 || numbers > 1
}
