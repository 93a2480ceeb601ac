package scoring

import (
	"strings"

	"github.com/tidwall/gjson"

	"hiregenai/internal/apperrors"
)

// extractObject 返回文本中第一个括号平衡的 {...} 片段，字符串字面量里的括号不计数
func extractObject(text string) (string, bool) {
	text = strings.TrimPrefix(text, "\ufeff")
	start, end, ok := objectSpan(text, 0)
	if !ok {
		return "", false
	}
	return text[start:end], true
}

// objectSpan 从 from 开始找下一个括号平衡的片段，返回 text[start:end]
func objectSpan(text string, from int) (int, int, bool) {
	for start := indexFrom(text, from, '{'); start >= 0; start = indexFrom(text, start+1, '{') {
		depth, inStr, escaped := 0, false, false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inStr {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inStr = false
				}
				continue
			}
			switch c {
			case '"':
				inStr = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return start, i + 1, true
				}
			}
		}
		// 没有闭合：可能是字符串里的引号不平衡，退回到不区分字符串的计数
		if end := naiveClose(text, start); end > 0 {
			return start, end, true
		}
	}
	return 0, 0, false
}

func indexFrom(text string, from int, c byte) int {
	if from >= len(text) {
		return -1
	}
	i := strings.IndexByte(text[from:], c)
	if i < 0 {
		return -1
	}
	return from + i
}

func naiveClose(text string, start int) int {
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// parseObject 依次尝试每个括号平衡的片段，返回第一个合法的 JSON 对象；
// 片段不合法时先修复一次字符串内未转义的引号。"{the} answer is {...}" 取后者
func parseObject(op, raw string) (string, error) {
	raw = strings.TrimPrefix(raw, "\ufeff")
	found := false
	for pos := 0; ; {
		start, end, ok := objectSpan(raw, pos)
		if !ok {
			break
		}
		found = true
		span := strings.ToValidUTF8(raw[start:end], "")
		if gjson.Valid(span) {
			return span, nil
		}
		if fixed := sanitizeJSON(span); gjson.Valid(fixed) {
			return fixed, nil
		}
		// 跳过整个失败片段，不把外层残缺对象里的子对象当成结果
		pos = end
	}
	if !found {
		return "", apperrors.NewParseError(op, "model response contains no JSON object")
	}
	return "", apperrors.NewParseError(op, "model response is not valid JSON")
}

// sanitizeJSON 把位于字符串内部、后面没有紧跟 : , ] } 的双引号改写为 \"
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '"' && !escaped:
			if !inStr {
				inStr = true
				b.WriteByte(c)
				break
			}
			j := i + 1
			for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
				j++
			}
			if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
				inStr = false
				b.WriteByte(c)
			} else {
				b.WriteString(`\"`)
			}
			escaped = false
		case c == '\\' && !escaped:
			escaped = true
			b.WriteByte(c)
		case inStr && c == '\n':
			// 字符串里的裸换行
			b.WriteString(`\n`)
			escaped = false
		case inStr && c == '\r':
			escaped = false
		case inStr && c == '\t':
			b.WriteString(`\t`)
			escaped = false
		default:
			b.WriteByte(c)
			escaped = false
		}
	}
	return b.String()
}

// stringList 读取字符串数组，单个字符串视为一个元素，空白项丢弃
func stringList(r gjson.Result) []string {
	out := []string{}
	if !r.Exists() {
		return out
	}
	if r.IsArray() {
		for _, item := range r.Array() {
			if s := strings.TrimSpace(item.String()); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := strings.TrimSpace(r.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// intValue 接受数字或数字字符串，四舍五入取整
func intValue(r gjson.Result, def int) int {
	switch r.Type {
	case gjson.Number:
		return int(r.Float() + 0.5*sign(r.Float()))
	case gjson.String:
		s := strings.TrimSuffix(strings.TrimSpace(r.Str), "%")
		v := gjson.Parse(s)
		if v.Type == gjson.Number {
			return int(v.Float() + 0.5*sign(v.Float()))
		}
	}
	return def
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

// boolValue 接受 true/false 或对应字符串
func boolValue(r gjson.Result, def bool) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(r.Str)) {
		case "true", "yes":
			return true
		case "false", "no":
			return false
		}
	}
	return def
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// enumValue 统一大小写和分隔符，例如 "Needs Improvement" → "needs_improvement"
func enumValue(r gjson.Result) string {
	s := strings.ToLower(strings.TrimSpace(r.String()))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// floatValue 接受数字或数字字符串
func floatValue(r gjson.Result, def float64) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Float()
	case gjson.String:
		v := gjson.Parse(strings.TrimSuffix(strings.TrimSpace(r.Str), "%"))
		if v.Type == gjson.Number {
			return v.Float()
		}
	}
	return def
}
