package tracing

import (
	"strings"
)

// 写入 span 属性和日志的长度上限（按字符计）
const (
	DefaultMaxLength = 200
	MaxSQLLength     = 500
	MaxRedisLength   = 100
	MaxPromptLength  = 300
	MaxResumeLength  = 150
)

// TruncateString 超长时保留首尾，中间用 ... 连接
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	head := (maxLength - 3) / 2
	tail := maxLength - 3 - head
	return string(runes[:head]) + "..." + string(runes[len(runes)-tail:])
}

// MaskPII 候选人姓名、邮箱、电话只保留首尾字符：
// "张三" -> "张*"，"王小明" -> "王*明"，"jane@acme.io" -> "ja********io"
func MaskPII(value string) string {
	runes := []rune(value)
	switch n := len(runes); {
	case n == 0:
		return ""
	case n == 1:
		return "*"
	case n == 2:
		return string(runes[0]) + "*"
	case n <= 4:
		return string(runes[0]) + strings.Repeat("*", n-2) + string(runes[n-1])
	default:
		return string(runes[:2]) + strings.Repeat("*", n-4) + string(runes[n-2:])
	}
}

// SafeSQL gorm 语句
func SafeSQL(sql string) string {
	return TruncateString(sql, MaxSQLLength)
}

// SafeRedisKey 缓存和锁的键
func SafeRedisKey(key string) string {
	return TruncateString(key, MaxRedisLength)
}

// SafeResumeContent 简历文本只保留很短的预览
func SafeResumeContent(content string) string {
	return TruncateString(strings.Join(strings.Fields(content), " "), MaxResumeLength)
}

// SafePrompt 截断提示词和模型回复
func SafePrompt(content string) string {
	return TruncateString(content, MaxPromptLength)
}

// MaskSecret 只保留密钥末尾4位
func MaskSecret(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return "****" + secret[len(secret)-4:]
}
