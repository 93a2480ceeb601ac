package normalizer

import (
	"mime"
	"path/filepath"
	"strings"
)

// Format 支持的文档类型
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatDOC     Format = "doc"
	FormatDOCX    Format = "docx"
	FormatTXT     Format = "txt"
	FormatUnknown Format = ""
)

var mimeFormats = map[string]Format{
	"application/pdf":    FormatPDF,
	"application/x-pdf":  FormatPDF,
	"application/msword": FormatDOC,
	"text/plain":         FormatTXT,
	"text/markdown":      FormatTXT,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": FormatDOCX,
}

var extFormats = map[string]Format{
	".pdf":  FormatPDF,
	".doc":  FormatDOC,
	".docx": FormatDOCX,
	".txt":  FormatTXT,
	".md":   FormatTXT,
}

// DetectFormat 先看声明的 MIME 类型，认不出时再看文件扩展名。
// 也接受 "pdf"、"docx" 这样的简写。
func DetectFormat(declaredMime, filename string) Format {
	m := strings.ToLower(strings.TrimSpace(declaredMime))
	if parsed, _, err := mime.ParseMediaType(m); err == nil {
		m = parsed
	}
	if f, ok := mimeFormats[m]; ok {
		return f
	}
	switch Format(strings.TrimPrefix(m, ".")) {
	case FormatPDF, FormatDOC, FormatDOCX, FormatTXT:
		return Format(strings.TrimPrefix(m, "."))
	}
	if filename != "" {
		if f, ok := extFormats[strings.ToLower(filepath.Ext(filename))]; ok {
			return f
		}
	}
	return FormatUnknown
}

// SniffFormat 根据文件头判断真实类型，用于声明类型和内容不一致的情况
func SniffFormat(data []byte) Format {
	switch {
	case len(data) >= 5 && string(data[:5]) == "%PDF-":
		return FormatPDF
	case len(data) >= 4 && data[0] == 'P' && data[1] == 'K' && data[2] == 3 && data[3] == 4:
		return FormatDOCX
	case len(data) >= 8 && data[0] == 0xD0 && data[1] == 0xCF && data[2] == 0x11 && data[3] == 0xE0:
		return FormatDOC
	}
	return FormatUnknown
}
