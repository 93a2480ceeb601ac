package normalizer

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	lpdf "github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrNoText 提取成功但没有文本
var ErrNoText = errors.New("no text content found")

// Extractor 把一种格式的原始字节转换为纯文本
type Extractor interface {
	Name() string
	Extract(ctx context.Context, data []byte) (string, error)
}

// EinoPDFExtractor 使用 Eino PDF Parser 提取全文
type EinoPDFExtractor struct {
	parser  *pdf.PDFParser
	timeout time.Duration
}

var _ Extractor = (*EinoPDFExtractor)(nil)

// NewEinoPDFExtractor 不按页面分割，返回整个文档的连续文本
func NewEinoPDFExtractor(ctx context.Context, timeout time.Duration) (*EinoPDFExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: false})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EinoPDFExtractor{parser: p, timeout: timeout}, nil
}

func (e *EinoPDFExtractor) Name() string { return "eino-pdf" }

func (e *EinoPDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	docs, err := e.parser.Parse(ctx, bytes.NewReader(data), einoParser.WithURI("upload.pdf"))
	if err != nil {
		return "", fmt.Errorf("eino PDF parser failed: %w", err)
	}
	// 解析器本身不检查 ctx，超时后丢弃结果
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, doc := range docs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(doc.Content)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrNoText
	}
	return sb.String(), nil
}

// PageLoopPDFExtractor 逐页读取纯文本，跳过空页和读取失败的页
type PageLoopPDFExtractor struct{}

var _ Extractor = PageLoopPDFExtractor{}

func (PageLoopPDFExtractor) Name() string { return "pdf-pages" }

func (PageLoopPDFExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrNoText
	}
	return sb.String(), nil
}

// DOCXExtractor 读取 word/document.xml 中的文本节点
type DOCXExtractor struct {
	maxXMLBytes int64
}

var _ Extractor = DOCXExtractor{}

func (DOCXExtractor) Name() string { return "docx" }

func (d DOCXExtractor) Extract(_ context.Context, data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}
	limit := d.maxXMLBytes
	if limit <= 0 {
		limit = 64 << 20
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		defer rc.Close()
		text, err := wordprocessingText(io.LimitReader(rc, limit))
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", ErrNoText
		}
		return text, nil
	}
	return "", errors.New("docx archive has no word/document.xml")
}

func wordprocessingText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br", "cr":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}

// DOCExtractor 从旧版 Word 二进制中挑出可读的文本片段。
// 正文通常以 UTF-16LE 或 Windows-1252 存储，这里两种都扫一遍，取较长的结果。
type DOCExtractor struct {
	minRun int
}

var _ Extractor = DOCExtractor{}

func (DOCExtractor) Name() string { return "doc" }

func (d DOCExtractor) Extract(_ context.Context, data []byte) (string, error) {
	minRun := d.minRun
	if minRun <= 0 {
		minRun = 8
	}
	wide := utf16Runs(data, minRun)
	narrow := ansiRuns(data, minRun)
	text := wide
	if len(narrow) > len(wide) {
		text = narrow
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

func utf16Runs(data []byte, minRun int) string {
	var out, run []rune
	flush := func() {
		if len(run) >= minRun {
			out = append(out, run...)
			out = append(out, '\n')
		}
		run = run[:0]
	}
	for i := 0; i+1 < len(data); i += 2 {
		r := rune(binary.LittleEndian.Uint16(data[i:]))
		if utf16.IsSurrogate(r) || !printableDocRune(r) {
			flush()
			continue
		}
		if r == '\r' {
			r = '\n'
		}
		run = append(run, r)
	}
	flush()
	return string(out)
}

func ansiRuns(data []byte, minRun int) string {
	dec := charmap.Windows1252.NewDecoder()
	var out strings.Builder
	var run []byte
	flush := func() {
		if len(run) >= minRun {
			if s, err := dec.String(string(run)); err == nil {
				out.WriteString(s)
				out.WriteByte('\n')
			}
		}
		run = run[:0]
	}
	for _, b := range data {
		if b == '\r' || b == '\n' || b == '\t' || (b >= 0x20 && b != 0x7F && b < 0x80) || b >= 0xA0 {
			run = append(run, b)
			continue
		}
		flush()
	}
	flush()
	return out.String()
}

func printableDocRune(r rune) bool {
	if r == '\r' || r == '\n' || r == '\t' {
		return true
	}
	return r >= 0x20 && unicode.IsPrint(r)
}

// TXTExtractor 按 BOM 识别编码，非法 UTF-8 时按 Windows-1252 解码
type TXTExtractor struct{}

var _ Extractor = TXTExtractor{}

func (TXTExtractor) Name() string { return "txt" }

func (TXTExtractor) Extract(_ context.Context, data []byte) (string, error) {
	text, err := decodeText(data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

func decodeText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return string(data[3:]), nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}), bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		dec := xunicode.UTF16(xunicode.LittleEndian, xunicode.UseBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, data)
		if err != nil {
			return "", fmt.Errorf("decode utf-16 text: %w", err)
		}
		return string(out), nil
	case utf8.Valid(data):
		return string(data), nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode windows-1252 text: %w", err)
	}
	return string(out), nil
}
