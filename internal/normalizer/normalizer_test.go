package normalizer

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResume = `Jane Doe
San Francisco, CA | jane.doe@example.com | +1 650-253-0000
linkedin.com/in/janedoe

Summary
Backend engineer focused on distributed systems.

Experience
Senior Engineer at Acme Corp
Jan 2019 - Present
- Built a REST API in Go backed by PostgreSQL and Redis

Education
B.Sc. Computer Science
Stanford University, 2016

Certifications
AWS Certified Solutions Architect

Languages
English, Spanish
`

func newTestNormalizer(t *testing.T, opts ...Option) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(context.Background(), opts...)
	require.NoError(t, err)
	return n
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"空字符串", "", ""},
		{"NUL和垂直制表符", "a\x00b\vc", "ab\nc"},
		{"换行统一", "line1\r\nline2\rline3", "line1\nline2\nline3"},
		{"折叠空白", "  foo \t  bar  ", "foo bar"},
		{"连字", "\ufb01le \ufb02ow o\ufb03ce", "file flow office"},
		{"cid残留", "Jo(cid:12)hn", "John"},
		{"嵌套cid", "(ci(cid:3)d:4)x", "x"},
		{"多余空行", "a\n\n\n\nb", "a\n\nb"},
		{"PDF操作符", "Hello\nBT\n/F1 12 Tf\n0 0 1 rg\nET\nWorld", "Hello\nWorld"},
		{"零宽字符", "Go\u200bLang\ufeff", "GoLang"},
		{"替换字符", "caf\ufffd", "caf"},
		{"普通句子保留", "I use C++ and 3 Q", "I use C++ and 3 Q"},
		{"季度行保留", "Revenue\nQ 4 2023\n5 m", "Revenue\nQ 4 2023\n5 m"},
		{"多个操作符", "Intro\nq 1 0 0 1 72 720 cm Q\nEnd", "Intro\nEnd"},
		{"非法UTF-8", "ab\xffcd", "abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanText(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, CleanText(got), "应该是幂等的")
		})
	}
}

func TestCleanTextIdempotentRandom(t *testing.T) {
	alphabet := []string{
		"a", "Z", "7", " ", "\t", "\n", "\r", "\r\n", "\x00", "\v", "\f", "\x1b",
		"\ufb01", "(cid:", "1)", "(cid:2)", "BT", "ET", "Tf", "/F1", "12", " ",
		"\u200b", "\ufffd", "\ue001", "é", "中", "\xff", "-", "•",
	}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		var sb strings.Builder
		for j := rng.Intn(40); j > 0; j-- {
			sb.WriteString(alphabet[rng.Intn(len(alphabet))])
		}
		s := sb.String()
		once := CleanText(s)
		require.Equal(t, once, CleanText(once), "输入: %q", s)
	}
}

func FuzzCleanTextIdempotent(f *testing.F) {
	for _, seed := range []string{"", "hello", "a\x00\vb", "(ci(cid:1)d:2)", "BT\n/F1 9 Tf\nET", sampleResume} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, s string) {
		once := CleanText(s)
		if twice := CleanText(once); twice != once {
			t.Fatalf("CleanText 不是幂等的: %q -> %q -> %q", s, once, twice)
		}
	})
}

func TestDetectAndSniffFormat(t *testing.T) {
	assert.Equal(t, FormatPDF, DetectFormat("application/pdf", ""))
	assert.Equal(t, FormatPDF, DetectFormat("Application/PDF; charset=binary", ""))
	assert.Equal(t, FormatDOCX, DetectFormat("application/vnd.openxmlformats-officedocument.wordprocessingml.document", ""))
	assert.Equal(t, FormatDOC, DetectFormat("application/msword", ""))
	assert.Equal(t, FormatTXT, DetectFormat("text/plain; charset=utf-8", ""))
	assert.Equal(t, FormatDOCX, DetectFormat("docx", ""))
	assert.Equal(t, FormatPDF, DetectFormat("application/octet-stream", "cv.PDF"))
	assert.Equal(t, FormatUnknown, DetectFormat("image/png", "photo.png"))

	assert.Equal(t, FormatPDF, SniffFormat([]byte("%PDF-1.7\n")))
	assert.Equal(t, FormatDOCX, SniffFormat([]byte("PK\x03\x04rest")))
	assert.Equal(t, FormatDOC, SniffFormat([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}))
	assert.Equal(t, FormatUnknown, SniffFormat([]byte("plain")))
}

func TestParseCorruptPDFFallsBackToEmpty(t *testing.T) {
	n := newTestNormalizer(t)

	inputs := [][]byte{
		[]byte("%PDF-1.4\n%garbage that is not a pdf body"),
		{0x25, 0x50, 0x44, 0x46, 0x2d, 0x00, 0xff, 0x13},
		nil,
	}
	for _, in := range inputs {
		doc := n.Parse(context.Background(), in, "application/pdf")
		assert.Equal(t, "", doc.RawText)
		assert.NotNil(t, doc.Skills)
		assert.Empty(t, doc.Skills)
		assert.NotNil(t, doc.Experience)
		assert.True(t, doc.IsEmpty())
	}
}

func TestPDFExtractorsStopOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eino, err := NewEinoPDFExtractor(context.Background(), 0)
	require.NoError(t, err)

	for _, ex := range []Extractor{eino, PageLoopPDFExtractor{}} {
		t.Run(ex.Name(), func(t *testing.T) {
			text, err := ex.Extract(ctx, []byte("%PDF-1.4\n%garbage"))
			assert.ErrorIs(t, err, context.Canceled)
			assert.Empty(t, text)
		})
	}

	n := newTestNormalizer(t)
	doc := n.Parse(ctx, []byte(sampleResume), "text/plain")
	assert.True(t, doc.IsEmpty())
}

func TestParseTextResume(t *testing.T) {
	n := newTestNormalizer(t)
	doc := n.Parse(context.Background(), []byte(sampleResume), "text/plain")

	assert.Equal(t, CleanText(sampleResume), doc.RawText)
	assert.Equal(t, "Jane Doe", doc.Name)
	assert.Equal(t, "jane.doe@example.com", doc.Email)
	assert.Equal(t, "+1 650-253-0000", doc.Phone)
	assert.Equal(t, "San Francisco, CA", doc.Location)
	assert.Equal(t, "Backend engineer focused on distributed systems.", doc.Summary)
	assert.Equal(t, []string{"REST", "Go", "PostgreSQL", "Redis", "AWS"}, doc.Skills)
	assert.Equal(t, []string{"linkedin.com/in/janedoe"}, doc.Links)
	assert.Equal(t, []string{"AWS Certified Solutions Architect"}, doc.Certifications)
	assert.Equal(t, []string{"English", "Spanish"}, doc.Languages)

	require.Len(t, doc.Experience, 1)
	exp := doc.Experience[0]
	assert.Equal(t, "Senior Engineer", exp.Role)
	assert.Equal(t, "Acme Corp", exp.Organization)
	assert.Equal(t, "Jan 2019 - Present", exp.Duration)
	assert.Equal(t, "Built a REST API in Go backed by PostgreSQL and Redis", exp.Description)

	require.Len(t, doc.Education, 1)
	edu := doc.Education[0]
	assert.Equal(t, "B.Sc. Computer Science", edu.Degree)
	assert.Equal(t, "Stanford University", edu.Institution)
	assert.Equal(t, "2016", edu.Year)
}

func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">` + p + `</w:t></w:r></w:p>`)
	}
	xmlDoc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<Types/>`))
	require.NoError(t, err)
	w, err = zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(xmlDoc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParseDOCX(t *testing.T) {
	n := newTestNormalizer(t)
	data := buildDOCX(t, "Jane Doe", "jane.doe@example.com", "Skills", "Go, Kubernetes and PostgreSQL")

	doc := n.Parse(context.Background(), data, "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	assert.Equal(t, "Jane Doe\njane.doe@example.com\nSkills\nGo, Kubernetes and PostgreSQL", doc.RawText)
	assert.Equal(t, "Jane Doe", doc.Name)
	assert.Equal(t, "jane.doe@example.com", doc.Email)
	assert.Equal(t, []string{"Go", "Kubernetes", "PostgreSQL"}, doc.Skills)

	// 声明类型错误时按文件头处理
	doc = n.Parse(context.Background(), data, "application/pdf")
	assert.Equal(t, "Jane Doe", doc.Name)

	// 损坏的 docx
	doc = n.Parse(context.Background(), data[:len(data)/2], "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	assert.Equal(t, "", doc.RawText)
}

func utf16le(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

func TestParseLegacyDOC(t *testing.T) {
	var data []byte
	data = append(data, 0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1)
	data = append(data, make([]byte, 64)...)
	data = append(data, utf16le("Curriculum vitae of Jane Doe, Python developer")...)
	data = append(data, make([]byte, 32)...)

	n := newTestNormalizer(t)
	doc := n.Parse(context.Background(), data, "application/msword")
	assert.Contains(t, doc.RawText, "Curriculum vitae of Jane Doe, Python developer")
	assert.Equal(t, []string{"Python"}, doc.Skills)
}

func TestDecodeText(t *testing.T) {
	got, err := decodeText([]byte("\xEF\xBB\xBFhello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = decodeText(append([]byte{0xFF, 0xFE}, utf16le("héllo")...))
	require.NoError(t, err)
	assert.Equal(t, "héllo", got)

	// Windows-1252 的 é
	got, err = decodeText([]byte("caf\xe9"))
	require.NoError(t, err)
	assert.Equal(t, "café", got)
}

type panicExtractor struct{}

func (panicExtractor) Name() string { return "panic" }
func (panicExtractor) Extract(context.Context, []byte) (string, error) {
	panic("boom")
}

type staticExtractor struct {
	text string
	err  error
}

func (staticExtractor) Name() string { return "static" }
func (s staticExtractor) Extract(context.Context, []byte) (string, error) {
	return s.text, s.err
}

func TestParseRecoversAndFallsThroughChain(t *testing.T) {
	n := newTestNormalizer(t, WithExtractors(FormatTXT, panicExtractor{}))
	doc := n.Parse(context.Background(), []byte("something"), "text/plain")
	assert.Equal(t, "", doc.RawText)

	n = newTestNormalizer(t, WithExtractors(FormatTXT,
		panicExtractor{},
		staticExtractor{err: errors.New("broken")},
		staticExtractor{text: "\x00\x01 \n"},
		staticExtractor{text: "Python and Docker"},
	))
	doc = n.Parse(context.Background(), []byte("ignored"), "text/plain")
	assert.Equal(t, "Python and Docker", doc.RawText)
	assert.Equal(t, []string{"Python", "Docker"}, doc.Skills)
}

func TestParseRejectsOversizeAndUnknown(t *testing.T) {
	n := newTestNormalizer(t, WithMaxBytes(16))
	assert.Equal(t, int64(16), n.MaxBytes())

	doc := n.Parse(context.Background(), []byte(strings.Repeat("x", 17)), "text/plain")
	assert.True(t, doc.IsEmpty())

	doc = n.Parse(context.Background(), []byte("short text"), "image/png")
	assert.True(t, doc.IsEmpty())

	doc = n.ParseNamed(context.Background(), []byte("Python"), "", "cv.txt")
	assert.Equal(t, []string{"Python"}, doc.Skills)
}

func TestTikaBackendRequiresServer(t *testing.T) {
	_, err := NewNormalizer(context.Background(), WithPDFBackend(PDFBackendTika))
	assert.Error(t, err)
}

func TestTikaExtractor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/tika" || r.Header.Get("Accept") != "text/plain" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("Content-Type") == "application/broken" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Extracted by Tika: Kubernetes"))
	}))
	defer server.Close()

	e := NewTikaExtractor(server.URL+"/", "application/pdf")
	text, err := e.Extract(context.Background(), []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "Extracted by Tika: Kubernetes", text)

	_, err = e.forType("application/broken").Extract(context.Background(), []byte("x"))
	assert.Error(t, err)

	n := newTestNormalizer(t, WithTika(server.URL, 0), WithPDFBackend(PDFBackendTika))
	doc := n.Parse(context.Background(), []byte("%PDF-1.4 not really"), "application/pdf")
	assert.Equal(t, "Extracted by Tika: Kubernetes", doc.RawText)
	assert.Equal(t, []string{"Kubernetes"}, doc.Skills)
}

func TestSkillDictionary(t *testing.T) {
	d := NewSkillDictionary()
	assert.Equal(t,
		[]string{"Kubernetes", "Go", "Python"},
		d.Detect("Worked with kubernetes, Golang and python. Also Python again and k8s."))
	assert.Equal(t, []string{"C++", "C#"}, d.Detect("C++ and C#"))
	assert.Empty(t, d.Detect("I will go to the store and rust never sleeps"))
	assert.Equal(t, []string{"Node.js", "REST"}, d.Detect("Node.js services exposing REST APIs"))

	extra := NewSkillDictionary("Temporal", "python", "")
	assert.Equal(t, []string{"Python", "Temporal"}, extra.Detect("Python workers on temporal"))
}
