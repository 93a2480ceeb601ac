// Package normalizer 把上传的简历文件转换为清洗后的文本和结构化字段。
// Parse 不返回错误：任何提取失败都降级为空结果，由调用方决定如何处理。
package normalizer

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hiregenai/internal/tracing"
	"hiregenai/internal/types"
)

// DefaultMaxBytes 单个文件的大小上限
const DefaultMaxBytes = 10 << 20

const (
	PDFBackendEino = "eino"
	PDFBackendTika = "tika"
)

// Normalizer 文档规整器，可并发使用
type Normalizer struct {
	maxBytes    int64
	extraSkills []string
	phoneRegion string
	pdfBackend  string
	tikaURL     string
	tikaTimeout time.Duration
	logger      zerolog.Logger
	tracer      trace.Tracer

	chains map[Format][]Extractor
	fields *FieldExtractor
}

// Option 定义配置选项函数
type Option func(*Normalizer)

// WithMaxBytes 超过上限的输入直接返回空结果
func WithMaxBytes(limit int64) Option {
	return func(n *Normalizer) {
		if limit > 0 {
			n.maxBytes = limit
		}
	}
}

// WithExtraSkills 追加技能词典
func WithExtraSkills(skills ...string) Option {
	return func(n *Normalizer) {
		n.extraSkills = append(n.extraSkills, skills...)
	}
}

// WithPhoneRegion 没有国际区号的电话按该地区解析
func WithPhoneRegion(region string) Option {
	return func(n *Normalizer) {
		n.phoneRegion = region
	}
}

// WithPDFBackend eino 或 tika；tika 需要同时配置 WithTika
func WithPDFBackend(backend string) Option {
	return func(n *Normalizer) {
		n.pdfBackend = backend
	}
}

// WithTika 配置 Tika 服务器，作为 pdf/doc/docx 的附加提取器
func WithTika(serverURL string, timeout time.Duration) Option {
	return func(n *Normalizer) {
		n.tikaURL = serverURL
		n.tikaTimeout = timeout
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger zerolog.Logger) Option {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// WithExtractors 替换某种格式的提取链，主要用于测试
func WithExtractors(f Format, chain ...Extractor) Option {
	return func(n *Normalizer) {
		if n.chains == nil {
			n.chains = make(map[Format][]Extractor)
		}
		n.chains[f] = chain
	}
}

// NewNormalizer 创建规整器。提取链顺序：
// pdf: eino → 逐页读取 (→ tika)，backend 为 tika 时 tika 在最前；
// docx/doc: 内置解析 (→ tika)；txt: 编码识别。
func NewNormalizer(ctx context.Context, opts ...Option) (*Normalizer, error) {
	n := &Normalizer{
		maxBytes:    DefaultMaxBytes,
		phoneRegion: "US",
		pdfBackend:  PDFBackendEino,
		logger:      zerolog.Nop(),
		tracer:      tracing.Tracer("normalizer"),
	}
	for _, opt := range opts {
		opt(n)
	}
	custom := n.chains

	var tika *TikaExtractor
	if n.tikaURL != "" {
		tika = NewTikaExtractor(n.tikaURL, "", WithTikaTimeout(n.tikaTimeout))
	}
	if n.pdfBackend == PDFBackendTika && tika == nil {
		return nil, fmt.Errorf("pdf backend %q requires a tika server url", PDFBackendTika)
	}

	chains := make(map[Format][]Extractor)
	if _, ok := custom[FormatPDF]; !ok {
		eino, err := NewEinoPDFExtractor(ctx, 30*time.Second)
		if err != nil {
			return nil, err
		}
		pdfChain := []Extractor{eino, PageLoopPDFExtractor{}}
		if tika != nil {
			pdfTika := tika.forType("application/pdf")
			if n.pdfBackend == PDFBackendTika {
				pdfChain = append([]Extractor{pdfTika}, pdfChain...)
			} else {
				pdfChain = append(pdfChain, pdfTika)
			}
		}
		chains[FormatPDF] = pdfChain
	}
	chains[FormatDOCX] = []Extractor{DOCXExtractor{}}
	chains[FormatDOC] = []Extractor{DOCExtractor{}}
	if tika != nil {
		chains[FormatDOCX] = append(chains[FormatDOCX], tika.forType("application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
		// doc 的启发式结果质量较差，有 Tika 时优先使用
		chains[FormatDOC] = []Extractor{tika.forType("application/msword"), DOCExtractor{}}
	}
	chains[FormatTXT] = []Extractor{TXTExtractor{}}
	for f, chain := range custom {
		chains[f] = chain
	}

	n.chains = chains
	n.fields = NewFieldExtractor(NewSkillDictionary(n.extraSkills...), n.phoneRegion)
	return n, nil
}

// MaxBytes 当前生效的大小上限
func (n *Normalizer) MaxBytes() int64 {
	return n.maxBytes
}

// Parse 等价于 ParseNamed(ctx, data, declaredMime, "")
func (n *Normalizer) Parse(ctx context.Context, data []byte, declaredMime string) types.ParsedDocument {
	return n.ParseNamed(ctx, data, declaredMime, "")
}

// ParseNamed filename 只用于在 MIME 类型缺失时辅助判断格式
func (n *Normalizer) ParseNamed(ctx context.Context, data []byte, declaredMime, filename string) (doc types.ParsedDocument) {
	ctx, span := n.tracer.Start(ctx, "normalizer.Parse")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			n.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("文档解析发生panic，返回空结果")
			tracing.RecordError(span, fmt.Errorf("normalizer panic: %v", r), tracing.ErrorTypeInternal)
			doc = types.EmptyParsedDocument()
		}
	}()

	format := n.resolveFormat(data, declaredMime, filename)
	span.SetAttributes(
		attribute.String("document.format", string(format)),
		attribute.Int("document.size_bytes", len(data)),
	)

	if len(data) == 0 || int64(len(data)) > n.maxBytes || format == FormatUnknown {
		n.logger.Warn().
			Int("size", len(data)).
			Str("declared_mime", declaredMime).
			Str("format", string(format)).
			Msg("文档为空、超出大小限制或类型不支持，返回空结果")
		return types.EmptyParsedDocument()
	}

	raw, source := n.extract(ctx, format, data)
	text := CleanText(raw)
	span.SetAttributes(
		attribute.String("document.extractor", source),
		attribute.Int("document.text_length", len(text)),
	)
	if text == "" {
		return types.EmptyParsedDocument()
	}
	doc = n.fields.Extract(text)
	n.logger.Debug().
		Str("extractor", source).
		Str("name", tracing.MaskPII(doc.Name)).
		Str("email", tracing.MaskPII(doc.Email)).
		Str("phone", tracing.MaskPII(doc.Phone)).
		Int("skills", len(doc.Skills)).
		Str("preview", tracing.SafeResumeContent(text)).
		Msg("简历解析完成")
	return doc
}

// resolveFormat 文件头能识别时以文件头为准
func (n *Normalizer) resolveFormat(data []byte, declaredMime, filename string) Format {
	declared := DetectFormat(declaredMime, filename)
	sniffed := SniffFormat(data)
	if sniffed != FormatUnknown && sniffed != declared {
		if declared != FormatUnknown {
			n.logger.Debug().
				Str("declared", string(declared)).
				Str("sniffed", string(sniffed)).
				Msg("声明类型与文件内容不一致，按文件内容处理")
		}
		return sniffed
	}
	return declared
}

// extract 依次尝试提取链，返回第一个非空结果
func (n *Normalizer) extract(ctx context.Context, format Format, data []byte) (string, string) {
	for _, ex := range n.chains[format] {
		if err := ctx.Err(); err != nil {
			n.logger.Warn().Err(err).Msg("上下文已结束，停止提取")
			return "", ""
		}
		text, err := safeExtract(ctx, ex, data)
		if err != nil {
			n.logger.Debug().Err(err).Str("extractor", ex.Name()).Msg("提取失败，尝试下一个提取器")
			continue
		}
		if CleanText(text) != "" {
			return text, ex.Name()
		}
	}
	return "", ""
}

func safeExtract(ctx context.Context, ex Extractor, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%s extractor panic: %v", ex.Name(), r)
		}
	}()
	return ex.Extract(ctx, data)
}
