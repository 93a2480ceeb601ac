package logger // 进程日志与可注入的组件日志

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Logger 进程级日志实例，只在 main 和初始化阶段使用；组件通过构造函数注入自己的 logger
	Logger = log.Logger
)

// Config 日志配置结构体
type Config struct {
	Level        string `json:"level" yaml:"level"`                 // debug, info, warn, error
	Format       string `json:"format" yaml:"format"`               // json 或 pretty
	TimeFormat   string `json:"time_format" yaml:"time_format"`     // 时间戳格式
	ReportCaller bool   `json:"report_caller" yaml:"report_caller"` // 是否输出调用位置
}

// Init 初始化进程日志，输出到标准输出
func Init(config Config) {
	level := parseLevel(config.Level)
	zerolog.SetGlobalLevel(level)

	if config.TimeFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	} else {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	Logger = New(config, os.Stdout)
	log.Logger = Logger
}

// New 按配置构造一个独立的 logger，out 为 nil 时丢弃输出
func New(config Config, out io.Writer) zerolog.Logger {
	if out == nil {
		return zerolog.Nop()
	}
	return build(zerolog.New(consoleOutput(config, out)), config)
}

// InitWithFile 同时输出到标准输出和 path，文件中始终写 JSON
func InitWithFile(config Config, path string) (io.Closer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("无法打开日志文件 %s: %w", path, err)
	}
	Init(config)
	multi := zerolog.MultiLevelWriter(consoleOutput(config, os.Stdout), f)
	Logger = build(zerolog.New(multi), config)
	log.Logger = Logger
	return f, nil
}

func consoleOutput(config Config, out io.Writer) io.Writer {
	if config.Format != "pretty" {
		return out
	}
	timeFormat := config.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: timeFormat,
		NoColor:    out != os.Stdout,
	}
}

func build(base zerolog.Logger, config Config) zerolog.Logger {
	ctxLogger := base.Level(parseLevel(config.Level)).With().Timestamp()
	if config.ReportCaller {
		ctxLogger = ctxLogger.Caller()
	}
	return ctxLogger.Logger()
}

func parseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}

// Component 为组件派生带 component 字段的子 logger
func Component(base zerolog.Logger, name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// Ctx 从上下文中获取日志记录器；上下文中没有时返回禁用的 logger
func Ctx(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithContext 把 l 放进上下文
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}
