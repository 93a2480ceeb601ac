package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"hiregenai/internal/api/handler"
	"hiregenai/internal/api/router"
	"hiregenai/internal/config"
	"hiregenai/internal/credentials"
	"hiregenai/internal/criterion"
	"hiregenai/internal/llm"
	"hiregenai/internal/logger"
	"hiregenai/internal/normalizer"
	"hiregenai/internal/outbox"
	"hiregenai/internal/pipeline"
	"hiregenai/internal/scoring"
	"hiregenai/internal/storage"
	"hiregenai/internal/tracing"
	"hiregenai/internal/worker"
)

func main() {
	var configPath string
	var writeSample bool
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.BoolVar(&writeSample, "write-sample-config", false, "Write a sample config to --config and exit")
	pflag.Parse()

	if writeSample {
		if err := config.CreateSampleConfig(configPath); err != nil {
			logger.Logger.Fatal().Err(err).Msg("写入示例配置失败")
		}
		return
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Logger.Fatal().Err(err).Str("path", configPath).Msg("加载配置失败")
	}

	closeLog := initLogger(cfg.Logger)
	defer closeLog()
	base := logger.Logger
	base.Info().Str("path", configPath).Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		base.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	store, err := storage.NewStorage(ctx, cfg, logger.Component(base, "storage"))
	if err != nil {
		base.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer store.Close()

	svc, err := buildPipeline(ctx, cfg, store, base)
	if err != nil {
		base.Fatal().Err(err).Msg("初始化评估流程失败")
	}

	// outbox 中继和自动评估都依赖 RabbitMQ
	var relay *outbox.MessageRelay
	if store.RabbitMQ != nil {
		relay = outbox.NewMessageRelay(store.MySQL.DB(), store.RabbitMQ,
			outbox.WithPollingInterval(config.GetDuration(cfg.RabbitMQ.OutboxPollInterval, 5*time.Second)),
			outbox.WithBatchSize(cfg.RabbitMQ.OutboxBatchSize),
			outbox.WithLogger(logger.Component(base, "outbox")),
		)
		relay.Start(ctx)
		base.Info().Msg("消息中继服务已启动")

		if cfg.ResumeEvaluation.AutoOnParse {
			consumer := worker.NewResumeEvaluationConsumer(svc, cfg.RabbitMQ.ResumeParsedQueue,
				worker.WithWorkers(cfg.ResumeEvaluation.Workers),
				worker.WithPrefetch(cfg.RabbitMQ.PrefetchCount),
				worker.WithLogger(logger.Component(base, "worker")),
			)
			if err := consumer.Start(ctx, store.RabbitMQ); err != nil {
				base.Fatal().Err(err).Msg("启动简历评估消费者失败")
			}
		}
	} else if cfg.ResumeEvaluation.AutoOnParse {
		base.Warn().Msg("未配置RabbitMQ，resume_evaluation.auto_on_parse 不生效")
	}

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithMaxRequestBodySize(cfg.Server.MaxRequestBodyMB<<20),
		server.WithHandleMethodNotAllowed(cfg.Server.HandleMethodNotAllowed),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	evalHandler := handler.NewEvaluationHandler(svc, cfg.Normalizer.MaxFileBytes(), logger.Component(base, "http"))
	router.RegisterRoutes(h, evalHandler, router.Options{
		ServiceKeys:      cfg.Server.ServiceKeys,
		ServiceKeyHeader: cfg.Server.ServiceKeyHeader,
		Logger:           logger.Component(base, "access"),
	})
	if len(cfg.Server.ServiceKeys) == 0 {
		base.Warn().Msg("未配置服务密钥，/api/v1 不做鉴权")
	}

	go func() {
		base.Info().Str("address", cfg.Server.Address).Msg("HTTP 服务器启动中")
		if err := h.Run(); err != nil {
			base.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	base.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		base.Error().Err(err).Msg("服务器关闭失败")
	}

	// 先停止消费和中继，再关闭存储
	cancel()
	if relay != nil {
		relay.Stop()
		base.Info().Msg("消息中继服务已停止")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		base.Error().Err(err).Msg("关闭链路追踪失败")
	}
	base.Info().Msg("优雅退出完成")
}

// initLogger 进程日志和 Hertz 的 hlog 共用同一个 zerolog 输出
func initLogger(c config.LoggerConfig) func() {
	lc := logger.Config{
		Level:        c.Level,
		Format:       c.Format,
		TimeFormat:   c.TimeFormat,
		ReportCaller: c.ReportCaller,
	}
	closeFn := func() {}
	if c.File != "" {
		f, err := logger.InitWithFile(lc, c.File)
		if err != nil {
			logger.Init(lc)
			logger.Logger.Warn().Err(err).Msg("日志文件不可用，只输出到控制台")
		} else {
			closeFn = func() { _ = f.Close() }
		}
	} else {
		logger.Init(lc)
	}

	hlog.SetLogger(hertzadapter.From(logger.Logger))
	hlog.SetLevel(hertzLevel(logger.Logger.GetLevel()))
	return closeFn
}

func hertzLevel(l zerolog.Level) hlog.Level {
	switch l {
	case zerolog.TraceLevel:
		return hlog.LevelTrace
	case zerolog.DebugLevel:
		return hlog.LevelDebug
	case zerolog.WarnLevel:
		return hlog.LevelWarn
	case zerolog.ErrorLevel:
		return hlog.LevelError
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return hlog.LevelFatal
	default:
		return hlog.LevelInfo
	}
}

// buildPipeline 组装评估流程；可选组件只在对应存储可用时注入
func buildPipeline(ctx context.Context, cfg *config.Config, store *storage.Storage, base zerolog.Logger) (*pipeline.Service, error) {
	normOpts := []normalizer.Option{
		normalizer.WithMaxBytes(cfg.Normalizer.MaxFileBytes()),
		normalizer.WithExtraSkills(cfg.Normalizer.ExtraSkills...),
		normalizer.WithPhoneRegion(cfg.Normalizer.PhoneRegion),
		normalizer.WithPDFBackend(cfg.Normalizer.PDFBackend),
		normalizer.WithLogger(logger.Component(base, "normalizer")),
	}
	if cfg.Normalizer.Tika.ServerURL != "" {
		normOpts = append(normOpts, normalizer.WithTika(cfg.Normalizer.Tika.ServerURL, time.Duration(cfg.Normalizer.Tika.Timeout)*time.Second))
	}
	norm, err := normalizer.NewNormalizer(ctx, normOpts...)
	if err != nil {
		return nil, err
	}

	resolver, err := criterion.NewResolver(
		criterion.WithStrategy(cfg.CriterionResolver.Strategy),
		criterion.WithGeneration(cfg.CriterionResolver.Temperature, cfg.CriterionResolver.MaxTokens,
			config.GetDuration(cfg.CriterionResolver.Timeout, 15*time.Second)),
		criterion.WithLogger(logger.Component(base, "criterion")),
	)
	if err != nil {
		return nil, err
	}

	engine, err := scoring.NewEngine(
		scoring.WithMode(cfg.Scoring.Mode),
		scoring.WithGeneration(cfg.Scoring.Temperature, cfg.Scoring.MaxTokens),
		scoring.WithTimeout(config.GetDuration(cfg.Scoring.EvalTimeout, 90*time.Second)),
		scoring.WithLogger(logger.Component(base, "scoring")),
	)
	if err != nil {
		return nil, err
	}

	components := pipeline.Components{
		Repository: store.Applications,
		Credentials: credentials.NewResolver(store.Applications, cfg.Credentials.MasterKey,
			credentials.WithAllowPlaintext(cfg.Credentials.AllowPlaintext),
			credentials.WithLogger(logger.Component(base, "credentials")),
		),
		Models:     llm.NewFactory(cfg.LLM, logger.Component(base, "llm")),
		Normalizer: norm,
		Criteria:   resolver,
		Answers:    scoring.NewAnswerScorer(engine, cfg.Scoring.DefaultJobLevel),
		Resumes: scoring.NewResumeScorer(engine,
			scoring.WithResumeMaxTokens(cfg.Scoring.ResumeMaxTokens),
			scoring.WithMaxResumeChars(cfg.Scoring.MaxResumeChars),
			scoring.WithDefaultPassThreshold(cfg.Scoring.DefaultPassThreshold),
		),
	}
	// 接口字段不能直接赋 nil 指针
	if store.Redis != nil {
		components.Cache = store.Redis
		components.Locker = store.Redis
	}
	if store.MinIO != nil {
		components.Archive = store.MinIO
	}

	settings := pipeline.Settings{
		ClassifierModel:    cfg.LLM.ClassifierModelName(),
		ParseCacheTTL:      config.GetDuration(cfg.Normalizer.ParseCacheTTL, 720*time.Hour),
		LockTTL:            config.GetDuration(cfg.ResumeEvaluation.LockTTL, 5*time.Minute),
		TransportTextLimit: cfg.Normalizer.TransportTextLimit,
		Logger:             logger.Component(base, "pipeline"),
	}
	if store.RabbitMQ != nil {
		settings.Exchange = cfg.RabbitMQ.EvaluationExchange
		settings.ResumeParsedKey = cfg.RabbitMQ.ResumeParsedKey
		settings.AnswerEvaluatedKey = cfg.RabbitMQ.AnswerEvaluatedKey
		settings.ResumeEvaluatedKey = cfg.RabbitMQ.ResumeEvaluatedKey
	}
	return pipeline.New(components, settings)
}
