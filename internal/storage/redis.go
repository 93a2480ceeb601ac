package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"hiregenai/internal/config"
	"hiregenai/internal/constants"
	"hiregenai/internal/tracing"
	"hiregenai/internal/types"
)

// ErrNotFound is returned when a key is not found in Redis.
var ErrNotFound = redis.Nil

var redisTracer = tracing.Tracer("storage/redis")

// releaseLockScript 只有持有者才能删除锁
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// cachedParse 缓存中的解析结果，带规整器版本，版本不一致视为未命中
type cachedParse struct {
	Version  string               `json:"version"`
	Document types.ParsedDocument `json:"document"`
	CachedAt time.Time            `json:"cachedAt"`
}

// Redis wraps the Redis client
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
	logger zerolog.Logger
}

// FormatKey 使用 constants 中的键格式和动态部分生成完整的 key
func FormatKey(keyFormat string, parts ...interface{}) string {
	return fmt.Sprintf(keyFormat, parts...)
}

// NewRedis 创建连接，注册 redisotel 并 Ping
func NewRedis(cfg *config.RedisConfig, log zerolog.Logger) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: time.Duration(cfg.MinRetryBackoffMS) * time.Millisecond,
		MaxRetryBackoff: time.Duration(cfg.MaxRetryBackoffMS) * time.Millisecond,
	})

	// 记录所有Redis命令
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	log.Info().Str("address", cfg.Address).Int("db", cfg.DB).Msg("成功连接到Redis")
	return &Redis{Client: client, config: cfg, logger: log}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// GetParsedDocument 按文件 MD5 读取缓存的解析结果
func (r *Redis) GetParsedDocument(ctx context.Context, fileMD5 string) (types.ParsedDocument, bool, error) {
	key := FormatKey(constants.KeyParsedResume, fileMD5)
	ctx, span := redisTracer.Start(ctx, "Redis.GetParsedDocument", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.redis.key", tracing.SafeRedisKey(key))))
	defer span.End()

	val, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return types.ParsedDocument{}, false, nil
	}
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return types.ParsedDocument{}, false, err
	}

	var cached cachedParse
	if err := json.Unmarshal([]byte(val), &cached); err != nil || cached.Version != constants.NormalizerVersion {
		// 旧版本或损坏的缓存直接忽略
		span.SetAttributes(attribute.Bool("cache.hit", false), attribute.Bool("cache.stale", true))
		return types.ParsedDocument{}, false, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return cached.Document, true, nil
}

// SetParsedDocument 缓存解析结果；ttl<=0 时不过期
func (r *Redis) SetParsedDocument(ctx context.Context, fileMD5 string, doc types.ParsedDocument, ttl time.Duration) error {
	key := FormatKey(constants.KeyParsedResume, fileMD5)
	ctx, span := redisTracer.Start(ctx, "Redis.SetParsedDocument", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.redis.key", tracing.SafeRedisKey(key))))
	defer span.End()

	body, err := json.Marshal(cachedParse{Version: constants.NormalizerVersion, Document: doc, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("序列化解析结果失败: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.Client.Set(ctx, key, body, ttl).Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return err
	}
	span.SetAttributes(attribute.Int("db.redis.value_length", len(body)))
	return nil
}

// AcquireLock 尝试获取一个分布式锁，未获取到时返回空字符串
func (r *Redis) AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error) {
	if r.Client == nil {
		return "", fmt.Errorf("redis client is not initialized")
	}
	ctx, span := redisTracer.Start(ctx, "Redis.AcquireLock", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.redis.key", tracing.SafeRedisKey(lockKey))))
	defer span.End()

	token, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("生成锁标识失败: %w", err)
	}
	lockValue := token.String()
	ok, err := r.Client.SetNX(ctx, lockKey, lockValue, expiration).Result()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return "", err
	}
	span.SetAttributes(attribute.Bool("lock.acquired", ok))
	if !ok {
		return "", nil
	}
	return lockValue, nil
}

// ReleaseLock 释放一个分布式锁，使用Lua脚本保证原子性
func (r *Redis) ReleaseLock(ctx context.Context, lockKey string, lockValue string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	ctx, span := redisTracer.Start(ctx, "Redis.ReleaseLock", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.redis.key", tracing.SafeRedisKey(lockKey))))
	defer span.End()

	res, err := releaseLockScript.Run(ctx, r.Client, []string{lockKey}, lockValue).Int64()
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeRedis)
		return false, err
	}
	span.SetAttributes(attribute.Bool("lock.released", res == 1))
	return res == 1, nil
}
