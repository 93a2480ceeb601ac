package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"hiregenai/internal/config"
	"hiregenai/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖。
// MySQL 必须可用；MinIO、Redis、RabbitMQ 未配置时为 nil，调用方按可选依赖处理。
type Storage struct {
	// 关系型数据库
	MySQL *MySQL
	// 业务表读写
	Applications *ApplicationStore

	// 对象存储
	MinIO *MinIO

	// 键值存储
	Redis *Redis

	// 消息队列
	RabbitMQ *RabbitMQ

	logger zerolog.Logger
}

// NewStorage 创建存储管理器
func NewStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	if cfg.MySQL.Host == "" {
		return nil, fmt.Errorf("mysql.host 未配置")
	}

	s := &Storage{logger: log}
	var err error

	s.MySQL, err = NewMySQL(&cfg.MySQL, logger.Component(log, "mysql"))
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}
	s.Applications = NewApplicationStore(s.MySQL.DB(), logger.Component(log, "application_store"))

	var initErrors []error

	if cfg.MinIO.Endpoint != "" {
		s.MinIO, err = NewMinIO(&cfg.MinIO, logger.Component(log, "minio"))
		if err != nil {
			initErrors = append(initErrors, fmt.Errorf("MinIO: %w", err))
		}
	}

	if cfg.Redis.Address != "" {
		s.Redis, err = NewRedis(&cfg.Redis, logger.Component(log, "redis"))
		if err != nil {
			initErrors = append(initErrors, fmt.Errorf("Redis: %w", err))
		}
	}

	if cfg.RabbitMQ.URL != "" {
		s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ, logger.Component(log, "rabbitmq"))
		if err == nil {
			err = s.RabbitMQ.SetupEvaluationTopology()
		}
		if err != nil {
			initErrors = append(initErrors, fmt.Errorf("RabbitMQ: %w", err))
		}
	}

	// 已配置但连接失败的组件视为启动失败
	if len(initErrors) > 0 {
		s.Close()
		return nil, fmt.Errorf("存储组件初始化失败: %w", errors.Join(initErrors...))
	}

	log.Info().
		Bool("minio", s.MinIO != nil).
		Bool("redis", s.Redis != nil).
		Bool("rabbitmq", s.RabbitMQ != nil).
		Msg("存储组件初始化完成")
	return s, nil
}

// Ping 检查必需组件
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.MySQL.Ping(ctx); err != nil {
		return fmt.Errorf("mysql: %w", err)
	}
	if s.Redis != nil {
		if err := s.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close 关闭所有连接
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("关闭Redis连接失败")
		}
	}
}
