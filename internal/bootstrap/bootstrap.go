// Package bootstrap 按配置装配数据库、Redis、NATS 与服务
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ashwinyue/chat-insight/internal/config"
	"github.com/ashwinyue/chat-insight/internal/database"
	"github.com/ashwinyue/chat-insight/internal/handler"
	"github.com/ashwinyue/chat-insight/internal/logger"
	"github.com/ashwinyue/chat-insight/internal/repository"
	"github.com/ashwinyue/chat-insight/internal/service"
)

// Runtime 进程运行期依赖
type Runtime struct {
	Config   *config.Config
	Logger   zerolog.Logger
	DB       *database.DB
	Redis    *redis.Client // redis.host 为空时为 nil
	NATS     *nats.Conn    // nats.url 为空时为 nil
	Services *service.Services
}

// New 初始化日志、存储和外部连接，然后创建服务
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger.New(cfg)}

	db, err := database.New(cfg)
	if err != nil {
		return nil, err
	}
	rt.DB = db
	log.Info().Str("driver", cfg.Database.Driver).Msg("database connected")

	if cfg.Redis.Enabled() {
		rt.Redis, err = connectRedis(ctx, &cfg.Redis)
		if err != nil {
			rt.Close()
			return nil, err
		}
		log.Info().Str("addr", cfg.Redis.GetAddr()).Msg("redis connected")
	}

	if cfg.NATS.URL != "" {
		rt.NATS, err = connectNATS(cfg)
		if err != nil {
			rt.Close()
			return nil, err
		}
		log.Info().Str("url", rt.NATS.ConnectedUrl()).Msg("nats connected")
	}

	deps := service.Deps{Repos: repository.NewRepositories(db.DB), NATS: rt.NATS}
	if rt.Redis != nil {
		deps.Redis = rt.Redis
	}
	rt.Services, err = service.NewServices(ctx, cfg, deps)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}
	return rt, nil
}

// HealthChecks 已启用依赖的健康检查
func (rt *Runtime) HealthChecks() []handler.HealthCheck {
	checks := []handler.HealthCheck{{Name: "database", Check: rt.DB.Ping}}
	if rt.Redis != nil {
		checks = append(checks, handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rt.Redis.Ping(ctx).Err()
		}})
	}
	if rt.NATS != nil {
		checks = append(checks, handler.HealthCheck{Name: "nats", Check: func(context.Context) error {
			if !rt.NATS.IsConnected() {
				return fmt.Errorf("nats status %s", rt.NATS.Status())
			}
			return nil
		}})
	}
	return checks
}

// Close 按创建的逆序释放资源
func (rt *Runtime) Close() {
	if rt.Services != nil {
		if err := rt.Services.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close services")
		}
	}
	if rt.NATS != nil {
		if err := rt.NATS.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			log.Warn().Err(err).Msg("failed to drain nats connection")
		}
	}
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
	if rt.DB != nil {
		_ = rt.DB.Close()
	}
}

func connectRedis(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect redis at %s: %w", cfg.GetAddr(), err)
	}
	return client, nil
}

func connectNATS(cfg *config.Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			} else {
				log.Warn().Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if err := nc.LastError(); err != nil {
				log.Error().Err(err).Msg("nats connection closed")
			} else {
				log.Info().Msg("nats connection closed")
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			evt := log.Error().Err(err)
			if sub != nil {
				evt = evt.Str("subject", sub.Subject)
			}
			evt.Msg("nats async error")
		}),
	}

	nc, err := nats.Connect(cfg.NATS.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	return nc, nil
}
