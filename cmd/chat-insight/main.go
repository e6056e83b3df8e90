package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ashwinyue/chat-insight/internal/bootstrap"
	"github.com/ashwinyue/chat-insight/internal/config"
	"github.com/ashwinyue/chat-insight/internal/handler"
	"github.com/ashwinyue/chat-insight/internal/router"
	"github.com/ashwinyue/chat-insight/internal/service/ingest"
)

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init runtime")
	}
	defer rt.Close()
	services := rt.Services

	// NATS 摄取消费者
	var consumer *ingest.Consumer
	if rt.NATS != nil && cfg.NATS.IngestSubject != "" {
		consumer = ingest.NewConsumer(services.Pipeline, cfg.NATS.IngestSubject, cfg.NATS.QueueGroup)
		if err := consumer.Start(rt.NATS); err != nil {
			log.Fatal().Err(err).Msg("failed to start ingest consumer")
		}
	}

	// 定时清理
	if services.Cleaner != nil {
		go func() {
			if err := services.Cleaner.Run(ctx); err != nil {
				log.Error().Err(err).Msg("cleanup scheduler stopped")
			}
		}()
	}

	handlers := handler.NewHandlers(services, rt.HealthChecks()...)
	r := router.SetupRouter(handlers, services.Auth, rt.Logger)

	srv := &http.Server{
		Addr:         cfg.Server.GetAddr(),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	// 先停止接收新的消息，再关闭 HTTP
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			log.Warn().Err(err).Msg("failed to drain ingest consumer")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
