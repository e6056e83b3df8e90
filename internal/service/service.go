package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ashwinyue/chat-insight/internal/config"
	"github.com/ashwinyue/chat-insight/internal/repository"
	"github.com/ashwinyue/chat-insight/internal/service/annotator"
	"github.com/ashwinyue/chat-insight/internal/service/auth"
	"github.com/ashwinyue/chat-insight/internal/service/conversation"
	"github.com/ashwinyue/chat-insight/internal/service/event"
	"github.com/ashwinyue/chat-insight/internal/service/ingest"
	"github.com/ashwinyue/chat-insight/internal/service/insight"
	"github.com/ashwinyue/chat-insight/internal/service/search"
	"github.com/ashwinyue/chat-insight/internal/service/trend"
)

// Services 服务集合
type Services struct {
	// 业务服务
	Pipeline     *ingest.Pipeline
	Conversation *conversation.Service
	Insight      *insight.Service
	Trend        *trend.Service
	Search       *search.Service // elastic.host 为空时为 nil
	Cleaner      *ingest.Cleaner // cleanup.enabled 为 false 时为 nil
	Auth         *auth.Service

	// 基础组件
	Config    *config.Config
	Store     repository.Store
	Annotator *annotator.Service
	Locker    ingest.Locker
	Bus       *event.EventBus
}

// Deps 外部依赖，Redis 与 NATS 可以为 nil
type Deps struct {
	Repos      *repository.Repositories
	Redis      redis.UniversalClient
	NATS       *nats.Conn
	HTTPClient *http.Client // 模型请求使用，为空时按 provider 超时创建
}

// NewServices 创建所有服务并注册事件处理器
func NewServices(ctx context.Context, cfg *config.Config, deps Deps) (*Services, error) {
	var chatModel model.BaseChatModel
	if cfg.Annotator.Mode == annotator.ModeLLM {
		cm, err := newChatModel(ctx, cfg, deps.HTTPClient)
		if err != nil {
			// 没有模型时标注器全部走兜底结果
			log.Warn().Err(err).Str("provider", cfg.AI.Provider).Msg("chat model unavailable, annotator will use fallbacks")
		} else {
			chatModel = cm
		}
	}
	ann := annotator.NewService(chatModel, annotator.Config{
		Mode:                cfg.Annotator.Mode,
		MessageTimeout:      cfg.Annotator.MessageTimeoutDuration(),
		ConversationTimeout: cfg.Annotator.ConversationTimeoutDuration(),
		Temperature:         cfg.Annotator.Temperature,
		Debug:               cfg.App.Debug,
	})

	locker := newLocker(cfg, deps.Redis)
	cache, err := newCache(cfg, deps.Redis)
	if err != nil {
		return nil, err
	}

	bus := event.NewEventBus()
	insightSvc := insight.NewService(deps.Repos.Insight, cache)
	if err := bus.SubscribeAll(insightSvc); err != nil {
		return nil, err
	}

	searchSvc := newSearch(ctx, cfg, deps.Repos.Store)
	if searchSvc != nil {
		if err := bus.SubscribeAll(event.Async(searchSvc)); err != nil {
			return nil, err
		}
	}

	if deps.NATS != nil {
		forwarder := event.NewNATSForwarder(deps.NATS, cfg.NATS.SubjectPrefix)
		if err := bus.SubscribeAll(event.Async(forwarder)); err != nil {
			return nil, err
		}
	}

	trendSvc, err := trend.NewService(deps.Repos.Insight)
	if err != nil {
		return nil, err
	}

	pipeline := ingest.NewPipeline(deps.Repos.Store, ann, annotator.NewLanguageDetector(), locker, bus, ingest.Options{
		EmotionThreshold: cfg.Annotator.EmotionThreshold,
		Concurrency:      cfg.Ingest.Concurrency,
	})

	var cleaner *ingest.Cleaner
	if cfg.Cleanup.Enabled {
		cleaner = ingest.NewCleaner(deps.Repos.Store, cfg.Cleanup.Cron)
	}

	return &Services{
		Pipeline:     pipeline,
		Conversation: conversation.NewService(deps.Repos.Store, ann, locker, bus),
		Insight:      insightSvc,
		Trend:        trendSvc,
		Search:       searchSvc,
		Cleaner:      cleaner,
		Auth:         auth.NewService(cfg.Auth.Secret, cfg.Auth.Issuer),

		Config:    cfg,
		Store:     deps.Repos.Store,
		Annotator: ann,
		Locker:    locker,
		Bus:       bus,
	}, nil
}

// Close 释放服务持有的资源
func (s *Services) Close() error {
	if s.Trend != nil {
		return s.Trend.Close()
	}
	return nil
}

// newChatModel 创建 ChatModel，所有 provider 都走 OpenAI 兼容接口
func newChatModel(ctx context.Context, cfg *config.Config, httpClient *http.Client) (model.BaseChatModel, error) {
	aiCfg := cfg.AI

	var apiKey, baseURL, modelName string
	var timeout int

	switch aiCfg.Provider {
	case "openai":
		apiKey = aiCfg.OpenAI.APIKey
		baseURL = aiCfg.OpenAI.BaseURL
		modelName = aiCfg.OpenAI.Model
		timeout = aiCfg.OpenAI.Timeout
	case "deepseek":
		apiKey = aiCfg.DeepSeek.APIKey
		baseURL = aiCfg.DeepSeek.BaseURL
		modelName = aiCfg.DeepSeek.Model
		timeout = aiCfg.DeepSeek.Timeout
	case "ollama":
		// 本地端点不校验 key
		apiKey = "ollama"
		baseURL = aiCfg.Ollama.BaseURL
		modelName = aiCfg.Ollama.Model
		timeout = aiCfg.Ollama.Timeout
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", aiCfg.Provider)
	}

	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for provider: %s", aiCfg.Provider)
	}

	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Model:      modelName,
		Timeout:    time.Duration(timeout) * time.Second,
		HTTPClient: httpClient,
	})
}

// newLocker Redis 可用时使用分布式锁
func newLocker(cfg *config.Config, client redis.UniversalClient) ingest.Locker {
	if client == nil {
		return ingest.NewLocalLocker()
	}
	return ingest.NewRedisLocker(client, cfg.App.Name+":lock", cfg.Ingest.LockTTLDuration())
}

// newCache Redis 可用时使用共享缓存，否则进程内 LRU
func newCache(cfg *config.Config, client redis.UniversalClient) (insight.Cache, error) {
	if cfg.Cache.TTL <= 0 {
		return nil, nil
	}
	if client != nil {
		return insight.NewRedisCache(client, cfg.App.Name, cfg.Cache.TTLDuration()), nil
	}
	cache, err := insight.NewMemoryCache(cfg.Cache.Size, cfg.Cache.TTLDuration())
	if err != nil {
		return nil, fmt.Errorf("failed to create insight cache: %w", err)
	}
	return cache, nil
}

// newSearch 创建会话检索，未配置或客户端创建失败时返回 nil
func newSearch(ctx context.Context, cfg *config.Config, source search.ConversationSource) *search.Service {
	if cfg.Elastic.Host == "" {
		return nil
	}
	client, err := search.NewClient(&cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("failed to create es client, search disabled")
		return nil
	}
	svc := search.NewService(client, cfg.Elastic.IndexPrefix, source)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := svc.EnsureIndex(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to ensure conversation index")
	}
	return svc
}
