package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Elastic   ElasticConfig
	NATS      NATSConfig
	AI        AIConfig
	Annotator AnnotatorConfig
	Ingest    IngestConfig
	Cache     CacheConfig
	Cleanup   CleanupConfig
	Auth      AuthConfig
	Log       LogConfig
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string
	Environment string
	Version     string
	Debug       bool
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig 数据库配置
// Driver 支持 postgres、mysql、sqlite
type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	Path         string // sqlite 文件路径
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
}

// RedisConfig Redis配置
// Host 为空时不启用 Redis（分布式锁与缓存退化为进程内实现）
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ElasticConfig Elasticsearch配置
type ElasticConfig struct {
	Host        string
	Username    string
	Password    string
	IndexPrefix string
}

// NATSConfig NATS 配置
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	IngestSubject string
	QueueGroup    string
}

// AIConfig AI配置
type AIConfig struct {
	Provider string
	OpenAI   OpenAIConfig
	DeepSeek DeepSeekConfig
	Ollama   OllamaConfig
}

// OpenAIConfig OpenAI配置
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int
}

// DeepSeekConfig DeepSeek配置
type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int
}

// OllamaConfig 本地 OpenAI 兼容端点配置
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout int
}

// AnnotatorConfig 标注器配置
type AnnotatorConfig struct {
	Mode                string  // llm | heuristic
	MessageTimeout      int     // 秒
	ConversationTimeout int     // 秒
	EmotionThreshold    float64 // 情绪存在阈值
	Temperature         float64
}

// IngestConfig 摄取管道配置
type IngestConfig struct {
	Concurrency int
	LockTTL     int // 秒
}

// CacheConfig 查询缓存配置
type CacheConfig struct {
	TTL  int // 秒
	Size int
}

// CleanupConfig 定时清理配置
type CleanupConfig struct {
	Enabled bool
	Cron    string
}

// AuthConfig 认证配置
// Secret 为空时写接口不做认证
type AuthConfig struct {
	Secret string
	Issuer string
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string
	Format string
}

var globalConfig *Config

// Load 加载配置
// path 为空或文件不存在时只使用默认值和环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	// 环境变量
	v.SetEnvPrefix("CHAT_INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("config not loaded")
	}
	return globalConfig
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.Annotator.Mode {
	case "llm", "heuristic":
	default:
		return fmt.Errorf("unsupported annotator mode: %s", c.Annotator.Mode)
	}
	if c.Annotator.EmotionThreshold < 0 || c.Annotator.EmotionThreshold > 1 {
		return fmt.Errorf("annotator.emotionThreshold must be within [0,1], got %v", c.Annotator.EmotionThreshold)
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be positive, got %d", c.Ingest.Concurrency)
	}
	return nil
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	case "sqlite":
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", c.Path)
	default:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
}

// GetAddr 获取服务器地址
func (c *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAddr 获取 Redis 地址
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled Redis 是否启用
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

// MessageTimeoutDuration 单条消息标注超时
func (c *AnnotatorConfig) MessageTimeoutDuration() time.Duration {
	return time.Duration(c.MessageTimeout) * time.Second
}

// ConversationTimeoutDuration 会话总结超时
func (c *AnnotatorConfig) ConversationTimeoutDuration() time.Duration {
	return time.Duration(c.ConversationTimeout) * time.Second
}

// LockTTLDuration 命名空间锁过期时间
func (c *IngestConfig) LockTTLDuration() time.Duration {
	return time.Duration(c.LockTTL) * time.Second
}

// TTLDuration 缓存过期时间
func (c *CacheConfig) TTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "chat-insight")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.debug", false)

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)

	// Database
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "chat_insight")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "chat_insight.db")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.maxLifetime", 300)

	// Redis
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Elastic
	v.SetDefault("elastic.host", "")
	v.SetDefault("elastic.username", "")
	v.SetDefault("elastic.password", "")
	v.SetDefault("elastic.indexPrefix", "chat_insight")

	// NATS
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subjectPrefix", "chat_insight")
	v.SetDefault("nats.ingestSubject", "chat_insight.ingest")
	v.SetDefault("nats.queueGroup", "chat-insight")

	// AI
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.openai.apiKey", "")
	v.SetDefault("ai.openai.baseUrl", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.openai.timeout", 30)
	v.SetDefault("ai.deepseek.apiKey", "")
	v.SetDefault("ai.deepseek.baseUrl", "https://api.deepseek.com/v1")
	v.SetDefault("ai.deepseek.model", "deepseek-chat")
	v.SetDefault("ai.deepseek.timeout", 30)
	v.SetDefault("ai.ollama.baseUrl", "http://localhost:11434/v1")
	v.SetDefault("ai.ollama.model", "gpt-oss:20b")
	v.SetDefault("ai.ollama.timeout", 60)

	// Annotator
	v.SetDefault("annotator.mode", "llm")
	v.SetDefault("annotator.messageTimeout", 8)
	v.SetDefault("annotator.conversationTimeout", 12)
	v.SetDefault("annotator.emotionThreshold", 0.20)
	v.SetDefault("annotator.temperature", 0.0)

	// Ingest
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.lockTTL", 30)

	// Cache
	v.SetDefault("cache.ttl", 60)
	v.SetDefault("cache.size", 256)

	// Cleanup
	v.SetDefault("cleanup.enabled", true)
	v.SetDefault("cleanup.cron", "*/30 * * * *")

	// Auth
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "chat-insight")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}
