// Package testutil 提供测试辅助工具
package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ashwinyue/chat-insight/internal/config"
	"github.com/ashwinyue/chat-insight/internal/database"
)

// NewTestDB 创建迁移完成的内存 sqlite 数据库
// 每个测试独立的数据库，测试结束时关闭
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 单连接，避免内存库在连接间不可见
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// NewTestConfig 返回测试用配置，不依赖外部服务
func NewTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "chat-insight-test", Environment: "test"},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   ":memory:",
		},
		Annotator: config.AnnotatorConfig{
			Mode:                "llm",
			MessageTimeout:      2,
			ConversationTimeout: 2,
			EmotionThreshold:    0.20,
		},
		Ingest: config.IngestConfig{Concurrency: 2, LockTTL: 5},
		Cache:  config.CacheConfig{TTL: 60, Size: 64},
		Cleanup: config.CleanupConfig{
			Enabled: false,
			Cron:    "*/30 * * * *",
		},
		NATS: config.NATSConfig{SubjectPrefix: "chat_insight", IngestSubject: "chat_insight.ingest", QueueGroup: "chat-insight"},
		Log:  config.LogConfig{Level: "disabled", Format: "json"},
	}
}
