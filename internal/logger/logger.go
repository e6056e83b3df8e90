package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ashwinyue/chat-insight/internal/config"
)

// New 创建 zerolog.Logger 并设置为全局日志
// format 为 json 时输出结构化日志，其它值输出控制台格式
func New(cfg *config.Config) zerolog.Logger {
	var output io.Writer = os.Stdout
	if !strings.EqualFold(cfg.Log.Format, "json") {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	base := zerolog.New(output).
		With().
		Timestamp().
		Str("service", cfg.App.Name).
		Str("environment", cfg.App.Environment).
		Logger().
		Level(parseLevel(cfg.Log.Level))

	log.Logger = base
	zerolog.SetGlobalLevel(base.GetLevel())
	return base
}

func parseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
