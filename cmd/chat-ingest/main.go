package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ashwinyue/chat-insight/internal/bootstrap"
	"github.com/ashwinyue/chat-insight/internal/config"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chat-ingest",
	Short: "Offline tools for the chat-insight ingestion pipeline",
	Long: `chat-ingest runs the ingestion pipeline outside the HTTP server.

Examples:
  chat-ingest ingest exports/*.json
  cat batch.json | chat-ingest ingest -
  chat-ingest publish exports/ns-42.json
  chat-ingest sweep
  chat-ingest token --subject ops --ttl 24h`,
	SilenceUsage: true,
}

func init() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./configs/config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultPath, "Path to config file")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(tokenCmd)
}

// loadRuntime 加载配置并初始化运行期依赖
func loadRuntime(ctx context.Context) (*bootstrap.Runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, cfg)
}
