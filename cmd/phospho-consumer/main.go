package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/maltedev/phosphosite-scraper/internal/config"
	"github.com/maltedev/phosphosite-scraper/internal/consumer"
	"github.com/maltedev/phosphosite-scraper/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		out   = flag.String("out", "", "CSV file rows are appended to (default OUTPUT_DIR/stream_export.csv)")
		group = flag.String("group", "protein-export-group", "Consumer group")
		name  = flag.String("name", "consumer-1", "Consumer name within the group")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	if !cfg.Redis.Enabled() {
		log.Printf("REDIS_ADDR is required")
		return 1
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if *out == "" {
		*out = filepath.Join(cfg.Output.Dir, "stream_export.csv")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		return 1
	}
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutting down...")
		cancel()
	}()

	c := consumer.New(rdb, consumer.NewCSVSink(*out), consumer.Config{
		Stream:   cfg.Redis.Stream,
		Group:    *group,
		Consumer: *name,
	}, logger)

	logger.Info("exporting rows", "file", *out)
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer error", "error", err)
		return 1
	}
	return 0
}
