package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	nsq "github.com/nsqio/go-nsq"

	"knowledgescout/internal/adapter/fallback"
	"knowledgescout/internal/adapter/gemini"
	"knowledgescout/internal/app"
	"knowledgescout/internal/cache"
	"knowledgescout/internal/config"
	"knowledgescout/internal/logger"
	"knowledgescout/internal/worker"
)

func main() {
	log := logger.New(os.Stdout)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	// Query cache: Redis when configured and reachable, in-memory otherwise.
	var queryCache cache.Cache
	if deps.Redis != nil {
		queryCache = cache.NewRedis(deps.Redis, log)
	} else {
		queryCache = cache.NewMemory()
	}

	// Providers: Gemini in production; deterministic fallbacks only when
	// explicitly allowed, since fallback answers are not real completions.
	var (
		embedder app.Embedder
		composer app.Composer
	)
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			slog.Error("failed to create gemini client", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		embedder, composer = client, client
	} else {
		slog.Warn("GEMINI_API_KEY not set, running with deterministic fallback embeddings and canned answers")
		embedder = fallback.NewNullEmbedder(cfg.EmbeddingDims)
		composer = &fallback.NullComposer{}
	}

	a, err := app.New(cfg, deps.DB, queryCache, worker.NewPublisher(deps.Producer), embedder, composer, log)
	if err != nil {
		slog.Error("failed to build app", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.EnableWorker {
		consumer, err := startConsumer(cfg, a.Consumer)
		if err != nil {
			slog.Error("failed to start index consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Stop()
	}

	if !cfg.EnableAPI {
		slog.Info("api disabled, worker running until interrupted")
		<-ctx.Done()
		return
	}

	if err := a.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func startConsumer(cfg *config.Config, handler *worker.IndexConsumer) (*nsq.Consumer, error) {
	consumer, err := nsq.NewConsumer(worker.TopicIndexTask, worker.ChannelIndexer, nsq.NewConfig())
	if err != nil {
		return nil, err
	}
	consumer.AddConcurrentHandlers(handler, cfg.IndexConcurrency)

	// Prefer lookupd for discovery, fall back to a direct nsqd connection.
	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Warn("lookupd unreachable, connecting to nsqd directly", "error", err)
		if err := consumer.ConnectToNSQD(cfg.NSQDHost); err != nil {
			consumer.Stop()
			return nil, err
		}
	}

	slog.Info("index consumer connected", "topic", worker.TopicIndexTask, "channel", worker.ChannelIndexer, "concurrency", cfg.IndexConcurrency)
	return consumer, nil
}
