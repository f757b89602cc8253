package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	nsq "github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"

	"knowledgescout/internal/config"
	"knowledgescout/internal/worker"
)

// Dependencies holds the external connections the app needs at runtime.
// Redis is nil when no REDIS_ADDR is configured or the server is unreachable;
// callers fall back to the in-memory cache.
type Dependencies struct {
	DB       *sql.DB
	Producer *nsq.Producer
	Redis    *redis.Client
}

func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	db, err := connectDB(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := runMigrations(db, cfg.MigrationPath, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	producer, err := connectNSQ(cfg, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect nsq: %w", err)
	}

	return &Dependencies{
		DB:       db,
		Producer: producer,
		Redis:    connectRedis(ctx, cfg, logger),
	}, nil
}

func (d *Dependencies) Close() {
	if d.Producer != nil {
		d.Producer.Stop()
	}
	if d.Redis != nil {
		d.Redis.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

func connectDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	delay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for attempt := 1; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			logger.Info("database connected", "host", cfg.DBHost, "attempt", attempt)
			return db, nil
		}
		if attempt >= cfg.BootstrapRetryAttempts {
			db.Close()
			return nil, fmt.Errorf("ping after %d attempts: %w", attempt, err)
		}
		logger.Warn("database not ready, retrying", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func runMigrations(db *sql.DB, path string, logger *slog.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	logger.Info("migrations applied")
	return nil
}

func connectNSQ(cfg *config.Config, logger *slog.Logger) (*nsq.Producer, error) {
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		return nil, err
	}
	if err := producer.Ping(); err != nil {
		producer.Stop()
		return nil, err
	}

	// Pre-create the topic so the first consumer does not race the first
	// publish.
	if err := createTopic(cfg.NSQDHTTP, worker.TopicIndexTask); err != nil {
		logger.Warn("topic pre-creation failed", "topic", worker.TopicIndexTask, "error", err)
	}

	logger.Info("nsq producer connected", "host", cfg.NSQDHost)
	return producer, nil
}

func createTopic(nsqdHTTP, topic string) error {
	url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
	resp, err := http.Post(url, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nsqd returned status %d", resp.StatusCode)
	}
	return nil
}

func connectRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, using in-memory cache", "addr", cfg.RedisAddr, "error", err)
		client.Close()
		return nil
	}

	logger.Info("redis connected", "addr", cfg.RedisAddr)
	return client
}
