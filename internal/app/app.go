// Package app assembles repositories, services and handlers into the HTTP
// surface and the queue consumer.
package app

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"knowledgescout/features/ask"
	"knowledgescout/features/auth"
	"knowledgescout/features/document"
	"knowledgescout/features/index"
	"knowledgescout/internal/answer"
	"knowledgescout/internal/cache"
	"knowledgescout/internal/chunk"
	"knowledgescout/internal/config"
	"knowledgescout/internal/indexer"
	"knowledgescout/internal/middleware"
	"knowledgescout/internal/text"
	"knowledgescout/internal/worker"
)

// Embedder and Composer are the provider seams: Gemini in production, the
// fallback package or mocks elsewhere.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type Composer interface {
	Compose(ctx context.Context, question, contextBlock string) (string, error)
}

type App struct {
	Handler         http.Handler
	Consumer        *worker.IndexConsumer
	DocumentService *document.Service

	limiter *middleware.RateLimiter
	port    int
}

// Close releases background resources, currently the rate limiter's
// sweeper. Run calls it on shutdown; tests that never Run should call it
// themselves.
func (a *App) Close() {
	a.limiter.Stop()
}

func New(
	cfg *config.Config,
	db *sql.DB,
	queryCache cache.Cache,
	taskPub document.TaskPublisher,
	embedder Embedder,
	composer Composer,
	logger *slog.Logger,
) (*App, error) {
	splitter, err := text.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	chunkStore := chunk.NewPostgresStore(db)
	docRepo := document.NewPostgresRepo(db)

	// Feature: Auth
	authRepo := auth.NewPostgresRepo(db)
	authService := auth.NewService(authRepo, cfg.JWTSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)
	authHandler := auth.NewHandler(authService)

	// Feature: Document
	docService := document.NewService(docRepo, taskPub, queryCache, cfg.UploadDir, logger)
	docHandler := document.NewHandler(docService, cfg.MaxUploadSizeMB<<20)

	// Feature: Ask
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	answerService := answer.NewService(embedder, composer, chunkStore, queryCache, cacheTTL, logger)
	askHandler := ask.NewHandler(answerService, docService)

	// Feature: Index
	indexHandler := index.NewHandler(docRepo, chunkStore, taskPub, queryCache)

	// Indexing pipeline behind the queue consumer
	pipeline := indexer.NewPipeline(docRepo, indexer.NewFileLoader(), chunkStore, embedder, queryCache, splitter, 60*time.Second, logger)
	consumer := worker.NewIndexConsumer(pipeline)

	// Middleware: CORS
	enableCORS := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	requireAuth := middleware.RequireAuth(authService)
	optionalAuth := middleware.OptionalAuth(authService)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	rateLimit := limiter.Middleware

	public := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(enableCORS(h))
	}
	limited := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(enableCORS(rateLimit(h)))
	}
	limitedOptional := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(enableCORS(rateLimit(optionalAuth(h))))
	}
	optional := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(enableCORS(optionalAuth(h)))
	}
	authed := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(enableCORS(requireAuth(h)))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(enableCORS(requireAuth(middleware.RequireAdmin(h))))
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /ask", limitedOptional(askHandler.Ask))

	mux.Handle("GET /index/stats", public(indexHandler.Stats))
	mux.Handle("GET /index/health", public(indexHandler.Health))
	mux.Handle("POST /index/rebuild", admin(indexHandler.Rebuild))
	mux.Handle("DELETE /index/cache", admin(indexHandler.ClearCache))

	mux.Handle("POST /auth/register", limited(authHandler.Register))
	mux.Handle("POST /auth/login", limited(authHandler.Login))
	mux.Handle("GET /auth/me", authed(authHandler.Me))

	mux.Handle("POST /docs", authed(docHandler.Upload))
	mux.Handle("GET /docs", optional(docHandler.List))
	mux.Handle("GET /docs/{id}", optional(docHandler.Get))
	mux.Handle("DELETE /docs/{id}", authed(docHandler.Delete))
	mux.Handle("POST /docs/{id}/share", authed(docHandler.Share))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})

	return &App{
		Handler:         mux,
		Consumer:        consumer,
		DocumentService: docService,
		limiter:         limiter,
		port:            cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
