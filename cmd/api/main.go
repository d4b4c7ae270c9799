package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"recipebox/internal/api"
	"recipebox/internal/config"
	"recipebox/internal/extract"
	"recipebox/internal/ingest"
	"recipebox/internal/platform/gemini"
	"recipebox/internal/platform/localllm"
	"recipebox/internal/recipe"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbStore, err := recipe.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("error creating postgresstore: %w", err)
	}
	defer dbStore.Close()

	recognizer, closeRecognizer, err := newRecognizer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("error creating recognizer: %w", err)
	}
	defer closeRecognizer()
	if !recognizer.Configured() {
		slog.Warn("recognizer has no credential; image imports will fail", "recognizer", cfg.Recognizer)
	}

	ingester := ingest.NewService(
		dbStore,
		extract.NewWebpageExtractor(nil, cfg.FetchTimeout),
		extract.NewImageExtractor(recognizer),
	)
	handler := api.NewHandler(dbStore, ingester)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", srv.Addr, "prefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRecognizer(ctx context.Context, cfg *config.Config) (extract.Recognizer, func(), error) {
	switch cfg.Recognizer {
	case config.RecognizerLocal:
		return localllm.NewClient(cfg.LocalLLMURL, cfg.LocalLLMKey, cfg.LocalLLMModel), func() {}, nil
	default:
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		return client, func() { client.Close() }, nil
	}
}

func newRouter(cfg *config.Config, handler *api.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger())

	// Configure CORS middleware
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-Id"},
		ExposeHeaders: []string{"Content-Length", "X-Request-Id"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || cfg.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	r.Use(cors.New(corsConfig))

	handler.RegisterRoutes(r.Group(cfg.APIPrefix))
	return r
}
