package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/bulatminnakhmetov/media-relay/docs"
	"github.com/bulatminnakhmetov/media-relay/internal/config"
	"github.com/bulatminnakhmetov/media-relay/internal/database"
	authhandler "github.com/bulatminnakhmetov/media-relay/internal/handler/auth"
	mediahandler "github.com/bulatminnakhmetov/media-relay/internal/handler/media"
	"github.com/bulatminnakhmetov/media-relay/internal/metrics"
	"github.com/bulatminnakhmetov/media-relay/internal/relay"
	mediarepo "github.com/bulatminnakhmetov/media-relay/internal/repository/media"
	mediaservice "github.com/bulatminnakhmetov/media-relay/internal/service/media"
)

// @title                       Media Relay API
// @version                     1.0
// @description                 Uploads media files and relays them to a remote host.
// @BasePath                    /api
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	backend, _ := cfg.Backend()
	logger.Info("configuration loaded", "config", cfg.String())

	db, err := database.NewConnection(&cfg.DB)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logger.Error("failed to create upload directory", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	relayMetrics := metrics.MustNewMetrics(registry)

	mediaRepo := mediarepo.NewRepository(db)
	mediaService, err := mediaservice.NewMediaService(mediaRepo, relay.New(), mediaservice.Config{
		UploadDir:             cfg.UploadDir,
		UploadBaseURL:         cfg.UploadBaseURL,
		Backend:               backend,
		DeleteLocalAfterRelay: cfg.DeleteLocalAfterRelay,
		MaxFileSize:           cfg.MaxFileSize,
	}, logger, relayMetrics)
	if err != nil {
		logger.Error("failed to create media service", "error", err)
		os.Exit(1)
	}
	mediaHandler := mediahandler.NewMediaHandler(mediaService, cfg.MaxFileSize)
	authenticator := authhandler.NewAuthenticator(cfg.JWTSecret)

	docs.SwaggerInfo.BasePath = "/api"

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))

	r.Group(func(r chi.Router) {
		r.Use(authenticator.Middleware)
		r.Route("/api/media", mediaHandler.Routes)
	})

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		logger.Info("server is starting", "port", cfg.ServerPort, "backend", backend.Name)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("could not listen", "port", cfg.ServerPort, "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}

	logger.Info("server gracefully stopped")
}
