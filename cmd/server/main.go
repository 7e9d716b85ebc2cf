package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Brownie44l1/plastic-classifier/internal/config"
	"github.com/Brownie44l1/plastic-classifier/internal/handlers"
	"github.com/Brownie44l1/plastic-classifier/internal/model"
	"github.com/Brownie44l1/plastic-classifier/internal/recycling"
	"github.com/Brownie44l1/plastic-classifier/internal/scanner"
	"github.com/Brownie44l1/plastic-classifier/internal/session"
	"github.com/Brownie44l1/plastic-classifier/pkg/logger"
)

const sessionTTL = 30 * time.Minute

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	var opts []model.ServerOption
	if cfg.OnnxRuntimeLib != "" {
		opts = append(opts, model.WithSharedLibrary(cfg.OnnxRuntimeLib))
	}
	store := model.NewONNXStore(cfg.ModelPath, cfg.MetadataPath, opts...)
	defer store.Close()

	// Load up front so a broken artifact is reported once at startup. The
	// server keeps running and answers classification requests with 503.
	log.Info("loading model", zap.String("model", cfg.ModelPath), zap.String("metadata", cfg.MetadataPath))
	if m, err := store.Load(); err != nil {
		log.Error("model unavailable, classification disabled", zap.Error(err))
	} else {
		log.Info("model loaded", zap.Any("classes", m.Labels()))
	}

	catalog, err := recycling.LoadCatalog(cfg.CatalogPath)
	fatalOnErr(err, "load recycling catalog")

	sc, err := scanner.New(store, catalog, log, scanner.Config{Threshold: cfg.ConfidenceThreshold, MaxImagePixels: cfg.MaxImagePixels})
	fatalOnErr(err, "create scanner")

	sessions := session.NewManager(sessionTTL)
	handler := handlers.NewHandler(sc, sessions, log, cfg.MaxUploadBytes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go pruneSessions(ctx, sessions, log)

	go func() {
		log.Info("server starting",
			zap.String("port", cfg.Port),
			zap.Float32("threshold", cfg.ConfidenceThreshold),
			zap.Strings("endpoints", []string{
				"GET /health", "GET /labels", "POST /predict", "POST /predict/image",
				"POST /sessions", "GET /sessions/{id}", "POST /sessions/{id}/scan",
				"POST /sessions/{id}/home", "POST /sessions/{id}/classify", "GET /metrics",
			}))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
}

func pruneSessions(ctx context.Context, sessions *session.Manager, log *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := sessions.Prune(now); n > 0 {
				log.Debug("pruned idle sessions", zap.Int("count", n))
			}
		}
	}
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		os.Stderr.WriteString(msg + ": " + err.Error() + "\n")
		os.Exit(1)
	}
}
