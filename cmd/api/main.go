package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/textrun/internal/api"
	"github.com/timmy/textrun/internal/config"
	"github.com/timmy/textrun/internal/download"
	"github.com/timmy/textrun/internal/export"
	"github.com/timmy/textrun/internal/logger"
	"github.com/timmy/textrun/internal/ocr"
	"github.com/timmy/textrun/internal/pipeline"
	"github.com/timmy/textrun/internal/repository"
	"github.com/timmy/textrun/internal/service"
	"github.com/timmy/textrun/internal/storage"
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := context.Background()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	store := repository.NewJobStore(db)

	detector, err := ocr.NewAdapterFromConfig(&cfg.OCR, &cfg.Extraction)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize OCR backends")
	}
	appLogger.WithField("backends", detector.Backends()).Info("OCR backends ready")

	resolver := download.NewResolver(download.Config{
		WorkDir:   cfg.Download.WorkDir,
		YtDlpPath: cfg.Download.YtDlpPath,
		Format:    cfg.Download.Format,
		Timeout:   cfg.Download.Timeout,
	})

	// Object storage is optional; without it exports are served over HTTP only
	var publisher *export.Publisher
	if cfg.Storage.Enabled {
		objectStorage, err := newObjectStorage(ctx, &cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		publisher = export.NewPublisher(objectStorage, cfg.Storage.Prefix)
	}

	indexService := service.NewIndexService(store, nil, nil, nil)
	if cfg.Index.Enabled {
		qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
			Host:            cfg.Index.Qdrant.Host,
			Port:            cfg.Index.Qdrant.Port,
			Collection:      cfg.Index.Qdrant.Collection,
			APIKey:          cfg.Index.Qdrant.APIKey,
			UseTLS:          cfg.Index.Qdrant.UseTLS,
			VectorDimension: cfg.Index.Embedding.Dimensions,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
		}
		defer qdrantRepo.Close()

		if err := qdrantRepo.EnsureCollection(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure Qdrant collection")
		}
		indexService = service.NewIndexService(store, qdrantRepo, service.NewEmbeddingService(&cfg.Index.Embedding), &service.IndexConfig{
			BatchSize:      cfg.Index.BatchSize,
			ScoreThreshold: cfg.Index.ScoreThreshold,
		})
	}

	extraction := service.NewExtractionService(
		store,
		detector,
		resolver,
		service.OpenFFmpeg,
		pipeline.NewEventBus(cfg.Extraction.EventBuffer),
		publisher,
		appLogger,
		&service.ExtractionConfig{
			FrameStride:         cfg.Extraction.FrameStride,
			ConfidenceThreshold: cfg.Extraction.ConfidenceThreshold,
			MinTextDuration:     cfg.Extraction.MinTextDuration,
			TailSeconds:         cfg.Extraction.TailSeconds,
			TailFrames:          cfg.Extraction.TailFrames,
		},
	)

	// Jobs left active by a previous process have no worker anymore
	if n, err := extraction.Recover(ctx); err != nil {
		appLogger.WithError(err).Warn("Failed to recover interrupted jobs")
	} else if n > 0 {
		appLogger.WithField("jobs", n).Info("Marked interrupted jobs as cancelled")
	}

	sqlDB, err := db.DB()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to access database handle")
	}

	// Setup router
	router := api.SetupRouter(api.Deps{
		Extraction: extraction,
		Index:      indexService,
		Health:     sqlDB.PingContext,
		Logger:     appLogger,
	}, cfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	// The worker persists its position before exiting, so the job resumes on the next start
	if err := extraction.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Extraction worker did not stop in time")
	}

	appLogger.Info("Server exited")
}

func newObjectStorage(ctx context.Context, cfg *config.StorageConfig) (storage.ObjectStorage, error) {
	objectStorage, err := storage.NewStorage(&storage.Config{
		Type:      storage.StorageType(cfg.Type),
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		PublicURL: cfg.PublicURL,
		Prefix:    cfg.Prefix,
	})
	if err != nil {
		return nil, err
	}
	if b, ok := objectStorage.(interface{ EnsureBucket(context.Context) error }); ok {
		if err := b.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
	}
	return objectStorage, nil
}
