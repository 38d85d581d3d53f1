package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/textrun/internal/config"
	"github.com/timmy/textrun/internal/download"
	"github.com/timmy/textrun/internal/export"
	"github.com/timmy/textrun/internal/logger"
	"github.com/timmy/textrun/internal/ocr"
	"github.com/timmy/textrun/internal/pipeline"
	"github.com/timmy/textrun/internal/repository"
	"github.com/timmy/textrun/internal/service"
)

func main() {
	// Initialize logger first (with defaults)
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "textrun-extract",
	})
	logger.SetDefaultLogger(appLogger)

	// Parse command line flags
	url := flag.String("url", "", "Video URL, YouTube ID or local file path")
	stride := flag.Int("stride", 0, "Frame stride (0 uses the configured default)")
	threshold := flag.Float64("threshold", -1, "Confidence threshold (negative uses the configured default)")
	episode := flag.Int("episode", 0, "Episode number written to exports")
	restart := flag.Bool("restart", false, "Ignore stored progress and start from frame 0")
	csvPath := flag.String("csv", "", "Write the CSV export to this path")
	srtPath := flag.String("srt", "", "Write the SRT export to this path")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *url == "" {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	store := repository.NewJobStore(db)

	detector, err := ocr.NewAdapterFromConfig(&cfg.OCR, &cfg.Extraction)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize OCR backends")
	}

	events := pipeline.NewEventBus(cfg.Extraction.EventBuffer)
	extraction := service.NewExtractionService(
		store,
		detector,
		download.NewResolver(download.Config{
			WorkDir:   cfg.Download.WorkDir,
			YtDlpPath: cfg.Download.YtDlpPath,
			Format:    cfg.Download.Format,
			Timeout:   cfg.Download.Timeout,
		}),
		service.OpenFFmpeg,
		events,
		nil,
		appLogger,
		&service.ExtractionConfig{
			FrameStride:         cfg.Extraction.FrameStride,
			ConfidenceThreshold: cfg.Extraction.ConfidenceThreshold,
			MinTextDuration:     cfg.Extraction.MinTextDuration,
			TailSeconds:         cfg.Extraction.TailSeconds,
			TailFrames:          cfg.Extraction.TailFrames,
		},
	)

	ctx := context.Background()
	if _, err := extraction.Recover(ctx); err != nil {
		appLogger.WithError(err).Warn("Failed to recover interrupted jobs")
	}

	req := service.StartRequest{URL: *url, Episode: *episode, Restart: *restart}
	if *stride > 0 {
		req.FrameStride = stride
	}
	if *threshold >= 0 {
		req.ConfidenceThreshold = threshold
	}

	started, err := extraction.Start(ctx, req)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to start extraction")
	}
	if started.Warning != "" {
		appLogger.WithField("warning", started.Warning).Warn("Stored progress discarded")
	}
	appLogger.WithFields(logger.Fields{
		"source_id":   started.SourceID,
		"resumed":     started.Resumed,
		"start_frame": started.StartFrame,
		"stride":      started.FrameStride,
		"threshold":   started.Threshold,
	}).Info("Extraction started")

	// Handle graceful shutdown: the job is cancelled and can be resumed by running again
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, cancelling...")
		if _, err := extraction.Cancel(context.Background()); err != nil {
			appLogger.WithError(err).Warn("Cancel failed")
		}
	}()

	done := make(chan error, 1)
	go func() { done <- extraction.Wait(ctx) }()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	var lastSeq int64
wait:
	for {
		select {
		case err := <-done:
			if err != nil {
				appLogger.WithError(err).Fatal("Waiting for extraction failed")
			}
			break wait
		case <-ticker.C:
			for _, ev := range events.Since(lastSeq) {
				lastSeq = ev.Seq
				if ev.Type == pipeline.EventTypeRun {
					appLogger.WithFields(logger.Fields{"frame": ev.Frame, "text": ev.Text}).Info("Run")
				}
			}
			if state, err := extraction.State(ctx, started.SourceID); err == nil {
				appLogger.WithFields(logger.Fields{
					"status":  state.Status,
					"percent": state.Percent,
				}).Info("Progress")
			}
		}
	}

	state, err := extraction.State(ctx, started.SourceID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read job state")
	}
	appLogger.WithFields(logger.Fields{
		"status":    state.Status,
		"processed": state.Progress.ProcessedFrameCount,
		"total":     state.Progress.TotalFrameCount,
	}).Info("Extraction finished")

	if *csvPath == "" && *srtPath == "" {
		return
	}
	res, err := extraction.Export(ctx, started.SourceID, false)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to export runs")
	}
	if *csvPath != "" {
		writeFile(appLogger, *csvPath, res.Records, export.WriteCSV)
	}
	if *srtPath != "" {
		writeFile(appLogger, *srtPath, res.Records, export.WriteSRT)
	}
}

func writeFile(log *logger.Logger, path string, records []export.Record, write func(w io.Writer, records []export.Record) error) {
	f, err := os.Create(path)
	if err != nil {
		log.WithError(err).Fatal("Failed to create export file")
	}
	if err := write(f, records); err != nil {
		f.Close()
		log.WithError(err).Fatal("Failed to write export file")
	}
	if err := f.Close(); err != nil {
		log.WithError(err).Fatal("Failed to close export file")
	}
	log.WithFields(logger.Fields{"path": path, "records": len(records)}).Info("Export written")
}
