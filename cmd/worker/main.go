/**
 * Screenscan Worker - Main Entry Point
 *
 * Pages through profiles on an adb-attached phone, OCRs every screenshot and
 * keeps a cropped profile photo of each screen whose text matches one of the
 * configured patterns. Everything else is deleted.
 *
 * Architecture:
 * - Capture producer: screenshot, tap "next", pull, hand off
 * - Bounded path queue between producer and worker
 * - Single recognition worker: Tesseract OCR, regex match, crop or delete
 * - Outcome observers: SQL ledger, Redis events, asynq face:verify hand-off
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/screenscan-worker/internal/capture"
	"github.com/adverant/nexus/screenscan-worker/internal/clients"
	"github.com/adverant/nexus/screenscan-worker/internal/config"
	"github.com/adverant/nexus/screenscan-worker/internal/device"
	"github.com/adverant/nexus/screenscan-worker/internal/logging"
	"github.com/adverant/nexus/screenscan-worker/internal/ocr"
	"github.com/adverant/nexus/screenscan-worker/internal/processor"
	"github.com/adverant/nexus/screenscan-worker/internal/queue"
	"github.com/adverant/nexus/screenscan-worker/internal/storage"
)

func main() {
	log := logging.NewLogger("main")
	defer log.Sync()

	// Load environment variables
	if err := godotenv.Load(".env.screenscan"); err != nil {
		log.Warn(".env.screenscan not found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Worker exited with error", "error", err)
		log.Sync()
		os.Exit(1)
	}

	log.Info("Shutdown complete")
}

// closer pairs a resource with the name used when logging its shutdown
type closer struct {
	name  string
	close func() error
}

func run(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].close(); err != nil {
				log.Warn("Error closing resource", "resource", closers[i].name, "error", err)
			}
		}
	}()

	log.Info("Screenscan worker starting",
		"detection_model", cfg.DetectionModelPath,
		"recognition_model", cfg.RecognitionModelPath,
		"patterns", len(cfg.Patterns),
		"output", cfg.OutputDir)

	// Initialize OCR (models, warm-up, patterns)
	engine, err := ocr.New(ctx, &ocr.Config{
		DetectionModelPath:   cfg.DetectionModelPath,
		RecognitionModelPath: cfg.RecognitionModelPath,
		Patterns:             cfg.Patterns,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize OCR: %w", err)
	}
	closers = append(closers, closer{"ocr", engine.Close})
	log.Info("OCR initialized", "patterns", engine.Patterns().Patterns())

	observers, err := buildObservers(ctx, cfg, log, &closers)
	if err != nil {
		return err
	}

	// Start the recognition worker
	handle, err := processor.Start(&processor.Config{
		Extractor:             engine,
		Matcher:               engine,
		OutputDir:             cfg.OutputDir,
		Crop:                  processor.Region(cfg.Crop),
		QueueCapacity:         cfg.QueueCapacity,
		QueueOverflow:         overflowPolicy(cfg.QueueOverflow),
		FailurePolicy:         failurePolicy(cfg.FailurePolicy),
		RemoveSourceAfterCrop: cfg.RemoveSourceAfterCrop,
		SkipSimilarFrames:     cfg.SkipSimilarFrames,
		MaxHashDistance:       cfg.MaxHashDistance,
		ProcessingTimeout:     time.Duration(cfg.ProcessingTimeout) * time.Millisecond,
		Observers:             observers,
		Logger:                logging.NewLogger("processor"),
	})
	if err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	producer, err := newProducer(ctx, cfg, handle, log)
	if err != nil {
		handle.Close()
		handle.Wait()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := producer.Run(gctx)
		// No more sends; the worker drains what is queued and stops.
		handle.Close()
		return err
	})
	g.Go(func() error {
		return handle.Wait()
	})

	log.Info("Screenscan worker is READY", "queue_capacity", cfg.QueueCapacity)

	err = g.Wait()
	stats := handle.Stats()
	log.Info("Run finished",
		"frames", producer.Frames(),
		"received", stats.Received,
		"cropped", stats.Cropped,
		"deleted", stats.Deleted,
		"duplicates", stats.Duplicates,
		"failed", stats.Failed,
		"quarantined", stats.Quarantined,
		"dropped", stats.Dropped)

	return err
}

// buildObservers wires every outcome sink that has its settings present
func buildObservers(ctx context.Context, cfg *config.Config, log *logging.Logger, closers *[]closer) ([]processor.Observer, error) {
	var observers []processor.Observer

	if cfg.LedgerDSN != "" {
		ledger, err := storage.OpenLedger(ctx, cfg.LedgerDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open outcome ledger: %w", err)
		}
		*closers = append(*closers, closer{"ledger", ledger.Close})
		observers = append(observers, ledger)
		log.Info("Outcome ledger connected")
	}

	if cfg.EventsRedisURL != "" {
		events, err := clients.NewEventPublisher(ctx, &clients.EventPublisherConfig{
			RedisURL: cfg.EventsRedisURL,
			Channel:  cfg.EventsChannel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize event publisher: %w", err)
		}
		*closers = append(*closers, closer{"events", events.Close})
		observers = append(observers, events)
		log.Info("Event publisher connected", "channel", events.Channel())
	}

	if cfg.HandoffRedisURL != "" {
		handoff, err := clients.NewHandoff(&clients.HandoffConfig{
			RedisURL:  cfg.HandoffRedisURL,
			QueueName: cfg.HandoffQueue,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize face verification hand-off: %w", err)
		}
		*closers = append(*closers, closer{"handoff", handoff.Close})
		observers = append(observers, handoff)
		log.Info("Face verification hand-off enabled", "queue", cfg.HandoffQueue)
	}

	return observers, nil
}

// newProducer connects to the device and resolves the next-button position
func newProducer(ctx context.Context, cfg *config.Config, sender capture.Sender, log *logging.Logger) (*capture.Producer, error) {
	ctrl := device.NewController(&device.Config{ADBPath: cfg.ADBPath, Serial: cfg.DeviceSerial})

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := ctrl.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to device: %w", err)
	}

	width, height, err := ctrl.ScreenSize(connectCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to read screen size: %w", err)
	}
	x, y := device.NextProfileButton(width, height, cfg.NextButtonOffsetX, cfg.NextButtonOffsetY)
	log.Info("Device connected", "serial", cfg.DeviceSerial, "screen", fmt.Sprintf("%dx%d", width, height), "next_button", fmt.Sprintf("%d,%d", x, y))

	return capture.NewProducer(ctrl, sender, &capture.Config{
		RemoteDir:  cfg.RemoteDir,
		SourcesDir: filepath.Join(cfg.OutputDir, processor.SourcesDir),
		Interval:   time.Duration(cfg.CaptureInterval) * time.Millisecond,
		ButtonX:    x,
		ButtonY:    y,
		Logger:     logging.NewLogger("capture").With("serial", cfg.DeviceSerial),
	})
}

func overflowPolicy(name string) queue.Overflow {
	if name == config.OverflowDropOldest {
		return queue.DropOldest
	}
	return queue.Block
}

func failurePolicy(name string) processor.FailurePolicy {
	if name == config.FailureQuarantine {
		return processor.FailQuarantine
	}
	return processor.FailDelete
}
