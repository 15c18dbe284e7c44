/**
 * Recognition-Decision Worker for the screenscan pipeline
 *
 * One goroutine drains the path queue and, per image:
 * - optionally skips perceptually identical frames
 * - extracts text through the OCR adapter
 * - deletes the image when no pattern matches, crops and persists it otherwise
 *
 * Per-image failures are isolated; only fatal errors stop the worker.
 */

package processor

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/adverant/nexus/screenscan-worker/internal/errors"
	"github.com/adverant/nexus/screenscan-worker/internal/logging"
	"github.com/adverant/nexus/screenscan-worker/internal/queue"
)

const (
	defaultProcessingTimeout = 60 * time.Second
	observeTimeout           = 5 * time.Second
)

// Output subdirectories under Config.OutputDir
const (
	SourcesDir = "sources"
	CroppedDir = "cropped"
	FailedDir  = "failed"
)

// TextExtractor turns an image file into text
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Matcher returns the indices of the patterns matching text
type Matcher interface {
	Match(text string) []int
}

// FailurePolicy decides what happens to an image whose processing failed
type FailurePolicy int

const (
	// FailDelete removes the image so it is never reprocessed
	FailDelete FailurePolicy = iota
	// FailQuarantine moves the image into the failed directory for inspection
	FailQuarantine
)

// Config holds worker configuration
type Config struct {
	Extractor TextExtractor
	Matcher   Matcher

	// OutputDir holds cropped/ and failed/; sources/ is created for producers
	OutputDir string
	Crop      Region

	QueueCapacity int
	QueueOverflow queue.Overflow

	FailurePolicy         FailurePolicy
	RemoveSourceAfterCrop bool
	SkipSimilarFrames     bool
	MaxHashDistance       int
	ProcessingTimeout     time.Duration

	Observers []Observer
	Logger    *logging.Logger
}

// Handle is the send side of a running worker
type Handle struct {
	queue *queue.Queue
	done  chan struct{}
	err   error
	stats *statsCounter
}

// Send hands ownership of path to the worker. It fails with queue.ErrClosed
// after Close or once the worker has stopped.
func (h *Handle) Send(path string) error {
	return h.queue.Send(path)
}

// Close drops the send side; the worker finishes pending images and stops
func (h *Handle) Close() {
	h.queue.Close()
}

// Done is closed when the worker has stopped
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the worker stops and returns its fatal error, if any
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Pending returns the number of queued, unprocessed images
func (h *Handle) Pending() int {
	return h.queue.Len()
}

// Stats returns a snapshot of the outcome counters
func (h *Handle) Stats() Stats {
	return h.stats.snapshot()
}

type worker struct {
	handle    *Handle
	extractor TextExtractor
	matcher   Matcher
	cropper   *Cropper
	frames    *frameFilter
	config    *Config
	failedDir string
	log       *logging.Logger
}

// Start validates cfg, prepares the output directories and starts the worker
func Start(cfg *Config) (*Handle, error) {
	if cfg == nil {
		return nil, apperrors.NewConfigError("config is required")
	}
	if cfg.Extractor == nil {
		return nil, apperrors.NewConfigError("text extractor is required")
	}
	if cfg.Matcher == nil {
		return nil, apperrors.NewConfigError("matcher is required")
	}
	if cfg.OutputDir == "" {
		return nil, apperrors.NewConfigError("output directory is required")
	}
	if cfg.Crop.Width <= 0 || cfg.Crop.Height <= 0 {
		return nil, apperrors.NewConfigError("crop size must be positive, got %dx%d", cfg.Crop.Width, cfg.Crop.Height)
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = defaultProcessingTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("processor")
	}

	for _, sub := range []string{SourcesDir, CroppedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(cfg.OutputDir, sub), 0o755); err != nil {
			return nil, apperrors.NewConfigError("failed to create output directory %s: %v", sub, err)
		}
	}

	w := &worker{
		extractor: cfg.Extractor,
		matcher:   cfg.Matcher,
		cropper:   NewCropper(cfg.Crop, filepath.Join(cfg.OutputDir, CroppedDir)),
		config:    cfg,
		failedDir: filepath.Join(cfg.OutputDir, FailedDir),
		log:       cfg.Logger,
	}
	if cfg.SkipSimilarFrames {
		w.frames = newFrameFilter(cfg.MaxHashDistance)
	}

	w.handle = &Handle{
		queue: queue.New(queue.Config{
			Capacity: cfg.QueueCapacity,
			Overflow: cfg.QueueOverflow,
		}),
		done:  make(chan struct{}),
		stats: &statsCounter{},
	}

	go w.run()

	w.log.Info("Worker started",
		"output", cfg.OutputDir,
		"queue_capacity", cfg.QueueCapacity,
		"crop", fmt.Sprintf("%+v", cfg.Crop))

	return w.handle, nil
}

// run is the single consumer loop
func (w *worker) run() {
	defer close(w.handle.done)

	for {
		path, ok := w.handle.queue.Receive()
		w.disposeEvicted()
		if !ok {
			w.log.Info("Queue closed, worker stopping", "stats", fmt.Sprintf("%+v", w.handle.stats.snapshot()))
			return
		}
		w.handle.stats.received()

		outcome, fatal := w.process(path)
		if fatal != nil {
			w.handle.err = fatal
			w.handle.queue.Close()
			w.log.Error("Fatal error, worker stopping",
				"image", path,
				"error", fatal,
				"pending", w.handle.queue.Len())
			return
		}

		w.handle.stats.record(outcome.Disposition)
		w.notify(outcome)
	}
}

// process routes one image. The returned error is non-nil only for fatal errors.
func (w *worker) process(path string) (Outcome, error) {
	start := time.Now()
	outcome := Outcome{ImagePath: path, ProcessedAt: start}

	if w.frames != nil {
		similar, err := w.frames.Similar(path)
		if err != nil {
			w.log.Debug("Frame hash failed, running OCR anyway", "image", path, "error", err)
		}
		if similar {
			if err := os.Remove(path); err != nil {
				outcome = w.fail(outcome, apperrors.NewDeleteError(path, err))
				outcome.Duration = time.Since(start)
				return outcome, nil
			}
			outcome.Disposition = DispositionDuplicate
			outcome.Duration = time.Since(start)
			return outcome, nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.config.ProcessingTimeout)
	text, err := w.extractor.ExtractText(ctx, path)
	timedOut := stderrors.Is(ctx.Err(), context.DeadlineExceeded)
	cancel()

	// a result that arrives after the deadline is discarded
	if err == nil && timedOut {
		err = apperrors.NewProcessingTimeoutError(path, w.config.ProcessingTimeout, ctx.Err())
	}

	if err != nil {
		if apperrors.IsFatal(err) {
			return outcome, err
		}
		if timedOut && !apperrors.IsCode(err, apperrors.ErrorProcessingTimeout) {
			err = apperrors.NewProcessingTimeoutError(path, w.config.ProcessingTimeout, err)
		}
		outcome = w.fail(outcome, err)
		outcome.Duration = time.Since(start)
		return outcome, nil
	}

	outcome.TextLength = len(text)
	outcome.Matches = w.matcher.Match(text)

	if len(outcome.Matches) == 0 {
		if err := os.Remove(path); err != nil {
			outcome = w.fail(outcome, apperrors.NewDeleteError(path, err))
		} else {
			outcome.Disposition = DispositionDeleted
		}
		outcome.Duration = time.Since(start)
		return outcome, nil
	}

	artifact, err := w.cropper.Crop(path)
	if err != nil {
		outcome = w.fail(outcome, err)
		outcome.Duration = time.Since(start)
		return outcome, nil
	}
	outcome.ArtifactPath = artifact
	outcome.Disposition = DispositionCropped

	if w.config.RemoveSourceAfterCrop {
		if err := os.Remove(path); err != nil {
			w.log.Warn("Failed to remove source after crop", "image", path, "error", err)
		}
	}

	outcome.Duration = time.Since(start)
	return outcome, nil
}

// fail records err on outcome and applies the failure policy to the image
func (w *worker) fail(outcome Outcome, err error) Outcome {
	path := outcome.ImagePath
	outcome.Err = err
	outcome.Disposition = DispositionFailed

	w.log.Warn("Image processing failed",
		"image", path,
		"code", outcome.ErrorCode(),
		"error", err)

	switch w.config.FailurePolicy {
	case FailQuarantine:
		dst := quarantineName(w.failedDir, path)
		if mvErr := os.Rename(path, dst); mvErr != nil {
			w.log.Error("Failed to quarantine image", "image", path, "error", mvErr)
			return outcome
		}
		outcome.Disposition = DispositionQuarantined
		outcome.ArtifactPath = dst
	default:
		if apperrors.IsCode(err, apperrors.ErrorDeleteFailed) {
			return outcome
		}
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			w.log.Error("Failed to remove failed image", "image", path, "error", rmErr)
		}
	}

	return outcome
}

// quarantineName returns a path in dir for src that does not clobber an
// earlier quarantined image with the same base name.
func quarantineName(dir, src string) string {
	name := artifactName(src)
	dst := filepath.Join(dir, name)
	if _, err := os.Lstat(dst); os.IsNotExist(err) {
		return dst
	}
	ext := filepath.Ext(name)
	return filepath.Join(dir, strings.TrimSuffix(name, ext)+"-"+uuid.NewString()+ext)
}

// disposeEvicted handles the paths the queue evicted under DropOldest
func (w *worker) disposeEvicted() {
	for _, path := range w.handle.queue.TakeEvicted() {
		w.dropped(path)
	}
}

// dropped disposes of a path evicted by the queue overflow policy
func (w *worker) dropped(path string) {
	outcome := Outcome{ImagePath: path, Disposition: DispositionDropped, ProcessedAt: time.Now()}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		outcome.Err = apperrors.NewDeleteError(path, err)
	}

	w.log.Warn("Queue full, dropped oldest image", "image", path)
	w.handle.stats.record(DispositionDropped)
	w.notify(outcome)
}

// notify delivers outcome to every observer
func (w *worker) notify(outcome Outcome) {
	w.log.Info("Image routed",
		"image", outcome.ImagePath,
		"disposition", string(outcome.Disposition),
		"artifact", outcome.ArtifactPath,
		"matches", outcome.Matches,
		"duration", outcome.Duration)

	for _, obs := range w.config.Observers {
		ctx, cancel := context.WithTimeout(context.Background(), observeTimeout)
		if err := obs.Observe(ctx, outcome); err != nil {
			w.log.Warn("Observer failed", "image", outcome.ImagePath, "error", err)
		}
		cancel()
	}
}
