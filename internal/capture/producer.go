/**
 * Capture Producer for the screenscan pipeline
 *
 * Pages through profiles on the device: screenshot, tap "next", wait for the
 * UI to settle, pull the screenshot and hand it to the worker.
 */

package capture

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/screenscan-worker/internal/logging"
	"github.com/adverant/nexus/screenscan-worker/internal/queue"
)

// Device is the subset of the adb controller the producer drives
type Device interface {
	Screenshot(ctx context.Context, remotePath string) error
	Tap(ctx context.Context, x, y int) error
	Pull(ctx context.Context, remotePath, localPath string) error
	Remove(ctx context.Context, remotePath string) error
}

// Sender receives ownership of every pulled screenshot
type Sender interface {
	Send(path string) error
}

// Config holds producer configuration
type Config struct {
	// RemoteDir is the device directory screenshots are written to
	RemoteDir string
	// SourcesDir is the local directory screenshots are pulled into
	SourcesDir string
	Interval   time.Duration
	// Button is the "next profile" tap target
	ButtonX, ButtonY int
	Logger           *logging.Logger
}

// Producer captures screenshots until its context ends or the sender closes
type Producer struct {
	device Device
	sender Sender
	config *Config
	log    *logging.Logger
	frames atomic.Int64
}

// NewProducer creates a new capture producer
func NewProducer(device Device, sender Sender, cfg *Config) (*Producer, error) {
	if device == nil {
		return nil, fmt.Errorf("device is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if cfg.SourcesDir == "" {
		return nil, fmt.Errorf("sources directory is required")
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = "/sdcard"
	}
	if cfg.Interval < 0 {
		cfg.Interval = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("capture")
	}

	return &Producer{device: device, sender: sender, config: cfg, log: cfg.Logger}, nil
}

// Frames returns the number of screenshots handed to the sender
func (p *Producer) Frames() int64 {
	return p.frames.Load()
}

// Run loops until ctx is done (returns nil), the sender is closed (returns
// nil) or a device command fails (returns the error)
func (p *Producer) Run(ctx context.Context) error {
	p.log.Info("Capture started",
		"remote_dir", p.config.RemoteDir,
		"interval", p.config.Interval,
		"button", fmt.Sprintf("%d,%d", p.config.ButtonX, p.config.ButtonY))

	for {
		if ctx.Err() != nil {
			p.log.Info("Capture stopped", "frames", p.Frames())
			return nil
		}

		err := p.captureOne(ctx)
		switch {
		case err == nil:
			p.frames.Add(1)
		case stderrors.Is(err, queue.ErrClosed):
			p.log.Info("Worker stopped accepting images, capture stopping", "frames", p.Frames())
			return nil
		case ctx.Err() != nil:
			p.log.Info("Capture stopped", "frames", p.Frames())
			return nil
		default:
			return err
		}
	}
}

func (p *Producer) captureOne(ctx context.Context) error {
	id := uuid.NewString()
	remote := path.Join(p.config.RemoteDir, "screen-"+id+".png")
	local := filepath.Join(p.config.SourcesDir, id+".png")

	if err := p.device.Screenshot(ctx, remote); err != nil {
		return err
	}
	if err := p.device.Tap(ctx, p.config.ButtonX, p.config.ButtonY); err != nil {
		return err
	}

	if p.config.Interval > 0 {
		timer := time.NewTimer(p.config.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.removeRemote(remote)
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := p.device.Pull(ctx, remote, local); err != nil {
		return err
	}
	p.removeRemote(remote)

	if err := p.sender.Send(local); err != nil {
		if rmErr := os.Remove(local); rmErr != nil && !os.IsNotExist(rmErr) {
			p.log.Warn("Failed to remove unsent screenshot", "image", local, "error", rmErr)
		}
		return err
	}

	p.log.Debug("Screenshot captured", "image", local)
	return nil
}

// removeRemote deletes a device screenshot, best effort
func (p *Producer) removeRemote(remote string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.device.Remove(ctx, remote); err != nil {
		p.log.Warn("Failed to remove device screenshot", "remote", remote, "error", err)
	}
}
