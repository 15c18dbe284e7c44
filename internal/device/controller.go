/**
 * ADB Device Controller
 *
 * Drives the phone that is being scanned: screenshots, taps, file pulls and
 * screen-size discovery, each as a one-shot adb invocation.
 */

package device

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	apperrors "github.com/adverant/nexus/screenscan-worker/internal/errors"
)

// Runner executes adb with args and returns its combined output
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

type execRunner struct {
	path string
}

func (r execRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, r.path, args...).CombinedOutput()
}

// Config holds controller configuration
type Config struct {
	ADBPath string
	// Serial selects the device; "host:port" serials are connected over TCP first
	Serial string
}

// Controller is an adb-backed device handle. Commands are serialized.
type Controller struct {
	runner Runner
	serial string
	mu     sync.Mutex
}

// NewController creates a new ADB controller
func NewController(cfg *Config) *Controller {
	path := cfg.ADBPath
	if path == "" {
		path = "adb"
	}
	return newController(execRunner{path: path}, cfg.Serial)
}

func newController(runner Runner, serial string) *Controller {
	return &Controller{runner: runner, serial: serial}
}

func (c *Controller) run(ctx context.Context, args ...string) ([]byte, error) {
	if c.serial != "" {
		args = append([]string{"-s", c.serial}, args...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	output, err := c.runner.Run(ctx, args...)
	if err != nil {
		return output, fmt.Errorf("%w, output: %s", err, bytes.TrimSpace(output))
	}
	return output, nil
}

// Connect establishes the connection and checks the device is online
func (c *Controller) Connect(ctx context.Context) error {
	if strings.Contains(c.serial, ":") {
		c.mu.Lock()
		output, err := c.runner.Run(ctx, "connect", c.serial)
		c.mu.Unlock()
		if err != nil {
			return apperrors.NewDeviceError(apperrors.ErrorDeviceConnectFailed, "connect "+c.serial,
				fmt.Errorf("%w, output: %s", err, bytes.TrimSpace(output)))
		}
		if !strings.Contains(string(output), "connected") {
			return apperrors.NewDeviceError(apperrors.ErrorDeviceConnectFailed, "connect "+c.serial,
				fmt.Errorf("unexpected connect output: %s", bytes.TrimSpace(output)))
		}
	}

	output, err := c.run(ctx, "get-state")
	if err != nil {
		return apperrors.NewDeviceError(apperrors.ErrorDeviceConnectFailed, "get-state", err)
	}
	if state := strings.TrimSpace(string(output)); state != "device" {
		return apperrors.NewDeviceError(apperrors.ErrorDeviceConnectFailed, "get-state",
			fmt.Errorf("device is %q", state))
	}

	return nil
}

// Shell executes a shell command on the device and returns its trimmed output
func (c *Controller) Shell(ctx context.Context, args ...string) (string, error) {
	output, err := c.run(ctx, append([]string{"shell"}, args...)...)
	if err != nil {
		return "", apperrors.NewDeviceError(apperrors.ErrorDeviceCommandFailed, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(output)), nil
}

// Screenshot captures the screen into remotePath on the device
func (c *Controller) Screenshot(ctx context.Context, remotePath string) error {
	_, err := c.Shell(ctx, "screencap", "-p", remotePath)
	return err
}

// Tap performs a tap at the specified coordinates
func (c *Controller) Tap(ctx context.Context, x, y int) error {
	_, err := c.Shell(ctx, "input", "tap", fmt.Sprint(x), fmt.Sprint(y))
	return err
}

// Pull copies a file from device to local
func (c *Controller) Pull(ctx context.Context, remotePath, localPath string) error {
	if _, err := c.run(ctx, "pull", remotePath, localPath); err != nil {
		return apperrors.NewDeviceError(apperrors.ErrorDevicePullFailed, "pull "+remotePath, err)
	}
	return nil
}

// Remove deletes a file on the device
func (c *Controller) Remove(ctx context.Context, remotePath string) error {
	_, err := c.Shell(ctx, "rm", "-f", remotePath)
	return err
}

// ScreenSize returns the effective screen size reported by "wm size"
func (c *Controller) ScreenSize(ctx context.Context) (width, height int, err error) {
	output, err := c.Shell(ctx, "wm", "size")
	if err != nil {
		return 0, 0, err
	}

	width, height, err = ParseScreenSize(output)
	if err != nil {
		return 0, 0, apperrors.NewDeviceError(apperrors.ErrorDeviceCommandFailed, "wm size", err)
	}
	return width, height, nil
}
