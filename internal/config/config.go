/**
 * Configuration for the screenscan worker
 *
 * Loads configuration from environment variables matching .env.screenscan,
 * with patterns and crop region optionally overridden by a YAML file.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Queue overflow policies
const (
	OverflowBlock      = "block"
	OverflowDropOldest = "drop-oldest"
)

// Failure policies for images whose processing failed
const (
	FailureDelete     = "delete"
	FailureQuarantine = "quarantine"
)

// CropRegion is the rectangle cut out of a matched screenshot
type CropRegion struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Config holds worker configuration
type Config struct {
	// OCR model artifacts
	DetectionModelPath   string
	RecognitionModelPath string

	// Match patterns, OR-ed together
	Patterns     []string
	PatternsFile string

	// Output layout root: sources/, cropped/, failed/
	OutputDir string

	Crop CropRegion

	// Hand-off queue
	QueueCapacity int
	QueueOverflow string

	// Per-image behavior
	FailurePolicy         string
	RemoveSourceAfterCrop bool
	SkipSimilarFrames     bool
	MaxHashDistance       int
	ProcessingTimeout     int // milliseconds

	// Observers (empty disables)
	LedgerDSN       string
	EventsRedisURL  string
	EventsChannel   string
	HandoffRedisURL string
	HandoffQueue    string

	// Device capture
	ADBPath           string
	DeviceSerial      string
	RemoteDir         string
	CaptureInterval   int // milliseconds
	NextButtonOffsetX int
	NextButtonOffsetY int

	LogLevel string
}

// patternsDocument is the layout of PATTERNS_FILE
type patternsDocument struct {
	Patterns []string    `yaml:"patterns"`
	Crop     *CropRegion `yaml:"crop"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DetectionModelPath:   getEnvOrDefault("OCR_DETECTION_MODEL", "./model/osd.traineddata"),
		RecognitionModelPath: getEnvOrDefault("OCR_RECOGNITION_MODEL", "./model/eng.traineddata"),
		Patterns:             getEnvAsLinesOrDefault("MATCH_PATTERNS", nil),
		PatternsFile:         getEnvOrDefault("PATTERNS_FILE", ""),
		OutputDir:            getEnvOrDefault("OUTPUT_DIR", "./output"),
		Crop: CropRegion{
			X:      getEnvAsIntOrDefault("CROP_X", 50),
			Y:      getEnvAsIntOrDefault("CROP_Y", 480),
			Width:  getEnvAsIntOrDefault("CROP_WIDTH", 1000),
			Height: getEnvAsIntOrDefault("CROP_HEIGHT", 1000),
		},
		QueueCapacity:         getEnvAsIntOrDefault("QUEUE_CAPACITY", 64),
		QueueOverflow:         getEnvOrDefault("QUEUE_OVERFLOW", OverflowBlock),
		FailurePolicy:         getEnvOrDefault("FAILURE_POLICY", FailureDelete),
		RemoveSourceAfterCrop: getEnvAsBoolOrDefault("REMOVE_SOURCE_AFTER_CROP", false),
		SkipSimilarFrames:     getEnvAsBoolOrDefault("SKIP_SIMILAR_FRAMES", false),
		MaxHashDistance:       getEnvAsIntOrDefault("MAX_HASH_DISTANCE", 4),
		ProcessingTimeout:     getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 60000), // 1 minute
		LedgerDSN:             getEnvOrDefault("LEDGER_DSN", ""),
		EventsRedisURL:        getEnvOrDefault("EVENTS_REDIS_URL", ""),
		EventsChannel:         getEnvOrDefault("EVENTS_CHANNEL", "screenscan:events"),
		HandoffRedisURL:       getEnvOrDefault("HANDOFF_REDIS_URL", ""),
		HandoffQueue:          getEnvOrDefault("HANDOFF_QUEUE", "face-verify"),
		ADBPath:               getEnvOrDefault("ADB_PATH", "adb"),
		DeviceSerial:          getEnvOrDefault("DEVICE_SERIAL", ""),
		RemoteDir:             getEnvOrDefault("REMOTE_DIR", "/sdcard"),
		CaptureInterval:       getEnvAsIntOrDefault("CAPTURE_INTERVAL", 1000),
		NextButtonOffsetX:     getEnvAsIntOrDefault("NEXT_BUTTON_OFFSET_X", 925),
		NextButtonOffsetY:     getEnvAsIntOrDefault("NEXT_BUTTON_OFFSET_Y", 469),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if cfg.PatternsFile != "" {
		if err := cfg.loadPatternsFile(cfg.PatternsFile); err != nil {
			return nil, err
		}
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadPatternsFile replaces Patterns, and Crop when present, with the file's content
func (c *Config) loadPatternsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read patterns file: %w", err)
	}

	var doc patternsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse patterns file %s: %w", path, err)
	}

	c.Patterns = doc.Patterns
	if doc.Crop != nil {
		c.Crop = *doc.Crop
	}
	return nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.DetectionModelPath == "" {
		return fmt.Errorf("OCR_DETECTION_MODEL is required")
	}

	if c.RecognitionModelPath == "" {
		return fmt.Errorf("OCR_RECOGNITION_MODEL is required")
	}

	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}

	if c.Crop.X < 0 || c.Crop.Y < 0 {
		return fmt.Errorf("crop offset must be non-negative, got (%d,%d)", c.Crop.X, c.Crop.Y)
	}

	if c.Crop.Width <= 0 || c.Crop.Height <= 0 {
		return fmt.Errorf("crop size must be positive, got %dx%d", c.Crop.Width, c.Crop.Height)
	}

	if c.QueueOverflow != OverflowBlock && c.QueueOverflow != OverflowDropOldest {
		return fmt.Errorf("QUEUE_OVERFLOW must be %q or %q, got %q", OverflowBlock, OverflowDropOldest, c.QueueOverflow)
	}

	if c.QueueOverflow == OverflowDropOldest && c.QueueCapacity <= 0 {
		return fmt.Errorf("QUEUE_OVERFLOW=%s requires a positive QUEUE_CAPACITY", OverflowDropOldest)
	}

	if c.FailurePolicy != FailureDelete && c.FailurePolicy != FailureQuarantine {
		return fmt.Errorf("FAILURE_POLICY must be %q or %q, got %q", FailureDelete, FailureQuarantine, c.FailurePolicy)
	}

	if c.MaxHashDistance < 0 || c.MaxHashDistance > 64 {
		return fmt.Errorf("MAX_HASH_DISTANCE must be between 0 and 64, got %d", c.MaxHashDistance)
	}

	if c.ProcessingTimeout < 1000 || c.ProcessingTimeout > 600000 { // 1s to 10 minutes
		return fmt.Errorf("PROCESSING_TIMEOUT must be between 1000 and 600000 ms, got %d", c.ProcessingTimeout)
	}

	if c.CaptureInterval < 0 {
		return fmt.Errorf("CAPTURE_INTERVAL must be non-negative, got %d", c.CaptureInterval)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsLinesOrDefault splits a newline separated variable, dropping blank
// lines. Lines are kept verbatim apart from a trailing carriage return, so
// commas and spaces inside a regular expression survive.
func getEnvAsLinesOrDefault(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	lines := strings.Split(valueStr, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
