/**
 * OCR adapter - "image in, text out" plus pattern matching
 *
 * Wraps a detection + recognition engine and a compiled PatternSet behind one
 * immutable handle. Construction failures are fatal; extraction failures are
 * per image.
 */

package ocr

import (
	"context"
	"errors"

	apperrors "github.com/adverant/nexus/screenscan-worker/internal/errors"
)

// Config holds OCR adapter configuration
type Config struct {
	DetectionModelPath   string
	RecognitionModelPath string
	Patterns             []string
}

// OCR is the immutable text extraction and match handle
type OCR struct {
	engine   Engine
	patterns *PatternSet
}

// New loads both models, warms the engine up and compiles the patterns
func New(ctx context.Context, cfg *Config) (*OCR, error) {
	if cfg == nil {
		return nil, apperrors.NewConfigError("ocr config is required")
	}

	// Patterns are compiled before any model is touched.
	patterns, err := CompilePatterns(cfg.Patterns)
	if err != nil {
		return nil, err
	}

	engine, err := NewTesseractEngine(cfg.DetectionModelPath, cfg.RecognitionModelPath)
	if err != nil {
		return nil, err
	}

	blank, err := blankPNG()
	if err != nil {
		engine.Close()
		return nil, apperrors.NewModelLoadError(cfg.RecognitionModelPath, err)
	}
	if _, err := engine.Recognize(ctx, blank); err != nil {
		engine.Close()
		return nil, apperrors.NewModelLoadError(cfg.RecognitionModelPath, err)
	}

	return newOCR(engine, patterns), nil
}

func newOCR(engine Engine, patterns *PatternSet) *OCR {
	return &OCR{engine: engine, patterns: patterns}
}

// ExtractText decodes the image at path and returns all recognized text
func (o *OCR) ExtractText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.NewProcessingTimeoutError(path, 0, err)
	}

	img, err := loadOpaque(path)
	if err != nil {
		return "", err
	}

	data, err := encodePNG(img)
	if err != nil {
		return "", apperrors.NewInferenceError(path, "prepare", err)
	}

	if err := ctx.Err(); err != nil {
		return "", apperrors.NewProcessingTimeoutError(path, 0, err)
	}

	text, err := o.engine.Recognize(ctx, data)
	if err != nil {
		var pe *apperrors.ProcessingError
		if errors.As(err, &pe) {
			if pe.ImagePath == "" {
				pe.ImagePath = path
			}
			return "", pe
		}
		return "", apperrors.NewInferenceError(path, "recognition", err)
	}

	return text, nil
}

// Match returns the indices of the patterns matching text
func (o *OCR) Match(text string) []int {
	return o.patterns.Match(text)
}

// Matches reports whether any pattern matches text
func (o *OCR) Matches(text string) bool {
	return o.patterns.Matches(text)
}

// Patterns exposes the compiled pattern set
func (o *OCR) Patterns() *PatternSet {
	return o.patterns
}

// Close releases the engine. Later extractions fail with ENGINE_UNAVAILABLE.
func (o *OCR) Close() error {
	return o.engine.Close()
}
