/**
 * Tesseract engine - detection + recognition through libtesseract
 *
 * The recognition model is a <lang>.traineddata file. The detection model is
 * the orientation/script detection model, staged as osd.traineddata next to it.
 */

package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/adverant/nexus/screenscan-worker/internal/errors"
)

const (
	modelExt     = ".traineddata"
	detectionLng = "osd"
)

// Engine turns an encoded image into text
type Engine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
	Close() error
}

// TesseractEngine handles OCR using Tesseract
type TesseractEngine struct {
	tessdata string
	language string
	closed   atomic.Bool
}

// NewTesseractEngine stages both models into a private tessdata directory
func NewTesseractEngine(detectionModelPath, recognitionModelPath string) (*TesseractEngine, error) {
	if err := checkModelFile(detectionModelPath); err != nil {
		return nil, err
	}
	if err := checkModelFile(recognitionModelPath); err != nil {
		return nil, err
	}

	if filepath.Clean(detectionModelPath) == filepath.Clean(recognitionModelPath) {
		return nil, apperrors.NewModelLoadError(recognitionModelPath,
			fmt.Errorf("detection and recognition models must be different files"))
	}

	language := strings.TrimSuffix(filepath.Base(recognitionModelPath), modelExt)
	if language == detectionLng {
		return nil, apperrors.NewModelLoadError(recognitionModelPath,
			fmt.Errorf("recognition model cannot be the %s model", detectionLng))
	}

	dir, err := os.MkdirTemp("", "screenscan-tessdata-")
	if err != nil {
		return nil, apperrors.NewModelLoadError(recognitionModelPath, err)
	}

	links := map[string]string{
		recognitionModelPath: filepath.Join(dir, language+modelExt),
		detectionModelPath:   filepath.Join(dir, detectionLng+modelExt),
	}
	for src, dst := range links {
		abs, err := filepath.Abs(src)
		if err == nil {
			err = os.Symlink(abs, dst)
		}
		if err != nil {
			os.RemoveAll(dir)
			return nil, apperrors.NewModelLoadError(src, err)
		}
	}

	return &TesseractEngine{tessdata: dir, language: language}, nil
}

// checkModelFile verifies path names a readable, non-empty traineddata file
func checkModelFile(path string) error {
	if filepath.Ext(path) != modelExt {
		return apperrors.NewModelLoadError(path, fmt.Errorf("unsupported model format %q, want %s", filepath.Ext(path), modelExt))
	}

	info, err := os.Stat(path)
	if err != nil {
		return apperrors.NewModelLoadError(path, err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return apperrors.NewModelLoadError(path, fmt.Errorf("not a regular non-empty file"))
	}

	f, err := os.Open(path)
	if err != nil {
		return apperrors.NewModelLoadError(path, err)
	}
	return f.Close()
}

// Recognize performs OCR using Tesseract, with a new client per call
func (t *TesseractEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	if t.closed.Load() {
		return "", apperrors.NewEngineUnavailableError(fmt.Errorf("engine closed"))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetTessdataPrefix(t.tessdata); err != nil {
		return "", apperrors.NewInferenceError("", "setup", err)
	}
	if err := client.SetLanguage(t.language); err != nil {
		return "", apperrors.NewInferenceError("", "setup", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO_OSD); err != nil {
		return "", apperrors.NewInferenceError("", "detection", err)
	}

	// Set image from bytes
	if err := client.SetImageFromBytes(image); err != nil {
		return "", apperrors.NewInferenceError("", "detection", err)
	}

	// Extract text
	text, err := client.Text()
	if err != nil {
		return "", apperrors.NewInferenceError("", "recognition", err)
	}

	return text, nil
}

// Close removes the staged tessdata directory
func (t *TesseractEngine) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return os.RemoveAll(t.tessdata)
}
