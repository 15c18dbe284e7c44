package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	apperrors "github.com/adverant/nexus/screenscan-worker/internal/errors"
)

// loadOpaque decodes the image at path and flattens it onto white so every
// pixel is 8-bit RGB with alpha fixed at 255.
func loadOpaque(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, apperrors.NewDecodeError(path, err)
	}

	b := img.Bounds()
	if b.Empty() {
		return nil, apperrors.NewDecodeError(path, fmt.Errorf("empty image bounds %v", b))
	}

	canvas := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0), nil
}

// encodePNG serializes img for the engine
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// blankPNG is the warm-up input used to force model loading at construction
func blankPNG() ([]byte, error) {
	return encodePNG(imaging.New(64, 32, color.White))
}
