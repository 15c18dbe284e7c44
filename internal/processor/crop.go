package processor

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	apperrors "github.com/adverant/nexus/screenscan-worker/internal/errors"
)

// Region is a rectangle in source-image pixel coordinates
type Region struct {
	X, Y          int
	Width, Height int
}

// DefaultRegion is the profile-photo area of a 1080-wide screenshot
var DefaultRegion = Region{X: 50, Y: 480, Width: 1000, Height: 1000}

// Rect converts Region to an image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Cropper cuts a fixed region out of matched images and persists it.
//
// Regions extending past the image are clamped to the intersection. An
// empty intersection is a CROP_FAILED error. Artifacts are written to a temp
// file and renamed into place, so a later crop with the same name replaces
// the earlier one whole.
type Cropper struct {
	region Region
	dir    string
}

// NewCropper creates a cropper writing into dir
func NewCropper(region Region, dir string) *Cropper {
	return &Cropper{region: region, dir: dir}
}

// Crop writes the cropped region of src and returns the artifact path
func (c *Cropper) Crop(src string) (string, error) {
	img, err := imaging.Open(src)
	if err != nil {
		return "", apperrors.NewCropError(src, "decode", err)
	}

	bounds := img.Bounds()
	rect := c.region.Rect().Add(bounds.Min)
	if rect.Intersect(bounds).Empty() {
		return "", apperrors.NewCropError(src, "bounds",
			fmt.Errorf("region %v does not overlap image %v", c.region.Rect(), bounds.Sub(bounds.Min)))
	}

	cropped := imaging.Crop(img, rect)

	dst := filepath.Join(c.dir, artifactName(src))
	format, err := imaging.FormatFromFilename(dst)
	if err != nil {
		format = imaging.PNG
	}

	tmp, err := os.CreateTemp(c.dir, ".crop-*")
	if err != nil {
		return "", apperrors.NewCropError(src, "write", err)
	}

	if err := imaging.Encode(tmp, cropped, format); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", apperrors.NewCropError(src, "encode", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", apperrors.NewCropError(src, "write", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", apperrors.NewCropError(src, "write", err)
	}

	return dst, nil
}

// artifactName keeps the source file name, or generates one when the
// source path has none
func artifactName(src string) string {
	base := filepath.Base(src)
	switch base {
	case ".", "..", string(filepath.Separator):
		return uuid.NewString() + ".png"
	}
	return base
}
