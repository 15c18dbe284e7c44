package processor

import (
	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
)

// frameFilter flags screenshots that are perceptually identical to the last
// distinct frame, e.g. when the UI did not advance between captures.
// Used only from the worker goroutine.
type frameFilter struct {
	maxDistance int
	last        *goimagehash.ImageHash
}

func newFrameFilter(maxDistance int) *frameFilter {
	return &frameFilter{maxDistance: maxDistance}
}

// Similar hashes the image at path and compares it with the previous frame
func (f *frameFilter) Similar(path string) (bool, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return false, err
	}

	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return false, err
	}

	if f.last == nil {
		f.last = hash
		return false, nil
	}

	dist, err := f.last.Distance(hash)
	if err != nil {
		f.last = hash
		return false, nil
	}

	if dist <= f.maxDistance {
		return true, nil
	}

	f.last = hash
	return false, nil
}
