package ocr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/adverant/nexus/screenscan-worker/internal/errors"
)

func writeModel(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("model-bytes"), 0o644))
	return path
}

func TestNewTesseractEngineStagesModels(t *testing.T) {
	detDir, recDir := t.TempDir(), t.TempDir()
	det := writeModel(t, detDir, "detector.traineddata")
	rec := writeModel(t, recDir, "eng.traineddata")

	engine, err := NewTesseractEngine(det, rec)
	require.NoError(t, err)

	assert.Equal(t, "eng", engine.language)
	for _, name := range []string{"eng.traineddata", "osd.traineddata"} {
		_, err := os.Stat(filepath.Join(engine.tessdata, name))
		assert.NoError(t, err, name)
	}

	require.NoError(t, engine.Close())
	_, err = os.Stat(engine.tessdata)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, engine.Close())

	_, err = engine.Recognize(context.Background(), nil)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrorEngineUnavailable))
}

func TestNewTesseractEngineRejectsBadModels(t *testing.T) {
	dir := t.TempDir()
	good := writeModel(t, dir, "osd.traineddata")
	eng := writeModel(t, dir, "eng.traineddata")
	empty := filepath.Join(dir, "empty.traineddata")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	wrongExt := writeModel(t, dir, "model.onnx")
	subdir := filepath.Join(dir, "dir.traineddata")
	require.NoError(t, os.Mkdir(subdir, 0o755))

	tests := []struct {
		name     string
		det, rec string
	}{
		{"missing recognition", good, filepath.Join(dir, "nope.traineddata")},
		{"missing detection", filepath.Join(dir, "nope.traineddata"), eng},
		{"empty file", good, empty},
		{"wrong format", good, wrongExt},
		{"directory", good, subdir},
		{"osd as recognition", eng, good},
		{"same file", eng, eng},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTesseractEngine(tt.det, tt.rec)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrorModelLoadFailed), "got %v", err)
		})
	}
}
