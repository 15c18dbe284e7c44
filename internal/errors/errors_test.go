package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessingErrorMessage(t *testing.T) {
	cause := stderrors.New("no such file")
	err := NewModelLoadError("/models/eng.traineddata", cause)

	assert.Equal(t, "MODEL_LOAD_FAILED: Failed to load model: /models/eng.traineddata (caused by: no such file)", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := NewConfigError("QUEUE_OVERFLOW must be block or drop-oldest, got %q", "spill")
	assert.Equal(t, `CONFIG_INVALID: QUEUE_OVERFLOW must be block or drop-oldest, got "spill"`, bare.Error())
}

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("extract: %w", NewDecodeError("a.png", nil))

	assert.Equal(t, ErrorDecodeFailed, CodeOf(err))
	assert.True(t, IsCode(err, ErrorDecodeFailed))
	assert.False(t, IsCode(err, ErrorCropFailed))
	assert.Equal(t, ErrorCode(""), CodeOf(stderrors.New("plain")))
	assert.False(t, IsCode(nil, ErrorDecodeFailed))
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"engine unavailable", NewEngineUnavailableError(nil), true},
		{"model load", NewModelLoadError("m", nil), true},
		{"pattern compile", NewPatternCompileError("(", 0, nil), true},
		{"decode", NewDecodeError("a.png", nil), false},
		{"inference", NewInferenceError("a.png", "recognition", nil), false},
		{"crop", NewCropError("a.png", "encode", nil), false},
		{"delete", NewDeleteError("a.png", nil), false},
		{"timeout", NewProcessingTimeoutError("a.png", time.Second, nil), false},
		{"plain", stderrors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestToMap(t *testing.T) {
	err := NewCropError("/out/sources/a.png", "write", stderrors.New("disk full"))
	m := err.ToMap()

	require.Equal(t, "CROP_FAILED", m["error_code"])
	assert.Equal(t, "/out/sources/a.png", m["image_path"])
	assert.Equal(t, "write", m["crop_step"])
	assert.Equal(t, "disk full", m["cause"])
}
