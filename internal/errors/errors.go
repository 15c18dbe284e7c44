package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the screenscan worker
 *
 * Codes are split into three classes:
 * - construction-time codes abort startup
 * - per-image codes are isolated by the worker loop
 * - fatal codes stop the worker
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Construction errors
	ErrorModelLoadFailed      ErrorCode = "MODEL_LOAD_FAILED"
	ErrorPatternCompileFailed ErrorCode = "PATTERN_COMPILE_FAILED"
	ErrorConfigInvalid        ErrorCode = "CONFIG_INVALID"

	// Per-image errors
	ErrorDecodeFailed      ErrorCode = "DECODE_FAILED"
	ErrorInferenceFailed   ErrorCode = "INFERENCE_FAILED"
	ErrorCropFailed        ErrorCode = "CROP_FAILED"
	ErrorDeleteFailed      ErrorCode = "DELETE_FAILED"
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"

	// Worker errors
	ErrorEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"

	// Device transport errors
	ErrorDeviceConnectFailed ErrorCode = "DEVICE_CONNECT_FAILED"
	ErrorDeviceCommandFailed ErrorCode = "DEVICE_COMMAND_FAILED"
	ErrorDevicePullFailed    ErrorCode = "DEVICE_PULL_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	ImagePath string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewModelLoadError(modelPath string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorModelLoadFailed,
		Message:   fmt.Sprintf("Failed to load model: %s", modelPath),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"model_path": modelPath,
		},
		Cause: cause,
	}
}

func NewPatternCompileError(pattern string, index int, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorPatternCompileFailed,
		Message:   fmt.Sprintf("Invalid pattern at index %d: %q", index, pattern),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"pattern":       pattern,
			"pattern_index": index,
		},
		Cause: cause,
	}
}

func NewConfigError(format string, args ...interface{}) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorConfigInvalid,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	}
}

func NewDecodeError(imagePath string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDecodeFailed,
		Message:   "Image could not be decoded",
		ImagePath: imagePath,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewInferenceError(imagePath string, stage string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorInferenceFailed,
		Message:   fmt.Sprintf("OCR failed at stage: %s", stage),
		ImagePath: imagePath,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_stage": stage,
		},
		Cause: cause,
	}
}

func NewCropError(imagePath string, step string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorCropFailed,
		Message:   fmt.Sprintf("Crop failed at step: %s", step),
		ImagePath: imagePath,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"crop_step": step,
		},
		Cause: cause,
	}
}

func NewDeleteError(imagePath string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorDeleteFailed,
		Message:   "Failed to remove image",
		ImagePath: imagePath,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewProcessingTimeoutError(imagePath string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		ImagePath: imagePath,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewEngineUnavailableError(cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorEngineUnavailable,
		Message:   "OCR engine is no longer usable",
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewDeviceError(code ErrorCode, command string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      code,
		Message:   fmt.Sprintf("Device operation failed: %s", command),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"command": command,
		},
		Cause: cause,
	}
}

// CodeOf returns the code of the first ProcessingError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsCode checks if an error carries a specific error code
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// IsFatal reports whether err must stop the worker instead of being
// isolated to the image being processed.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case ErrorEngineUnavailable, ErrorModelLoadFailed, ErrorPatternCompileFailed, ErrorConfigInvalid:
		return true
	default:
		return false
	}
}

// ToMap flattens the error into the details map of an outcome event
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	if e.ImagePath != "" {
		result["image_path"] = e.ImagePath
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
