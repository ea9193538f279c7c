package tts

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyText is returned when there is nothing to say.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrTextTooLong is returned for text above the engine limit.
	ErrTextTooLong = errors.New("text too long")

	// ErrEngineNotAvailable indicates a required binary is missing.
	ErrEngineNotAvailable = errors.New("speech engine is not available")
)

// ErrorCode identifies the stage a synthesis error came from.
type ErrorCode string

const (
	ErrorCodeSynthesis ErrorCode = "SYNTHESIS"
	ErrorCodeDecode    ErrorCode = "DECODE"
	ErrorCodePlayback  ErrorCode = "PLAYBACK"
	ErrorCodeTimeout   ErrorCode = "TIMEOUT"
)

// SpeechError carries the failing stage alongside the cause.
type SpeechError struct {
	Code     ErrorCode
	Language string
	Cause    error
}

// Error implements the error interface.
func (e *SpeechError) Error() string {
	if e.Language != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Code, e.Language, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Cause)
}

// Unwrap returns the underlying error.
func (e *SpeechError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether trying again may succeed.
func (e *SpeechError) IsRetryable() bool {
	return e.Code == ErrorCodeTimeout
}
