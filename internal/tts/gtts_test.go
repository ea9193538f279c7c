package tts

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeDecoder struct{}

func (fakeDecoder) Decode(_ context.Context, data []byte) ([]byte, error) {
	return data, nil
}

func TestNewGTTSEngine(t *testing.T) {
	tests := []struct {
		name        string
		config      GTTSConfig
		decoder     Decoder
		expectError bool
	}{
		{name: "defaults", config: GTTSConfig{}, decoder: fakeDecoder{}},
		{name: "slow speech", config: GTTSConfig{Slow: true}, decoder: fakeDecoder{}},
		{name: "custom rate", config: GTTSConfig{RequestsPerMinute: 30}, decoder: fakeDecoder{}},
		{name: "negative rate", config: GTTSConfig{RequestsPerMinute: -1}, decoder: fakeDecoder{}, expectError: true},
		{name: "missing decoder", config: GTTSConfig{}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewGTTSEngine(tt.config, tt.decoder)
			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if engine.binary != "gtts-cli" {
				t.Errorf("expected default binary, got %q", engine.binary)
			}
		})
	}
}

func TestGTTSEngine_Args(t *testing.T) {
	engine, _ := NewGTTSEngine(GTTSConfig{Slow: true}, fakeDecoder{})

	got := strings.Join(engine.args("안녕", "ko"), " ")
	if got != "안녕 -l ko --slow -o -" {
		t.Errorf("unexpected args: %q", got)
	}
}

func TestGTTSEngine_InputValidation(t *testing.T) {
	engine, _ := NewGTTSEngine(GTTSConfig{}, fakeDecoder{})

	if _, err := engine.Synthesize(context.Background(), "   ", "en"); !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}

	long := strings.Repeat("a", maxTextSize+1)
	if _, err := engine.Synthesize(context.Background(), long, "en"); !errors.Is(err, ErrTextTooLong) {
		t.Errorf("expected ErrTextTooLong, got %v", err)
	}
}

func TestGTTSEngine_MissingBinary(t *testing.T) {
	engine, _ := NewGTTSEngine(GTTSConfig{Binary: "gtts-cli-does-not-exist"}, fakeDecoder{})

	if err := engine.Validate(); !errors.Is(err, ErrEngineNotAvailable) {
		t.Errorf("expected ErrEngineNotAvailable from Validate, got %v", err)
	}
	if _, err := engine.Synthesize(context.Background(), "hello", "en"); !errors.Is(err, ErrEngineNotAvailable) {
		t.Errorf("expected ErrEngineNotAvailable from Synthesize, got %v", err)
	}
}

func TestSpeechError(t *testing.T) {
	cause := context.DeadlineExceeded
	err := &SpeechError{Code: ErrorCodeTimeout, Language: "ko", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
	if !err.IsRetryable() {
		t.Error("timeouts should be retryable")
	}
	if !strings.Contains(err.Error(), "[ko]") {
		t.Errorf("expected language in message, got %q", err.Error())
	}
}
