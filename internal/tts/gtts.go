package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const (
	// Google rejects long requests.
	maxTextSize = 5000
	maxMP3Size  = 50 * 1024 * 1024
)

// Decoder turns compressed audio bytes into PCM.
type Decoder interface {
	Decode(ctx context.Context, data []byte) ([]byte, error)
}

// GTTSEngine synthesizes speech with gTTS (Google Translate TTS).
// Process: text → gtts-cli → MP3 → ffmpeg → PCM.
// This provides free TTS without requiring an API key.
type GTTSEngine struct {
	binary  string
	slow    bool
	timeout time.Duration
	decoder Decoder

	// Rate limiting to avoid being blocked by Google
	limiter *rate.Limiter
}

// GTTSConfig holds configuration for the gTTS engine.
type GTTSConfig struct {
	// Binary is the gtts-cli executable, "gtts-cli" by default.
	Binary string

	// Slow speech (--slow flag)
	Slow bool

	// Timeout bounds one gtts-cli run, 30s by default.
	Timeout time.Duration

	// Rate limit requests per minute (defaults to 50)
	RequestsPerMinute int
}

// NewGTTSEngine creates a gTTS engine that decodes its MP3 output with
// decoder.
func NewGTTSEngine(config GTTSConfig, decoder Decoder) (*GTTSEngine, error) {
	if decoder == nil {
		return nil, errors.New("gtts: decoder is required")
	}
	if config.Binary == "" {
		config.Binary = "gtts-cli"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RequestsPerMinute < 0 {
		return nil, fmt.Errorf("gtts: requests per minute must not be negative, got %d", config.RequestsPerMinute)
	}
	if config.RequestsPerMinute == 0 {
		config.RequestsPerMinute = 50
	}

	return &GTTSEngine{
		binary:  config.Binary,
		slow:    config.Slow,
		timeout: config.Timeout,
		decoder: decoder,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
	}, nil
}

// Synthesize converts text to PCM.
func (e *GTTSEngine) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if len(text) > maxTextSize {
		return nil, fmt.Errorf("%w: %d characters (max %d)", ErrTextTooLong, len(text), maxTextSize)
	}
	if language == "" {
		language = "en"
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	start := time.Now()
	mp3, err := e.synthesizeToMP3(ctx, text, language)
	if err != nil {
		return nil, err
	}

	pcm, err := e.decoder.Decode(ctx, mp3)
	if err != nil {
		return nil, &SpeechError{Code: ErrorCodeDecode, Language: language, Cause: err}
	}

	log.Debug("TTS: synthesized", "language", language, "chars", len(text), "took", time.Since(start))
	return pcm, nil
}

// Validate checks that gtts-cli can be found.
func (e *GTTSEngine) Validate() error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("%w: %s not found in PATH (install with: pip install gtts): %v", ErrEngineNotAvailable, e.binary, err)
	}
	return nil
}

func (e *GTTSEngine) args(text, language string) []string {
	args := []string{text, "-l", language}
	if e.slow {
		args = append(args, "--slow")
	}
	return append(args, "-o", "-")
}

// synthesizeToMP3 generates MP3 audio using gtts-cli.
func (e *GTTSEngine) synthesizeToMP3(ctx context.Context, text, language string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binary, e.args(text, language)...)
	cmd.Stdin = strings.NewReader("")
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, &SpeechError{Code: ErrorCodeTimeout, Language: language, Cause: ctx.Err()}
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("%w: %v", ErrEngineNotAvailable, err)
		}
		return nil, &SpeechError{
			Code:     ErrorCodeSynthesis,
			Language: language,
			Cause:    fmt.Errorf("gtts-cli failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String())),
		}
	}

	mp3 := stdout.Bytes()
	if len(mp3) == 0 {
		return nil, &SpeechError{
			Code:     ErrorCodeSynthesis,
			Language: language,
			Cause:    fmt.Errorf("gtts-cli produced no MP3 output, stderr: %s", strings.TrimSpace(stderr.String())),
		}
	}
	if len(mp3) > maxMP3Size {
		return nil, fmt.Errorf("gtts-cli MP3 output too large: %d bytes (max %d)", len(mp3), maxMP3Size)
	}

	return mp3, nil
}
