package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// maxPCMSize bounds decoder output; a cheer clip is seconds long.
const maxPCMSize = 20 * 1024 * 1024

// Decoder converts compressed audio (mp3, m4a, aac, wav...) into raw PCM
// matching the player's format by shelling out to ffmpeg.
type Decoder struct {
	// Binary is the ffmpeg executable, "ffmpeg" by default.
	Binary     string
	SampleRate int
	Channels   int
	Timeout    time.Duration
}

// NewDecoder returns a decoder producing PCM for config.
func NewDecoder(config PlayerConfig) *Decoder {
	return &Decoder{
		Binary:     "ffmpeg",
		SampleRate: config.SampleRate,
		Channels:   config.Channels,
		Timeout:    15 * time.Second,
	}
}

// args builds the ffmpeg command line for decoding input to stdout.
func (d *Decoder) args(input string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-f", "s16le",
		"-ar", strconv.Itoa(d.SampleRate),
		"-ac", strconv.Itoa(d.Channels),
		"-",
	}
}

// DecodeFile decodes the file at path to PCM.
func (d *Decoder) DecodeFile(ctx context.Context, path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio file: %w", err)
	}
	return d.run(ctx, d.args(path), nil)
}

// Decode decodes an in-memory compressed clip to PCM.
func (d *Decoder) Decode(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	return d.run(ctx, d.args("pipe:0"), bytes.NewReader(data))
}

func (d *Decoder) run(ctx context.Context, args []string, stdin *bytes.Reader) ([]byte, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, d.Binary, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	} else {
		cmd.Stdin = strings.NewReader("")
	}
	// Ask ffmpeg to stop politely before CommandContext kills it.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg decode: %w", ctx.Err())
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return nil, fmt.Errorf("ffmpeg not available: %w", err)
		}
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no PCM output, stderr: %s", strings.TrimSpace(stderr.String()))
	}
	if len(pcm) > maxPCMSize {
		return nil, fmt.Errorf("ffmpeg PCM output too large: %d bytes (max %d)", len(pcm), maxPCMSize)
	}

	return pcm, nil
}
