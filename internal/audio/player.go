package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

var (
	// ErrEmptyAudio is returned when there is nothing to play.
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrPlayerClosed is returned when playing on a closed player.
	ErrPlayerClosed = errors.New("player is closed")

	// ErrStopped is returned by PlayPCM when Stop interrupted the sound.
	ErrStopped = errors.New("playback stopped")
)

// pollInterval is how often PlayPCM checks whether oto has drained the
// stream.
const pollInterval = 20 * time.Millisecond

// PlayerState represents the current state of the player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StateClosed
)

// String returns the string representation of the state.
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Player plays PCM through a single oto context. Only one sound plays at a
// time; starting a new one stops the previous one.
type Player struct {
	// OTO context - initialized once and reused
	context *oto.Context

	player       *oto.Player
	activeStream *AudioStream

	state  atomic.Int32
	volume atomic.Uint64 // volume * 1e6

	mu sync.Mutex

	sampleRate int
	channels   int
	bitDepth   int
}

// AudioStream keeps PCM data referenced for as long as oto reads from it.
type AudioStream struct {
	data     []byte
	reader   io.Reader
	duration time.Duration

	closeOnce sync.Once
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int // 44100 or 48000 Hz only
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // 16 bits per sample
	BufferSize int // Buffer size in bytes
	Volume     float64
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 44100,
		Channels:   1,
		BitDepth:   16,
		BufferSize: 4096,
		Volume:     1.0,
	}
}

// NewPlayer opens the audio device. oto allows one context per process, so
// the player is created once at startup and shared.
func NewPlayer(config PlayerConfig) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(config.BufferSize) * time.Second / time.Duration(config.SampleRate*config.Channels*2),
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	p := &Player{
		context:    ctx,
		sampleRate: config.SampleRate,
		channels:   config.Channels,
		bitDepth:   config.BitDepth,
	}
	p.state.Store(int32(StateStopped))
	if err := p.SetVolume(config.Volume); err != nil {
		return nil, err
	}

	return p, nil
}

func validateConfig(config PlayerConfig) error {
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	if config.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 16, got %d", config.BitDepth)
	}
	if config.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	if config.Volume < 0 || config.Volume > 1 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", config.Volume)
	}
	return nil
}

// PlayPCM plays 16-bit little-endian PCM and blocks until the sound has
// finished, Stop is called, or ctx is cancelled.
func (p *Player) PlayPCM(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return ErrEmptyAudio
	}

	p.mu.Lock()
	if PlayerState(p.state.Load()) == StateClosed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	p.stopLocked()

	stream := p.newStream(pcm)
	player := p.context.NewPlayer(stream.reader)
	player.SetVolume(p.getVolume())
	p.player = player
	p.activeStream = stream
	player.Play()
	p.state.Store(int32(StatePlaying))
	p.mu.Unlock()

	log.Debug("Audio: playback started", "duration", stream.duration)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.release(player)
			return ctx.Err()
		case <-ticker.C:
			if player.IsPlaying() {
				continue
			}
			if !p.release(player) {
				// Someone else already tore this player down.
				return ErrStopped
			}
			if err := player.Err(); err != nil {
				return fmt.Errorf("oto playback: %w", err)
			}
			return nil
		}
	}
}

// newStream copies pcm so the caller can reuse its buffer.
func (p *Player) newStream(pcm []byte) *AudioStream {
	data := make([]byte, len(pcm))
	copy(data, pcm)

	bytesPerSample := p.bitDepth / 8
	samples := len(data) / (p.channels * bytesPerSample)

	return &AudioStream{
		data:     data,
		reader:   bytes.NewReader(data),
		duration: time.Duration(samples) * time.Second / time.Duration(p.sampleRate),
	}
}

// release tears down player if it is still the current one and reports
// whether it was.
func (p *Player) release(player *oto.Player) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.player != player {
		return false
	}
	p.stopLocked()
	return true
}

// Stop interrupts the current sound. Stopping an idle player is a no-op.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	if p.player != nil {
		p.player.Pause()
		if err := p.player.Close(); err != nil {
			log.Debug("Audio: closing oto player", "error", err)
		}
		p.player = nil
	}
	if p.activeStream != nil {
		p.activeStream.Close()
		p.activeStream = nil
	}
	if PlayerState(p.state.Load()) != StateClosed {
		p.state.Store(int32(StateStopped))
	}
}

// IsPlaying reports whether a sound is currently playing.
func (p *Player) IsPlaying() bool {
	return PlayerState(p.state.Load()) == StatePlaying
}

// GetState returns the current player state.
func (p *Player) GetState() PlayerState {
	return PlayerState(p.state.Load())
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	p.volume.Store(uint64(volume * 1000000))

	p.mu.Lock()
	if p.player != nil {
		p.player.SetVolume(volume)
	}
	p.mu.Unlock()

	return nil
}

func (p *Player) getVolume() float64 {
	return float64(p.volume.Load()) / 1000000.0
}

// GetVolume returns the current volume.
func (p *Player) GetVolume() float64 {
	return p.getVolume()
}

// Close stops playback and marks the player unusable. oto/v3 has no way to
// release its context, so the device stays open until the process exits.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.state.Store(int32(StateClosed))
	return nil
}

// Close drops the stream's data.
func (s *AudioStream) Close() {
	s.closeOnce.Do(func() {
		s.data = nil
		s.reader = nil
	})
}

// Duration returns the stream duration.
func (s *AudioStream) Duration() time.Duration {
	return s.duration
}
