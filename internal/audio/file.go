package audio

import (
	"context"
	"fmt"
)

// PCMPlayer plays raw PCM, blocking until done.
type PCMPlayer interface {
	PlayPCM(ctx context.Context, pcm []byte) error
	Stop() error
}

// FileDecoder turns an audio file into PCM.
type FileDecoder interface {
	DecodeFile(ctx context.Context, path string) ([]byte, error)
}

// FilePlayer plays audio files from disk.
type FilePlayer struct {
	decoder FileDecoder
	player  PCMPlayer
}

// NewFilePlayer returns a FilePlayer that decodes with decoder and plays
// through player.
func NewFilePlayer(decoder FileDecoder, player PCMPlayer) *FilePlayer {
	return &FilePlayer{decoder: decoder, player: player}
}

// PlayFile decodes path and plays it, returning once playback has ended.
func (f *FilePlayer) PlayFile(ctx context.Context, path string) error {
	pcm, err := f.decoder.DecodeFile(ctx, path)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return f.player.PlayPCM(ctx, pcm)
}

// Stop interrupts the current sound.
func (f *FilePlayer) Stop() error {
	return f.player.Stop()
}
