package app

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/cheerrun/cheercast/internal/backend"
	"github.com/cheerrun/cheercast/internal/config"
	"github.com/cheerrun/cheercast/internal/playback"
)

// Cheers sends cheers to someone else's running session. Unlike App it
// needs no audio device or broker connection.
type Cheers struct {
	backend *backend.Client
}

// NewCheers returns a sender authenticated with creds.
func NewCheers(cfg config.Config, creds config.Credentials) (*Cheers, error) {
	tokens := playback.TokenFunc(func() string { return creds.Token })
	b, err := backend.New(cfg.API.BaseURL, tokens, nil)
	if err != nil {
		return nil, err
	}
	return &Cheers{backend: b}, nil
}

// Text sends a text cheer, read aloud on the runner's side.
func (c *Cheers) Text(ctx context.Context, sessionID, text string) error {
	if err := c.backend.SendTextEvent(ctx, sessionID, text); err != nil {
		return fmt.Errorf("send text cheer: %w", err)
	}
	log.Info("Cheer sent", "session", sessionID, "type", backend.EventTypeText)
	return nil
}

// Audio sends the recording at path as a voice cheer.
func (c *Cheers) Audio(ctx context.Context, sessionID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	defer f.Close() //nolint:errcheck

	if err := c.backend.SendAudioEvent(ctx, sessionID, path, f); err != nil {
		return fmt.Errorf("send voice cheer: %w", err)
	}
	log.Info("Cheer sent", "session", sessionID, "type", backend.EventTypeAudio, "file", path)
	return nil
}
