package tts

import "context"

// Engine synthesizes text into 16-bit little-endian PCM.
type Engine interface {
	Synthesize(ctx context.Context, text, language string) ([]byte, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, text, language string) ([]byte, error)

// Synthesize implements Engine.
func (f EngineFunc) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	return f(ctx, text, language)
}
