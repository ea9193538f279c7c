package tts

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"golang.org/x/text/language"
)

// Cache stores synthesized PCM by key.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte) error
}

// Player plays PCM and blocks until done.
type Player interface {
	PlayPCM(ctx context.Context, pcm []byte) error
	Stop() error
}

// supported lists the gTTS languages a locale is matched against. The first
// entry is the fallback.
var supported = []language.Tag{
	language.English,
	language.Korean,
	language.Japanese,
	language.SimplifiedChinese,
	language.TraditionalChinese,
	language.Spanish,
	language.French,
	language.German,
	language.Italian,
	language.Portuguese,
	language.Russian,
	language.Vietnamese,
	language.Thai,
	language.Indonesian,
}

var matcher = language.NewMatcher(supported)

// gttsCodes maps matched tags whose gTTS code differs from the base
// language.
var gttsCodes = map[language.Tag]string{
	language.SimplifiedChinese:  "zh-CN",
	language.TraditionalChinese: "zh-TW",
}

// ResolveLanguage maps a BCP-47 locale such as "ko-KR" to the gTTS
// language code ("ko"). Unknown or malformed locales fall back to English.
func ResolveLanguage(locale string) string {
	if locale == "" {
		return "en"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		log.Debug("TTS: unparsable locale, using fallback", "locale", locale, "error", err)
		return "en"
	}

	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return "en"
	}
	best := supported[idx]
	if code, ok := gttsCodes[best]; ok {
		return code
	}
	base, _ := best.Base()
	return base.String()
}

// KeyFunc derives a cache key from language and text.
type KeyFunc func(language, text string) string

// Speaker reads text aloud through an Engine and a Player.
type Speaker struct {
	engine Engine
	player Player
	cache  Cache
	key    KeyFunc
}

// NewSpeaker returns a Speaker. cache may be nil.
func NewSpeaker(engine Engine, player Player, cache Cache, key KeyFunc) *Speaker {
	return &Speaker{
		engine: engine,
		player: player,
		cache:  cache,
		key:    key,
	}
}

// Speak synthesizes text in locale and plays it, returning once playback
// has finished, Stop was called, or ctx is cancelled.
func (s *Speaker) Speak(ctx context.Context, text, locale string) error {
	if text == "" {
		return ErrEmptyText
	}
	lang := ResolveLanguage(locale)

	pcm, err := s.pcm(ctx, text, lang)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.player.PlayPCM(ctx, pcm); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &SpeechError{Code: ErrorCodePlayback, Language: lang, Cause: err}
	}
	return nil
}

func (s *Speaker) pcm(ctx context.Context, text, lang string) ([]byte, error) {
	var key string
	if s.cache != nil && s.key != nil {
		key = s.key(lang, text)
		if pcm, ok := s.cache.Get(key); ok {
			log.Debug("TTS: cache hit", "language", lang)
			return pcm, nil
		}
	}

	pcm, err := s.engine.Synthesize(ctx, text, lang)
	if err != nil {
		var speechErr *SpeechError
		if errors.As(err, &speechErr) {
			return nil, err
		}
		return nil, &SpeechError{Code: ErrorCodeSynthesis, Language: lang, Cause: err}
	}

	if key != "" {
		if err := s.cache.Put(key, pcm); err != nil {
			// Non-fatal, we still have the audio.
			log.Debug("TTS: cache put failed", "error", err)
		}
	}
	return pcm, nil
}

// Stop interrupts the current utterance.
func (s *Speaker) Stop() error {
	return s.player.Stop()
}
