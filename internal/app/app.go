// Package app assembles the cheercast components and exposes the running
// session lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/cheerrun/cheercast/internal/audio"
	"github.com/cheerrun/cheercast/internal/backend"
	"github.com/cheerrun/cheercast/internal/cache"
	"github.com/cheerrun/cheercast/internal/config"
	"github.com/cheerrun/cheercast/internal/ingest"
	"github.com/cheerrun/cheercast/internal/journal"
	"github.com/cheerrun/cheercast/internal/playback"
	"github.com/cheerrun/cheercast/internal/remoteaudio"
	"github.com/cheerrun/cheercast/internal/session"
	"github.com/cheerrun/cheercast/internal/tts"
)

// Player is the audio output shared by speech and remote audio.
type Player interface {
	PlayPCM(ctx context.Context, pcm []byte) error
	Stop() error
	Close() error
}

// App owns one instance of every component.
type App struct {
	config config.Config
	creds  config.Credentials

	player    Player
	cache     *cache.DiskCache
	journal   *journal.Journal
	backend   *backend.Client
	engine    *playback.Engine
	store     *session.Store
	announcer *session.Announcer
	ingest    *ingest.Client
}

// New opens the audio device and builds the app.
func New(cfg config.Config, creds config.Credentials) (*App, error) {
	pcfg := audio.DefaultPlayerConfig()
	pcfg.SampleRate = cfg.Audio.SampleRate
	pcfg.Volume = cfg.Audio.Volume

	player, err := audio.NewPlayer(pcfg)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}

	a, err := newApp(cfg, creds, player)
	if err != nil {
		_ = player.Close()
		return nil, err
	}
	return a, nil
}

func newApp(cfg config.Config, creds config.Credentials, player Player) (*App, error) {
	a := &App{config: cfg, creds: creds, player: player}

	pcfg := audio.DefaultPlayerConfig()
	pcfg.SampleRate = cfg.Audio.SampleRate
	decoder := audio.NewDecoder(pcfg)
	decoder.Binary = cfg.Audio.FFmpeg

	synth, err := tts.NewGTTSEngine(tts.GTTSConfig{
		Binary:            cfg.Speech.Binary,
		Slow:              cfg.Speech.Slow,
		Timeout:           cfg.Speech.Timeout,
		RequestsPerMinute: cfg.Speech.RequestsPerMinute,
	}, decoder)
	if err != nil {
		return nil, err
	}
	if err := synth.Validate(); err != nil {
		log.Warn("Speech will fail until the engine is installed", "error", err)
	}

	var speechCache tts.Cache
	if cfg.Cache.Enabled {
		dc, err := cache.NewDiskCache(cfg.Cache.Dir, int64(cfg.Cache.MaxSize)*1024*1024)
		if err != nil {
			log.Warn("Speech cache disabled", "dir", cfg.Cache.Dir, "error", err)
		} else {
			a.cache = dc
			speechCache = dc
		}
	}
	speaker := tts.NewSpeaker(synth, player, speechCache, cache.Key)

	tokens := playback.TokenFunc(func() string { return creds.Token })
	a.backend, err = backend.New(cfg.API.BaseURL, tokens, nil)
	if err != nil {
		_ = a.closeStores()
		return nil, err
	}

	remote, err := remoteaudio.New(remoteaudio.Config{
		AssetURL:     a.backend.AudioURL,
		TempDir:      cfg.Audio.TempDir,
		FetchTimeout: cfg.Audio.FetchTimeout,
	}, audio.NewFilePlayer(decoder, player))
	if err != nil {
		_ = a.closeStores()
		return nil, err
	}

	a.engine = playback.New(speaker,
		playback.WithRemoteAudio(remote),
		playback.WithTokenSource(tokens),
		playback.WithLocale(cfg.Speech.Locale),
	)
	a.store = session.NewStore()
	a.announcer = session.NewAnnouncer(a.store, a.backend, a.engine)

	opts := []ingest.Option{
		ingest.WithSessionLog(a.store),
		ingest.WithStateHandler(func(from, to ingest.State) {
			log.Info("Broker connection", "from", from, "to", to)
		}),
	}
	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			log.Warn("Cheer journal disabled", "path", cfg.Journal.Path, "error", err)
		} else {
			a.journal = j
			opts = append(opts, ingest.WithRecorder(j))
		}
	}
	a.ingest = ingest.New(ingest.Config{
		BrokerURL:            cfg.Broker.URL,
		ConnectTimeout:       cfg.Broker.ConnectTimeout,
		KeepAlive:            cfg.Broker.KeepAlive,
		MaxReconnectInterval: cfg.Broker.MaxReconnectInterval,
		QoS:                  byte(cfg.Broker.QoS),
	}, a.engine, opts...)

	return a, nil
}

// Start connects to the broker.
func (a *App) Start(ctx context.Context) error {
	return a.ingest.Connect(ctx, ingest.Credentials{UserID: a.creds.UserID, Token: a.creds.Token})
}

// StartSession begins a running session without a server id.
func (a *App) StartSession() {
	a.store.Start()
}

// SessionSaved binds the id the server assigned and flushes announcements
// made before it existed.
func (a *App) SessionSaved(ctx context.Context, id string) error {
	if id == "" {
		return backend.ErrNoSession
	}
	if !a.store.Active() {
		a.store.Start()
	}
	a.store.Bind(id)
	return a.announcer.FlushPendingEvents(ctx)
}

// Announce sends a locally generated announcement, buffering it until the
// session has an id.
func (a *App) Announce(ctx context.Context, text string) error {
	return a.announcer.SendInternalEvent(ctx, text)
}

// EndSession abandons the session: pending announcements are discarded,
// playback stops and the event log is cleared.
func (a *App) EndSession() {
	a.announcer.Reset()
	a.engine.Stop()
	a.store.Reset()
}

// Apply takes the hot-reloadable parts of cfg.
func (a *App) Apply(cfg config.Config) {
	if cfg.Speech.Locale != a.engine.Locale() {
		log.Info("Speech locale changed", "locale", cfg.Speech.Locale)
		a.engine.SetLocale(cfg.Speech.Locale)
	}
}

// Engine returns the playback engine.
func (a *App) Engine() *playback.Engine { return a.engine }

// Session returns the running session.
func (a *App) Session() *session.Store { return a.store }

// Announcer returns the announcement buffer.
func (a *App) Announcer() *session.Announcer { return a.announcer }

// Ingest returns the broker client.
func (a *App) Ingest() *ingest.Client { return a.ingest }

// Journal returns the cheer journal, nil when disabled.
func (a *App) Journal() *journal.Journal { return a.journal }

// Close disconnects, stops playback and releases every resource.
func (a *App) Close() error {
	a.ingest.Disconnect()

	var errs []error
	if err := a.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("playback: %w", err))
	}
	if n := len(a.announcer.Pending()); n > 0 {
		log.Warn("Exiting with undelivered announcements", "count", n)
	}
	errs = append(errs, a.closeStores())
	if err := a.player.Close(); err != nil {
		errs = append(errs, fmt.Errorf("audio: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) closeStores() error {
	var errs []error
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal: %w", err))
		}
	}
	return errors.Join(errs...)
}
