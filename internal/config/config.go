// Package config loads cheercast settings from viper and credentials from
// the environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// AppName names the config file, env prefix and app directories.
const AppName = "cheercast"

// ErrMissingCredentials is returned when the user id or token is unset.
var ErrMissingCredentials = errors.New("CHEERCAST_USER_ID and CHEERCAST_TOKEN must be set")

// Config is the resolved runtime configuration.
type Config struct {
	API     APIConfig
	Broker  BrokerConfig
	Speech  SpeechConfig
	Audio   AudioConfig
	Cache   CacheConfig
	Journal JournalConfig
	Log     LogConfig
}

type APIConfig struct {
	BaseURL string
}

type BrokerConfig struct {
	URL                  string
	ConnectTimeout       time.Duration
	KeepAlive            time.Duration
	MaxReconnectInterval time.Duration
	QoS                  int
}

type SpeechConfig struct {
	// Locale is the BCP-47 locale speech is read in, e.g. "ko-KR".
	Locale            string
	Slow              bool
	RequestsPerMinute int
	Timeout           time.Duration
	Binary            string
}

type AudioConfig struct {
	SampleRate   int
	Volume       float64
	FFmpeg       string
	FetchTimeout time.Duration
	TempDir      string
}

type CacheConfig struct {
	Enabled bool
	Dir     string
	// MaxSize is in megabytes.
	MaxSize int
}

type JournalConfig struct {
	Enabled bool
	Path    string
}

type LogConfig struct {
	Level string
}

// Credentials authenticate against the broker and the backend.
type Credentials struct {
	UserID string `env:"CHEERCAST_USER_ID"`
	Token  string `env:"CHEERCAST_TOKEN"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://api.cheer.run")
	v.SetDefault("broker.url", "ssl://mqtt.cheer.run:8883")
	v.SetDefault("broker.connect_timeout", "10s")
	v.SetDefault("broker.keep_alive", "30s")
	v.SetDefault("broker.max_reconnect_interval", "1m")
	v.SetDefault("broker.qos", 1)
	v.SetDefault("speech.locale", "ko-KR")
	v.SetDefault("speech.slow", false)
	v.SetDefault("speech.requests_per_minute", 50)
	v.SetDefault("speech.timeout", "30s")
	v.SetDefault("speech.binary", "gtts-cli")
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.volume", 1.0)
	v.SetDefault("audio.ffmpeg", "ffmpeg")
	v.SetDefault("audio.fetch_timeout", "30s")
	v.SetDefault("audio.temp_dir", "")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.max_size", 100)
	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "")
	v.SetDefault("log.level", "info")
}

// Load resolves the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		API: APIConfig{
			BaseURL: strings.TrimRight(v.GetString("api.base_url"), "/"),
		},
		Broker: BrokerConfig{
			URL:                  v.GetString("broker.url"),
			ConnectTimeout:       v.GetDuration("broker.connect_timeout"),
			KeepAlive:            v.GetDuration("broker.keep_alive"),
			MaxReconnectInterval: v.GetDuration("broker.max_reconnect_interval"),
			QoS:                  v.GetInt("broker.qos"),
		},
		Speech: SpeechConfig{
			Locale:            v.GetString("speech.locale"),
			Slow:              v.GetBool("speech.slow"),
			RequestsPerMinute: v.GetInt("speech.requests_per_minute"),
			Timeout:           v.GetDuration("speech.timeout"),
			Binary:            v.GetString("speech.binary"),
		},
		Audio: AudioConfig{
			SampleRate:   v.GetInt("audio.sample_rate"),
			Volume:       v.GetFloat64("audio.volume"),
			FFmpeg:       v.GetString("audio.ffmpeg"),
			FetchTimeout: v.GetDuration("audio.fetch_timeout"),
			TempDir:      v.GetString("audio.temp_dir"),
		},
		Cache: CacheConfig{
			Enabled: v.GetBool("cache.enabled"),
			Dir:     v.GetString("cache.dir"),
			MaxSize: v.GetInt("cache.max_size"),
		},
		Journal: JournalConfig{
			Enabled: v.GetBool("journal.enabled"),
			Path:    v.GetString("journal.path"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}

	if err := cfg.resolvePaths(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolvePaths expands ~ and fills the app directories for unset paths.
func (c *Config) resolvePaths() error {
	scope := gap.NewScope(gap.User, AppName)

	var err error
	if c.Cache.Dir == "" {
		dir, cerr := scope.CacheDir()
		if cerr != nil {
			return fmt.Errorf("could not find cache directory: %w", cerr)
		}
		c.Cache.Dir = filepath.Join(dir, "speech")
	}
	if c.Cache.Dir, err = homedir.Expand(c.Cache.Dir); err != nil {
		return fmt.Errorf("cache.dir: %w", err)
	}

	if c.Journal.Path == "" {
		if c.Journal.Path, err = scope.DataPath("journal.db"); err != nil {
			return fmt.Errorf("could not find data directory: %w", err)
		}
	}
	if c.Journal.Path, err = homedir.Expand(c.Journal.Path); err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}

	if c.Audio.TempDir != "" {
		if c.Audio.TempDir, err = homedir.Expand(c.Audio.TempDir); err != nil {
			return fmt.Errorf("audio.temp_dir: %w", err)
		}
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url must be set")
	}
	if c.Broker.URL == "" {
		return errors.New("broker.url must be set")
	}
	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		return fmt.Errorf("broker.qos must be 0, 1 or 2, got %d", c.Broker.QoS)
	}
	if c.Audio.SampleRate != 44100 && c.Audio.SampleRate != 48000 {
		return fmt.Errorf("audio.sample_rate must be 44100 or 48000, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return fmt.Errorf("audio.volume must be between 0.0 and 1.0, got %.2f", c.Audio.Volume)
	}
	if c.Cache.MaxSize < 1 || c.Cache.MaxSize > 10000 {
		return fmt.Errorf("cache.max_size must be between 1 and 10000 MB, got %d", c.Cache.MaxSize)
	}
	if c.Speech.RequestsPerMinute < 1 {
		return fmt.Errorf("speech.requests_per_minute must be positive, got %d", c.Speech.RequestsPerMinute)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// LogLevel returns the parsed log level, info when unparsable.
func (c Config) LogLevel() log.Level {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// LoadCredentials reads the credentials from the environment.
func LoadCredentials() (Credentials, error) {
	creds, err := env.ParseAs[Credentials]()
	if err != nil {
		return Credentials{}, fmt.Errorf("error parsing credentials: %w", err)
	}
	if creds.UserID == "" || creds.Token == "" {
		return creds, ErrMissingCredentials
	}
	return creds, nil
}

// Watch reloads the configuration whenever the file changes and hands the
// result to apply. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, apply func(Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(v)
		if err != nil {
			log.Warn("Ignoring invalid configuration change", "path", e.Name, "error", err)
			return
		}
		log.Debug("Configuration reloaded", "path", e.Name, "op", e.Op.String())
		apply(cfg)
	})
	v.WatchConfig()
}
