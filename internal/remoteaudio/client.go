package remoteaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrMissingToken is returned when no bearer token is available.
	ErrMissingToken = errors.New("missing auth token")

	// ErrEmptyAsset is returned for a blank asset identifier.
	ErrEmptyAsset = errors.New("asset identifier is empty")
)

// defaultExt is used when the asset name carries no usable extension.
const defaultExt = ".m4a"

// maxAssetSize bounds a single download.
const maxAssetSize = 32 * 1024 * 1024

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// StatusError reports a non-2xx response from the asset endpoint.
type StatusError struct {
	StatusCode int
	Asset      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.Asset, e.StatusCode, http.StatusText(e.StatusCode))
}

// FilePlayer plays an audio file and blocks until done.
type FilePlayer interface {
	PlayFile(ctx context.Context, path string) error
	Stop() error
}

// Config holds the client settings.
type Config struct {
	// AssetURL builds the endpoint serving an asset. Required.
	AssetURL func(asset string) string

	// TempDir receives the downloads, os.TempDir() when empty.
	TempDir string

	// FetchTimeout bounds the download only. Zero disables it.
	FetchTimeout time.Duration

	// HTTPClient overrides the instrumented default.
	HTTPClient *http.Client
}

// Client fetches and plays remote audio assets.
type Client struct {
	assetURL func(string) string
	tempDir  string
	timeout  time.Duration
	http     *http.Client
	player   FilePlayer
}

// New returns a client that plays downloads through player.
func New(config Config, player FilePlayer) (*Client, error) {
	if player == nil {
		return nil, errors.New("remoteaudio: player is required")
	}
	if config.AssetURL == nil {
		return nil, errors.New("remoteaudio: asset url builder is required")
	}

	if config.TempDir == "" {
		config.TempDir = os.TempDir()
	}
	if err := os.MkdirAll(config.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("remoteaudio: failed to create temp directory: %w", err)
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "remoteaudio " + r.Method
			}),
		)}
	}

	return &Client{
		assetURL: config.AssetURL,
		tempDir:  config.TempDir,
		timeout:  config.FetchTimeout,
		http:     client,
		player:   player,
	}, nil
}

// PlayRemoteAudio downloads asset with token, plays it and returns once
// playback has finished. The temp file is removed on every path.
func (c *Client) PlayRemoteAudio(ctx context.Context, asset, token string) error {
	if strings.TrimSpace(asset) == "" {
		return ErrEmptyAsset
	}
	if token == "" {
		return ErrMissingToken
	}

	file, err := c.fetch(ctx, asset, token)
	if err != nil {
		return err
	}
	defer c.remove(file)

	if err := c.player.PlayFile(ctx, file); err != nil {
		return fmt.Errorf("play %s: %w", asset, err)
	}
	return nil
}

// Stop interrupts the current playback.
func (c *Client) Stop() error {
	return c.player.Stop()
}

// fetch downloads asset into a fresh temp file and returns its path.
func (c *Client) fetch(ctx context.Context, asset, token string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.assetURL(asset), nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", asset, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", asset, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &StatusError{StatusCode: resp.StatusCode, Asset: asset}
	}

	name := filepath.Join(c.tempDir, TempName(asset))
	out, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	n, err := io.Copy(out, io.LimitReader(resp.Body, maxAssetSize+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > maxAssetSize {
		err = fmt.Errorf("asset larger than %s", humanize.Bytes(maxAssetSize))
	}
	if err == nil && n == 0 {
		err = errors.New("empty response body")
	}
	if err != nil {
		c.remove(name)
		return "", fmt.Errorf("download %s: %w", asset, err)
	}

	log.Debug("Audio: asset downloaded",
		"asset", asset,
		"size", humanize.Bytes(uint64(n)),
		"took", time.Since(start))
	return name, nil
}

func (c *Client) remove(name string) {
	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Audio: failed to remove temp file", "path", name, "error", err)
	}
}

// TempName builds cheer-{asset}-{uuid}{ext}. The random part keeps two
// concurrent fetches of the same asset apart.
func TempName(asset string) string {
	base := path.Base(filepath.ToSlash(asset))
	ext := strings.ToLower(filepath.Ext(base))
	if len(ext) < 2 || len(ext) > 6 || unsafeChars.MatchString(ext[1:]) {
		ext = defaultExt
	} else {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}

	stem := strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "_")
	if len(stem) > 48 {
		stem = stem[:48]
	}
	if stem == "" {
		stem = "asset"
	}
	return fmt.Sprintf("cheer-%s-%s%s", stem, uuid.NewString(), ext)
}
