package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	// ErrMissingToken is returned when no bearer token is available.
	ErrMissingToken = errors.New("missing auth token")

	// ErrNoSession is returned when an event is sent without a session id.
	ErrNoSession = errors.New("no session id")

	// ErrEmptyContent is returned for events with nothing to send.
	ErrEmptyContent = errors.New("event content is empty")
)

// Event types accepted by the events endpoint.
const (
	EventTypeText     = "text"
	EventTypeAudio    = "audio"
	EventTypeInternal = "internal"
)

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend: unexpected status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("backend: unexpected status %d", e.StatusCode)
}

// TokenSource supplies the bearer token.
type TokenSource interface {
	Token() string
}

// Client submits events to the backend.
type Client struct {
	base   *url.URL
	tokens TokenSource
	http   *http.Client
}

// New returns a client for baseURL. httpClient may be nil.
func New(baseURL string, tokens TokenSource, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: invalid base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend: base url must be absolute, got %q", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("backend: token source is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "backend " + r.Method + " " + r.URL.Path
				}),
			),
		}
	}
	return &Client{base: base, tokens: tokens, http: httpClient}, nil
}

// AudioURL returns the endpoint serving assetID.
func (c *Client) AudioURL(assetID string) string {
	u := *c.base
	dir := path.Join("/", c.base.Path, "events", "audio")
	u.Path = dir + "/" + assetID
	u.RawPath = dir + "/" + url.PathEscape(assetID)
	return u.String()
}

// SendInternalEvent submits a locally generated announcement.
func (c *Client) SendInternalEvent(ctx context.Context, sessionID, text string) error {
	return c.sendText(ctx, EventTypeInternal, sessionID, text)
}

// SendTextEvent submits a text cheer.
func (c *Client) SendTextEvent(ctx context.Context, sessionID, text string) error {
	return c.sendText(ctx, EventTypeText, sessionID, text)
}

func (c *Client) sendText(ctx context.Context, eventType, sessionID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyContent
	}
	return c.post(ctx, eventType, sessionID, func(w *multipart.Writer) error {
		return w.WriteField("text_content", text)
	})
}

// SendAudioEvent submits a recorded voice cheer read from audio.
func (c *Client) SendAudioEvent(ctx context.Context, sessionID, filename string, audio io.Reader) error {
	if audio == nil {
		return ErrEmptyContent
	}
	return c.post(ctx, EventTypeAudio, sessionID, func(w *multipart.Writer) error {
		part, err := w.CreateFormFile("audio", filepath.Base(filename))
		if err != nil {
			return err
		}
		n, err := io.Copy(part, audio)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrEmptyContent
		}
		log.Debug("Backend: audio attached", "file", filename, "size", humanize.Bytes(uint64(n)))
		return nil
	})
}

func (c *Client) post(ctx context.Context, eventType, sessionID string, body func(*multipart.Writer) error) error {
	if sessionID == "" {
		return ErrNoSession
	}
	token := c.tokens.Token()
	if token == "" {
		return ErrMissingToken
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("event_type", eventType); err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	if err := w.WriteField("session_id", sessionID); err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	if err := body(w); err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}

	u := *c.base
	u.Path = path.Join("/", c.base.Path, "events")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &buf)
	if err != nil {
		return fmt.Errorf("send %s event: %w", eventType, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send %s event: %w", eventType, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	log.Debug("Backend: event sent", "type", eventType, "session", sessionID)
	return nil
}
