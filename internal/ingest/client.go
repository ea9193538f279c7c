package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cheerrun/cheercast/internal/events"
	"github.com/cheerrun/cheercast/internal/journal"
	"github.com/cheerrun/cheercast/internal/playback"
	"github.com/google/uuid"
)

var (
	// ErrMissingCredentials is returned when the user id or token is empty.
	ErrMissingCredentials = errors.New("missing user id or token")

	// ErrAlreadyConnected is returned by Connect unless the client is
	// disconnected.
	ErrAlreadyConnected = errors.New("client is already connected")
)

// quiesce is how long Disconnect lets in-flight work finish.
const quiesce = 250 * time.Millisecond

// Credentials authenticate against the broker: the user id is the username
// and the token the password.
type Credentials struct {
	UserID string
	Token  string
}

// Config holds the broker settings.
type Config struct {
	BrokerURL            string
	ConnectTimeout       time.Duration
	KeepAlive            time.Duration
	MaxReconnectInterval time.Duration
	QoS                  byte
}

// DefaultConfig returns the default broker settings for brokerURL.
func DefaultConfig(brokerURL string) Config {
	return Config{
		BrokerURL:            brokerURL,
		ConnectTimeout:       10 * time.Second,
		KeepAlive:            30 * time.Second,
		MaxReconnectInterval: time.Minute,
		QoS:                  1,
	}
}

// Enqueuer accepts playback items without waiting for playback.
type Enqueuer interface {
	Enqueue(item playback.Item) error
}

// SessionLog is the running session's event log.
type SessionLog interface {
	AppendEvent(ev events.IncomingEvent) bool
	ID() (string, bool)
}

// Recorder keeps a history of received events.
type Recorder interface {
	Record(ctx context.Context, ev events.IncomingEvent, sessionID string) (journal.Entry, error)
}

// Stats counts handled messages.
type Stats struct {
	Received int64
	Routed   int64
	Dropped  int64
}

// Option configures a Client.
type Option func(*Client)

// WithSessionLog appends every valid event to log.
func WithSessionLog(sl SessionLog) Option {
	return func(c *Client) {
		c.session = sl
	}
}

// WithRecorder records every valid event.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithStateHandler is called after every state change.
func WithStateHandler(fn func(from, to State)) Option {
	return func(c *Client) {
		c.onState = fn
	}
}

// WithClock replaces time.Now for ReceivedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func withDialer(dial dialFunc) Option {
	return func(c *Client) {
		c.dial = dial
	}
}

// Client subscribes to the user's event topic and routes what arrives.
type Client struct {
	config   Config
	player   Enqueuer
	session  SessionLog
	recorder Recorder
	onState  func(from, to State)
	now      func() time.Time
	dial     dialFunc

	mu    sync.Mutex
	state State
	conn  conn
	topic string
	// gen identifies the current connection; callbacks from older ones
	// are ignored.
	gen uint64

	received atomic.Int64
	routed   atomic.Int64
	dropped  atomic.Int64
}

// New returns a disconnected client that enqueues into player.
func New(config Config, player Enqueuer, opts ...Option) *Client {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.MaxReconnectInterval == 0 {
		config.MaxReconnectInterval = time.Minute
	}
	if config.QoS > 2 {
		config.QoS = 1
	}

	c := &Client{
		config: config,
		player: player,
		now:    time.Now,
		dial:   dialPaho,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns message counters.
func (c *Client) Stats() Stats {
	return Stats{
		Received: c.received.Load(),
		Routed:   c.routed.Load(),
		Dropped:  c.dropped.Load(),
	}
}

// Connect opens the broker connection and subscribes to the user's topic.
// The subscription is renewed on every reconnect.
func (c *Client) Connect(ctx context.Context, creds Credentials) error {
	if creds.UserID == "" || creds.Token == "" {
		return ErrMissingCredentials
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.gen++
	gen := c.gen
	c.topic = events.Topic(creds.UserID)
	from := c.setStateLocked(StateConnecting)

	conn := c.dial(dialOptions{
		broker:         c.config.BrokerURL,
		clientID:       fmt.Sprintf("cheercast-%s-%s", creds.UserID, uuid.NewString()),
		username:       creds.UserID,
		password:       creds.Token,
		connectTimeout: c.config.ConnectTimeout,
		keepAlive:      c.config.KeepAlive,
		maxReconnect:   c.config.MaxReconnectInterval,
		ordered:        true,
	}, callbacks{
		onConnect:      func() { c.onConnect(gen) },
		onLost:         func(err error) { c.onLost(gen, err) },
		onReconnecting: func() { c.onReconnecting(gen) },
	})
	c.conn = conn
	c.mu.Unlock()
	c.notify(from, StateConnecting)

	log.Info("Ingest: connecting", "broker", c.config.BrokerURL, "user", creds.UserID)

	if err := conn.Connect(ctx); err != nil {
		c.mu.Lock()
		var changed, owned bool
		if c.gen == gen {
			owned = true
			c.conn = nil
			from = c.setStateLocked(StateDisconnected)
			changed = from != StateDisconnected
		}
		c.mu.Unlock()
		if owned {
			// A cancelled or timed out attempt may still be running.
			conn.Disconnect(0)
		}
		if changed {
			c.notify(from, StateDisconnected)
		}
		return fmt.Errorf("connect to %s: %w", c.config.BrokerURL, err)
	}

	c.transition(gen, StateConnected, StateConnecting)
	return nil
}

// Disconnect unsubscribes and closes the connection. It is safe to call in
// any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	topic := c.topic
	c.conn = nil
	c.gen++
	from := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn == nil {
		return
	}
	c.notify(from, StateDisconnected)

	if from == StateConnected {
		if err := conn.Unsubscribe(topic); err != nil {
			log.Debug("Ingest: unsubscribe failed", "topic", topic, "error", err)
		}
	}
	conn.Disconnect(quiesce)
	log.Info("Ingest: disconnected")
}

// onConnect runs on the initial connect and on every reconnect.
func (c *Client) onConnect(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	topic := c.topic
	c.mu.Unlock()

	if err := conn.Subscribe(topic, c.config.QoS, c.handleMessage); err != nil {
		log.Error("Ingest: subscribe failed", "topic", topic, "error", err)
	} else {
		log.Debug("Ingest: subscribed", "topic", topic, "qos", c.config.QoS)
	}

	c.transition(gen, StateConnected, StateConnecting, StateReconnecting)
}

func (c *Client) onLost(gen uint64, err error) {
	log.Warn("Ingest: connection lost", "error", err)
	c.transition(gen, StateReconnecting, StateConnected, StateConnecting)
}

func (c *Client) onReconnecting(gen uint64) {
	log.Debug("Ingest: reconnecting")
	c.transition(gen, StateReconnecting, StateConnected, StateConnecting)
}

// transition moves to "to" if gen is current and the state is one of from.
func (c *Client) transition(gen uint64, to State, from ...State) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	allowed := false
	for _, s := range from {
		if c.state == s {
			allowed = true
			break
		}
	}
	if !allowed {
		c.mu.Unlock()
		return
	}
	prev := c.setStateLocked(to)
	c.mu.Unlock()

	c.notify(prev, to)
}

func (c *Client) setStateLocked(to State) State {
	from := c.state
	c.state = to
	return from
}

func (c *Client) notify(from, to State) {
	if from == to {
		return
	}
	log.Debug("Ingest: state changed", "from", from, "to", to)
	if c.onState != nil {
		c.onState(from, to)
	}
}

// handleMessage is the broker callback. It never waits for playback and
// never lets a panic escape into the transport.
func (c *Client) handleMessage(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.dropped.Add(1)
			log.Error("Ingest: recovered from panic while routing", "topic", topic, "panic", r)
		}
	}()

	c.received.Add(1)

	if !events.IsEventTopic(topic) {
		c.dropped.Add(1)
		log.Debug("Ingest: ignoring message on unrelated topic", "topic", topic)
		return
	}

	ev, err := events.Decode(payload)
	if err != nil {
		c.dropped.Add(1)
		log.Warn("Ingest: dropping malformed event", "topic", topic, "error", err)
		return
	}
	ev.Topic = topic
	ev.ReceivedAt = c.now()

	var sessionID string
	if c.session != nil {
		c.session.AppendEvent(ev)
		sessionID, _ = c.session.ID()
	}

	c.route(ev)

	if c.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if _, err := c.recorder.Record(ctx, ev, sessionID); err != nil {
			log.Warn("Ingest: journal write failed", "error", err)
		}
		cancel()
	}
}

// route turns ev into a playback item.
func (c *Client) route(ev events.IncomingEvent) {
	if !ev.Playable() {
		log.Debug("Ingest: event has nothing to play", "type", ev.Type)
		return
	}

	var item playback.Item
	switch ev.Type {
	case events.TypeText:
		item = playback.NewSpeech(ev.TextContent)
	case events.TypeInternal:
		item = playback.NewInternalSpeech(ev.TextContent)
	case events.TypeAudio:
		item = playback.NewAudioFile(ev.AudioName)
	default:
		return
	}

	if err := c.player.Enqueue(item); err != nil {
		log.Warn("Ingest: enqueue failed", "type", ev.Type, "error", err)
		return
	}
	c.routed.Add(1)
}
