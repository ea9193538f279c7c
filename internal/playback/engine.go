package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cheerrun/cheercast/internal/queue"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrEngineClosed is returned by Enqueue after Close.
	ErrEngineClosed = errors.New("playback engine is closed")

	// ErrUnknownKind is returned for items the engine cannot dispatch.
	ErrUnknownKind = errors.New("unknown playback item kind")

	// ErrNoRemoteAudio is returned for AudioFile items when the engine was
	// built without a remote audio player.
	ErrNoRemoteAudio = errors.New("no remote audio player configured")
)

const idlePollInterval = 20 * time.Millisecond

// Speaker reads text aloud and returns once the speech has finished or ctx
// is cancelled.
type Speaker interface {
	Speak(ctx context.Context, text, locale string) error
	Stop() error
}

// RemoteAudio fetches a remote asset and plays it, returning once playback
// has finished or ctx is cancelled.
type RemoteAudio interface {
	PlayRemoteAudio(ctx context.Context, assetName, token string) error
	Stop() error
}

// TokenSource supplies the bearer token used to fetch remote assets.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

// Token implements TokenSource.
func (f TokenFunc) Token() string { return f() }

// Option configures an Engine.
type Option func(*Engine)

// WithRemoteAudio sets the player used for AudioFile items.
func WithRemoteAudio(remote RemoteAudio) Option {
	return func(e *Engine) {
		e.remote = remote
	}
}

// WithTokenSource sets where AudioFile items get their bearer token.
func WithTokenSource(tokens TokenSource) Option {
	return func(e *Engine) {
		if tokens != nil {
			e.tokens = tokens
		}
	}
}

// WithLocale sets the speech locale, e.g. "ko-KR".
func WithLocale(locale string) Option {
	return func(e *Engine) {
		e.locale = locale
	}
}

// WithClock replaces time.Now for EnqueuedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine is the single consumer of the playback queue.
//
// The active flag is checked and set under mu together with the dequeue,
// so at most one item is ever dispatched at a time no matter how many
// goroutines trigger a drain.
type Engine struct {
	speaker Speaker
	remote  RemoteAudio
	tokens  TokenSource
	now     func() time.Time

	mu      sync.Mutex
	pending *queue.Queue[Item]
	locale  string
	active  bool
	current Item
	cancel  context.CancelFunc
	closed  bool

	// stopping counts Stop calls in progress; nothing starts meanwhile.
	stopping int

	wg sync.WaitGroup
}

// New returns an idle engine that speaks through speaker.
func New(speaker Speaker, opts ...Option) *Engine {
	e := &Engine{
		speaker: speaker,
		tokens:  TokenFunc(func() string { return "" }),
		now:     time.Now,
		pending: queue.New[Item](),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue adds item to the queue and starts draining if the engine is
// idle. It never waits for playback.
func (e *Engine) Enqueue(item Item) error {
	return e.EnqueueBatch(item)
}

// EnqueueBatch adds all items before the drain loop gets a chance to pick
// one, so their relative order is decided by priority alone.
func (e *Engine) EnqueueBatch(items ...Item) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		log.Warn("Playback: dropping items, engine closed", "count", len(items))
		return ErrEngineClosed
	}
	for _, item := range items {
		item = item.normalize()
		item.EnqueuedAt = e.now()
		if err := e.pending.Push(item, item.Priority == PriorityHigh); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("enqueue %s: %w", item.Kind, err)
		}
		log.Debug("Playback: item enqueued",
			"kind", item.Kind,
			"priority", item.Priority,
			"pending", e.pending.Len())
	}
	e.mu.Unlock()

	e.tryDrain()
	return nil
}

// Stop halts the active item, releases the playback backends and drops
// every pending item. It is safe to call at any time, any number of times.
// Items enqueued while Stop runs are kept and start once it returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopping++
	dropped := e.pending.Clear()
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if e.speaker != nil {
		if err := e.speaker.Stop(); err != nil {
			log.Debug("Playback: speaker stop failed", "error", err)
		}
	}
	if e.remote != nil {
		if err := e.remote.Stop(); err != nil {
			log.Debug("Playback: remote audio stop failed", "error", err)
		}
	}

	e.mu.Lock()
	e.stopping--
	e.mu.Unlock()

	log.Debug("Playback: stopped", "dropped", dropped, "was_active", cancel != nil)
	e.tryDrain()
}

// ClearQueue drops pending items without interrupting the active one.
func (e *Engine) ClearQueue() {
	e.mu.Lock()
	dropped := e.pending.Clear()
	e.mu.Unlock()

	log.Debug("Playback: queue cleared", "dropped", dropped)
}

// Close stops playback, waits for the active item to wind down and rejects
// later Enqueue calls.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.Stop()
	e.wg.Wait()

	return e.pending.Close()
}

// SetLocale changes the locale used for items dispatched from now on.
func (e *Engine) SetLocale(locale string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locale = locale
}

// Locale returns the current speech locale.
func (e *Engine) Locale() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locale
}

// Active reports whether an item is currently playing.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Current returns the playing item, if any.
func (e *Engine) Current() (Item, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.active
}

// Len returns the number of items waiting to play.
func (e *Engine) Len() int {
	return e.pending.Len()
}

// WaitIdle blocks until nothing is playing or queued, or ctx is done.
func (e *Engine) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()

	for {
		if !e.Active() && e.Len() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// QueueStats reports how many items went through the queue.
func (e *Engine) QueueStats() queue.Stats {
	return e.pending.GetStats()
}

// Pending returns the waiting items in the order they will play.
func (e *Engine) Pending() []Item {
	return e.pending.Snapshot()
}

// tryDrain starts the next item if nothing is playing. Repeated calls while
// an item is active or a Stop is in progress are no-ops.
func (e *Engine) tryDrain() {
	e.mu.Lock()
	if e.active || e.closed || e.stopping > 0 {
		e.mu.Unlock()
		return
	}
	item, err := e.pending.Pop()
	if err != nil {
		e.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.active = true
	e.current = item
	e.cancel = cancel
	locale := e.locale
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(ctx, cancel, item, locale)
}

// run plays one item, then hands control back to the drain loop.
func (e *Engine) run(ctx context.Context, cancel context.CancelFunc, item Item, locale string) {
	defer e.wg.Done()

	ctx, span := tracer.Start(ctx, "play item")
	queued := e.now().Sub(item.EnqueuedAt).Seconds()
	span.SetAttributes(
		attribute.String("playback.kind", item.Kind.String()),
		attribute.String("playback.priority", item.Priority.String()),
		attribute.Float64("playback.queued_time", queued),
	)

	start := time.Now()
	err := e.play(ctx, item, locale)
	stopped := ctx.Err() != nil
	cancel()

	switch {
	case err != nil && stopped:
		log.Debug("Playback: item interrupted", "kind", item.Kind, "error", err)
		span.AddEvent("interrupted", trace.WithAttributes(attribute.String("error", err.Error())))
	case err != nil:
		log.Warn("Playback: item failed, skipping", "kind", item.Kind, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		log.Debug("Playback: item finished", "kind", item.Kind, "duration", time.Since(start))
	}
	span.End()

	e.mu.Lock()
	e.active = false
	e.current = Item{}
	e.cancel = nil
	e.mu.Unlock()

	e.tryDrain()
}

// play dispatches an item to its backend. A panicking backend is reported
// as an error so one bad item cannot wedge the queue.
func (e *Engine) play(ctx context.Context, item Item, locale string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("playback panicked: %v", r)
		}
	}()

	switch item.Kind {
	case Speech, InternalSpeech:
		return e.speaker.Speak(ctx, item.Content, locale)
	case AudioFile:
		if e.remote == nil {
			return ErrNoRemoteAudio
		}
		return e.remote.PlayRemoteAudio(ctx, item.Content, e.tokens.Token())
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, item.Kind)
	}
}
