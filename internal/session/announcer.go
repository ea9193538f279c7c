package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/cheerrun/cheercast/internal/playback"
)

// Sender transmits an internal event for a session.
type Sender interface {
	SendInternalEvent(ctx context.Context, sessionID, text string) error
}

// Enqueuer accepts items for local playback.
type Enqueuer interface {
	Enqueue(item playback.Item) error
}

// IDSource reports the current session id.
type IDSource interface {
	ID() (string, bool)
}

// Announcer sends locally generated announcements, buffering them while the
// session has no id.
//
// Announcements leave in the order they were made: once anything is
// buffered, later announcements queue behind it until a flush drains the
// buffer, even if the id is already bound. Delivery is at-most-once: a
// failed send is reported to the caller and not retried.
type Announcer struct {
	ids    IDSource
	sender Sender
	player Enqueuer

	mu       sync.Mutex
	pending  []string
	flushing bool
}

// NewAnnouncer returns an Announcer. player may be nil to skip local
// speech.
func NewAnnouncer(ids IDSource, sender Sender, player Enqueuer) *Announcer {
	return &Announcer{ids: ids, sender: sender, player: player}
}

// SendInternalEvent sends text now if the session has an id and nothing is
// waiting ahead of it. Without an id it is buffered and nil is returned.
func (a *Announcer) SendInternalEvent(ctx context.Context, text string) error {
	a.mu.Lock()
	id, ok := a.ids.ID()
	if !ok {
		a.pending = append(a.pending, text)
		n := len(a.pending)
		a.mu.Unlock()
		log.Debug("Session: announcement buffered", "pending", n)
		return nil
	}
	if a.flushing || len(a.pending) > 0 {
		// Older announcements go first.
		a.pending = append(a.pending, text)
		a.mu.Unlock()
		return a.FlushPendingEvents(ctx)
	}
	a.mu.Unlock()

	return a.send(ctx, id, text)
}

// FlushPendingEvents sends every buffered announcement in arrival order.
// Each batch is swapped out before sending; announcements made during the
// flush are picked up by the next batch. Only one flush runs at a time, a
// concurrent call returns nil straight away.
func (a *Announcer) FlushPendingEvents(ctx context.Context) error {
	a.mu.Lock()
	id, ok := a.ids.ID()
	if !ok {
		n := len(a.pending)
		a.mu.Unlock()
		if n > 0 {
			log.Debug("Session: flush skipped, no session id", "pending", n)
		}
		return nil
	}
	if a.flushing {
		a.mu.Unlock()
		return nil
	}
	a.flushing = true

	var (
		errs []error
		sent int
	)
	for len(a.pending) > 0 {
		batch := a.pending
		a.pending = nil
		a.mu.Unlock()

		log.Debug("Session: flushing announcements", "count", len(batch), "session", id)
		for _, text := range batch {
			if err := a.send(ctx, id, text); err != nil {
				errs = append(errs, fmt.Errorf("announcement %d: %w", sent, err))
			}
			sent++
		}

		a.mu.Lock()
	}
	a.flushing = false
	a.mu.Unlock()

	return errors.Join(errs...)
}

// Pending returns the buffered announcements.
func (a *Announcer) Pending() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.pending...)
}

// Reset drops every buffered announcement.
func (a *Announcer) Reset() {
	a.mu.Lock()
	dropped := len(a.pending)
	a.pending = nil
	a.mu.Unlock()

	if dropped > 0 {
		log.Info("Session: discarded pending announcements", "count", dropped)
	}
}

func (a *Announcer) send(ctx context.Context, id, text string) error {
	err := a.sender.SendInternalEvent(ctx, id, text)
	if err != nil {
		log.Warn("Session: announcement not delivered", "session", id, "error", err)
	}
	// The runner hears the announcement whether or not the server took it.
	if a.player != nil {
		if qErr := a.player.Enqueue(playback.NewInternalSpeech(text)); qErr != nil {
			log.Debug("Session: local speech skipped", "error", qErr)
		}
	}
	return err
}
