// Package events decodes and validates the social events delivered over the
// broker.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidEvent is returned for payloads that are not an event object.
	ErrInvalidEvent = errors.New("invalid event payload")

	// ErrMissingType is returned when the type field is absent.
	ErrMissingType = errors.New("event type is missing")

	// ErrUnknownType is returned for types other than text, audio and
	// internal.
	ErrUnknownType = errors.New("unknown event type")
)

// Type classifies an incoming event.
type Type string

const (
	TypeText     Type = "text"
	TypeAudio    Type = "audio"
	TypeInternal Type = "internal"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeAudio, TypeInternal:
		return true
	}
	return false
}

// IncomingEvent is an immutable event received from the broker.
type IncomingEvent struct {
	Type        Type      `json:"type"`
	TextContent string    `json:"text_content,omitempty"`
	AudioName   string    `json:"audio_name,omitempty"`
	Topic       string    `json:"-"`
	ReceivedAt  time.Time `json:"-"`
}

// Content returns the field that carries the event's payload: the audio
// name for audio events, the text otherwise.
func (e IncomingEvent) Content() string {
	if e.Type == TypeAudio {
		return e.AudioName
	}
	return e.TextContent
}

// Playable reports whether the event carries something to play.
func (e IncomingEvent) Playable() bool {
	return strings.TrimSpace(e.Content()) != ""
}

// Decode parses payload into an event. Some publishers double-encode the
// object as a JSON string; that form is accepted too.
func Decode(payload []byte) (IncomingEvent, error) {
	var ev IncomingEvent

	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return ev, fmt.Errorf("%w: empty payload", ErrInvalidEvent)
	}

	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
			return ev, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		trimmed = inner
	}

	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return ev, err
	}
	return ev, nil
}

// Validate checks the type field.
func (e IncomingEvent) Validate() error {
	if e.Type == "" {
		return ErrMissingType
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	return nil
}
