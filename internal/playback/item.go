package playback

import "time"

// Kind identifies what an Item asks the engine to do.
type Kind int

const (
	// Speech is peer text read out through text-to-speech.
	Speech Kind = iota

	// AudioFile is a remote audio asset fetched and played.
	AudioFile

	// InternalSpeech is a local announcement read out through
	// text-to-speech. It always plays at High priority.
	InternalSpeech
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Speech:
		return "speech"
	case AudioFile:
		return "audio_file"
	case InternalSpeech:
		return "internal_speech"
	default:
		return "unknown"
	}
}

// Priority decides which lane an Item waits in.
type Priority int

const (
	// PriorityLow shares the regular lane with PriorityNormal.
	PriorityLow Priority = iota

	// PriorityNormal is the default for peer events.
	PriorityNormal

	// PriorityHigh jumps ahead of every pending Normal and Low item.
	// Reserved for InternalSpeech.
	PriorityHigh
)

// String returns the string representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Item is a unit of playback work.
type Item struct {
	Kind Kind

	// Content is the text to speak for Speech and InternalSpeech, or the
	// remote asset name for AudioFile.
	Content string

	Priority Priority

	// EnqueuedAt is stamped by the engine.
	EnqueuedAt time.Time
}

// NewSpeech returns a Normal priority speech item.
func NewSpeech(text string) Item {
	return Item{Kind: Speech, Content: text, Priority: PriorityNormal}
}

// NewInternalSpeech returns a High priority announcement item.
func NewInternalSpeech(text string) Item {
	return Item{Kind: InternalSpeech, Content: text, Priority: PriorityHigh}
}

// NewAudioFile returns a Normal priority remote audio item.
func NewAudioFile(assetName string) Item {
	return Item{Kind: AudioFile, Content: assetName, Priority: PriorityNormal}
}

// normalize enforces the priority reservation: internal speech is always
// High and nothing else may be.
func (i Item) normalize() Item {
	switch {
	case i.Kind == InternalSpeech:
		i.Priority = PriorityHigh
	case i.Priority == PriorityHigh:
		i.Priority = PriorityNormal
	}
	return i
}
