// Package playback serializes speech and audio-file playback so that
// exactly one item is audible at a time. Producers call Enqueue from any
// goroutine; a single drain loop takes items off the queue in priority
// order and waits for each one to finish before starting the next.
package playback
