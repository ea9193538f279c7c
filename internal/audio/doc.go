// Package audio owns the device playback resource. It plays 16-bit PCM
// through oto/v3, decodes compressed files to PCM with ffmpeg, and blocks
// each play call until the sound has finished so callers can sequence
// playback.
package audio
