// Package tts turns text into speech: a synthesis Engine producing PCM and
// a Speaker that resolves the locale, consults the speech cache and plays
// the result.
package tts
