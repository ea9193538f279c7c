// Package ingest keeps the MQTT subscription for the signed-in user and
// routes incoming events to playback and to the running session.
package ingest
