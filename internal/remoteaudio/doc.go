// Package remoteaudio downloads cheer audio assets to uniquely named temp
// files, plays them and removes them afterwards.
package remoteaudio
