package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/cheerrun/cheercast/internal/config"
	gap "github.com/muesli/go-app-paths"
)

var logFile io.Writer = io.Discard

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, config.AppName).CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, config.AppName+".log"), nil
}

func setupLog() (func() error, error) {
	// Log to file, if set
	log.SetOutput(io.Discard)

	path, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		// log disabled
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		// log disabled
		return func() error { return nil }, nil
	}
	logFile = f
	log.SetOutput(f)
	log.SetReportTimestamp(true)
	return f.Close, nil
}

// enableStderrLog mirrors the log file to stderr.
func enableStderrLog() {
	log.SetOutput(io.MultiWriter(logFile, os.Stderr))
}
