package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cheerrun/cheercast/internal/backend"
	"github.com/cheerrun/cheercast/internal/config"
)

type cheerRecord struct {
	eventType string
	session   string
	text      string
	filename  string
	audio     string
}

type cheerServer struct {
	mu      sync.Mutex
	records []cheerRecord
}

func (s *cheerServer) handler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec := cheerRecord{
		eventType: r.FormValue("event_type"),
		session:   r.FormValue("session_id"),
		text:      r.FormValue("text_content"),
	}
	if f, h, err := r.FormFile("audio"); err == nil {
		data, _ := io.ReadAll(f)
		_ = f.Close()
		rec.filename = h.Filename
		rec.audio = string(data)
	}
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func newTestCheers(t *testing.T) (*Cheers, *cheerServer) {
	t.Helper()
	s := &cheerServer{}
	srv := httptest.NewServer(http.HandlerFunc(s.handler))
	t.Cleanup(srv.Close)

	var cfg config.Config
	cfg.API.BaseURL = srv.URL
	c, err := NewCheers(cfg, config.Credentials{UserID: "u-2", Token: "tok"})
	if err != nil {
		t.Fatalf("NewCheers failed: %v", err)
	}
	return c, s
}

func TestCheersText(t *testing.T) {
	c, s := newTestCheers(t)

	if err := c.Text(context.Background(), "s-7", "you got this"); err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if len(s.records) != 1 {
		t.Fatalf("expected one request, got %d", len(s.records))
	}
	got := s.records[0]
	if got.eventType != "text" || got.session != "s-7" || got.text != "you got this" {
		t.Fatalf("unexpected submission %+v", got)
	}
}

func TestCheersAudio(t *testing.T) {
	c, s := newTestCheers(t)
	path := filepath.Join(t.TempDir(), "go-go.m4a")
	if err := os.WriteFile(path, []byte("m4a-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := c.Audio(context.Background(), "s-7", path); err != nil {
		t.Fatalf("Audio failed: %v", err)
	}
	got := s.records[0]
	if got.eventType != "audio" || got.session != "s-7" || got.filename != "go-go.m4a" || got.audio != "m4a-bytes" {
		t.Fatalf("unexpected submission %+v", got)
	}
}

func TestCheersErrors(t *testing.T) {
	c, s := newTestCheers(t)
	ctx := context.Background()

	tests := []struct {
		name string
		send func() error
		want error
	}{
		{"empty text", func() error { return c.Text(ctx, "s-7", "  ") }, backend.ErrEmptyContent},
		{"no session", func() error { return c.Text(ctx, "", "hi") }, backend.ErrNoSession},
		{"missing file", func() error { return c.Audio(ctx, "s-7", filepath.Join(t.TempDir(), "nope.m4a")) }, os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.send(); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
	if len(s.records) != 0 {
		t.Fatalf("nothing should reach the backend, got %+v", s.records)
	}
}
