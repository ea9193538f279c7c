package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cheerrun/cheercast/internal/config"
	"github.com/spf13/viper"
)

type fakePlayer struct {
	mu     sync.Mutex
	stops  int
	closed bool
}

func (f *fakePlayer) PlayPCM(context.Context, []byte) error { return nil }

func (f *fakePlayer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakePlayer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type backendRecorder struct {
	mu       sync.Mutex
	sessions []string
	texts    []string
}

func (b *backendRecorder) handler(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseMultipartForm(1 << 20)
	b.mu.Lock()
	b.sessions = append(b.sessions, r.FormValue("session_id"))
	b.texts = append(b.texts, r.FormValue("text_content"))
	b.mu.Unlock()
	w.WriteHeader(http.StatusCreated)
}

func (b *backendRecorder) sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.texts...)
}

func newTestApp(t *testing.T) (*App, *backendRecorder, *fakePlayer) {
	t.Helper()
	rec := &backendRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	t.Cleanup(srv.Close)

	v := viper.New()
	config.SetDefaults(v)
	dir := t.TempDir()
	v.Set("api.base_url", srv.URL)
	v.Set("broker.url", "tcp://127.0.0.1:1")
	v.Set("speech.binary", filepath.Join(dir, "no-gtts"))
	v.Set("cache.dir", filepath.Join(dir, "cache"))
	v.Set("journal.path", filepath.Join(dir, "journal.db"))
	v.Set("audio.temp_dir", filepath.Join(dir, "tmp"))
	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}

	player := &fakePlayer{}
	a, err := newApp(cfg, config.Credentials{UserID: "u-1", Token: "tok"}, player)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, rec, player
}

func TestAnnouncementsWaitForSessionID(t *testing.T) {
	a, rec, _ := newTestApp(t)
	ctx := context.Background()

	a.StartSession()
	_ = a.Announce(ctx, "1 km")
	_ = a.Announce(ctx, "2 km")
	if len(rec.sent()) != 0 {
		t.Fatal("announcements must wait for the session id")
	}

	if err := a.SessionSaved(ctx, "s-1"); err != nil {
		t.Fatalf("SessionSaved failed: %v", err)
	}
	if got := rec.sent(); len(got) != 2 || got[0] != "1 km" || got[1] != "2 km" {
		t.Fatalf("expected FIFO flush, got %v", got)
	}

	if err := a.Announce(ctx, "3 km"); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	if got := rec.sent(); len(got) != 3 {
		t.Fatalf("expected immediate send once bound, got %v", got)
	}
}

func TestEndSessionDiscardsPending(t *testing.T) {
	a, rec, player := newTestApp(t)
	ctx := context.Background()

	a.StartSession()
	_ = a.Announce(ctx, "lost")
	a.EndSession()

	if a.Session().Active() {
		t.Fatal("expected session to end")
	}
	if len(a.Announcer().Pending()) != 0 {
		t.Fatal("expected pending announcements to be dropped")
	}
	if player.stops == 0 {
		t.Fatal("expected playback to stop")
	}

	_ = a.SessionSaved(ctx, "s-2")
	if len(rec.sent()) != 0 {
		t.Fatalf("discarded announcements must not be sent, got %v", rec.sent())
	}
}

func TestSessionSavedRequiresID(t *testing.T) {
	a, _, _ := newTestApp(t)
	if err := a.SessionSaved(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestApplyChangesLocale(t *testing.T) {
	a, _, _ := newTestApp(t)

	cfg := a.config
	cfg.Speech.Locale = "en-US"
	a.Apply(cfg)

	if got := a.Engine().Locale(); got != "en-US" {
		t.Fatalf("expected locale en-US, got %q", got)
	}
}

func TestStartFailsWithoutBroker(t *testing.T) {
	a, _, _ := newTestApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.Start(ctx); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestCloseReleasesPlayer(t *testing.T) {
	a, _, player := newTestApp(t)
	if a.Journal() == nil {
		t.Fatal("expected journal to be open")
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !player.closed {
		t.Fatal("expected audio player to be closed")
	}
}
