package remoteaudio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakePlayer struct {
	mu      sync.Mutex
	paths   []string
	content []string
	err     error
	stops   int
}

func (f *fakePlayer) PlayFile(_ context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	f.content = append(f.content, string(data))
	return f.err
}

func (f *fakePlayer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

// assetURL mirrors the backend's asset endpoint layout.
func assetURL(base string) func(string) string {
	return func(asset string) string {
		return base + "/events/audio/" + url.PathEscape(asset)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, player FilePlayer) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	c, err := New(Config{AssetURL: assetURL(srv.URL + "/api"), TempDir: dir, FetchTimeout: 2 * time.Second}, player)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, dir
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp dir to be empty, found %d entries (first %s)", len(entries), entries[0].Name())
	}
}

func TestPlayRemoteAudio_Success(t *testing.T) {
	var gotPath, gotAuth string
	handler := func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("m4a-bytes"))
	}
	player := &fakePlayer{}
	c, dir := newTestClient(t, handler, player)

	if err := c.PlayRemoteAudio(context.Background(), "cheer-42.m4a", "tok"); err != nil {
		t.Fatalf("PlayRemoteAudio failed: %v", err)
	}

	if gotPath != "/api/events/audio/cheer-42.m4a" {
		t.Errorf("unexpected request path %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("unexpected Authorization header %q", gotAuth)
	}
	if len(player.content) != 1 || player.content[0] != "m4a-bytes" {
		t.Fatalf("expected downloaded bytes to be played, got %v", player.content)
	}
	if filepath.Dir(player.paths[0]) != dir {
		t.Errorf("expected file in %s, got %s", dir, player.paths[0])
	}
	assertEmptyDir(t, dir)
}

func TestPlayRemoteAudio_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		token   string
		player  *fakePlayer
		check   func(error) bool
	}{
		{
			name:    "missing token",
			handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("x")) },
			player:  &fakePlayer{},
			check:   func(err error) bool { return errors.Is(err, ErrMissingToken) },
		},
		{
			name:    "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) { http.NotFound(w, nil) },
			token:   "tok",
			player:  &fakePlayer{},
			check: func(err error) bool {
				var se *StatusError
				return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
			},
		},
		{
			name:    "empty body",
			handler: func(http.ResponseWriter, *http.Request) {},
			token:   "tok",
			player:  &fakePlayer{},
			check:   func(err error) bool { return err != nil && strings.Contains(err.Error(), "empty") },
		},
		{
			name:    "player failure",
			handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("x")) },
			token:   "tok",
			player:  &fakePlayer{err: errors.New("decode failed")},
			check:   func(err error) bool { return err != nil && strings.Contains(err.Error(), "decode failed") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, dir := newTestClient(t, tt.handler, tt.player)

			err := c.PlayRemoteAudio(context.Background(), "a.m4a", tt.token)
			if !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
			assertEmptyDir(t, dir)
		})
	}
}

func TestPlayRemoteAudio_TransportError(t *testing.T) {
	player := &fakePlayer{}
	dir := t.TempDir()
	c, err := New(Config{AssetURL: assetURL("http://127.0.0.1:1"), TempDir: dir}, player)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := c.PlayRemoteAudio(context.Background(), "a.m4a", "tok"); err == nil {
		t.Fatal("expected transport error")
	}
	assertEmptyDir(t, dir)
}

func TestPlayRemoteAudio_FetchTimeout(t *testing.T) {
	release := make(chan struct{})
	handler := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}
	srv := httptest.NewServer(http.HandlerFunc(handler))
	defer srv.Close()
	defer close(release)

	dir := t.TempDir()
	c, err := New(Config{AssetURL: assetURL(srv.URL), TempDir: dir, FetchTimeout: 50 * time.Millisecond}, &fakePlayer{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = c.PlayRemoteAudio(context.Background(), "slow.m4a", "tok")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	assertEmptyDir(t, dir)
}

func TestTempName(t *testing.T) {
	tests := []struct {
		asset      string
		wantPrefix string
		wantExt    string
	}{
		{"cheer-42.m4a", "cheer-cheer-42-", ".m4a"},
		{"voice.MP3", "cheer-voice-", ".mp3"},
		{"noext", "cheer-noext-", ".m4a"},
		{"../../etc/passwd", "cheer-passwd-", ".m4a"},
		{"uploads/2024/a b.wav", "cheer-a_b-", ".wav"},
		{"...", "cheer-asset-", ".m4a"},
	}

	for _, tt := range tests {
		t.Run(tt.asset, func(t *testing.T) {
			got := TempName(tt.asset)
			if !strings.HasPrefix(got, tt.wantPrefix) || !strings.HasSuffix(got, tt.wantExt) {
				t.Errorf("TempName(%q) = %q, want %s*%s", tt.asset, got, tt.wantPrefix, tt.wantExt)
			}
			if strings.ContainsRune(got, '/') {
				t.Errorf("TempName(%q) = %q contains a path separator", tt.asset, got)
			}
		})
	}

	if TempName("same.m4a") == TempName("same.m4a") {
		t.Error("expected distinct names for the same asset")
	}
}

func TestStopDelegatesToPlayer(t *testing.T) {
	player := &fakePlayer{}
	c, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) {}, player)

	_ = c.Stop()
	if player.stops != 1 {
		t.Fatalf("expected player Stop, got %d", player.stops)
	}
}

func TestNewRequiresAssetURL(t *testing.T) {
	if _, err := New(Config{TempDir: t.TempDir()}, &fakePlayer{}); err == nil {
		t.Fatal("expected an error without an asset url builder")
	}
	if _, err := New(Config{AssetURL: assetURL("http://x")}, nil); err == nil {
		t.Fatal("expected an error without a player")
	}
}
