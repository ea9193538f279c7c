package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity.
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrClosed is returned by Put after Close.
	ErrClosed = errors.New("cache is closed")
)

const indexFile = "cache.index"

// Stats holds cache counters.
type Stats struct {
	Capacity  int64
	Size      int64
	ItemCount int64
	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64
}

// DiskCache stores PCM blobs on disk with zstd compression and evicts the
// least recently used entries once the capacity is reached.
type DiskCache struct {
	basePath string
	capacity int64
	size     int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	index  map[string]*entry
	mu     sync.Mutex
	stats  Stats
	closed bool
}

// entry is persisted in the gob index.
type entry struct {
	FilePath     string
	Size         int64
	OriginalSize int64
	Stored       time.Time
	LastAccess   time.Time
}

// NewDiskCache opens (or creates) a cache rooted at basePath holding at
// most capacity compressed bytes.
func NewDiskCache(basePath string, capacity int64) (*DiskCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	dc := &DiskCache{
		basePath: basePath,
		capacity: capacity,
		encoder:  encoder,
		decoder:  decoder,
		index:    make(map[string]*entry),
	}

	if err := dc.loadIndex(); err != nil {
		log.Warn("Cache: index unreadable, starting empty", "path", basePath, "error", err)
		dc.index = make(map[string]*entry)
	}
	dc.pruneMissing()

	log.Debug("Cache: opened",
		"path", basePath,
		"entries", len(dc.index),
		"size", humanize.Bytes(uint64(dc.size)),
		"capacity", humanize.Bytes(uint64(capacity)))

	return dc, nil
}

// Key derives the cache key for text spoken in language.
func Key(language, text string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(language) + "\x00" + text))
	return hex.EncodeToString(hash[:16])
}

// Get returns the cached PCM for key.
func (dc *DiskCache) Get(key string) ([]byte, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	e, ok := dc.index[key]
	if !ok {
		dc.stats.Misses++
		return nil, false
	}

	data, err := os.ReadFile(e.FilePath)
	if err == nil {
		data, err = dc.decoder.DecodeAll(data, nil)
	}
	if err != nil {
		log.Debug("Cache: dropping unreadable entry", "key", key, "error", err)
		dc.removeLocked(key)
		dc.stats.Misses++
		return nil, false
	}

	e.LastAccess = time.Now()
	dc.stats.Hits++
	return data, true
}

// Put stores data under key, evicting old entries to make room.
func (dc *DiskCache) Put(key string, data []byte) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return ErrClosed
	}

	compressed := dc.encoder.EncodeAll(data, nil)
	diskSize := int64(len(compressed))
	if diskSize > dc.capacity {
		return ErrItemTooLarge
	}

	if _, ok := dc.index[key]; ok {
		dc.removeLocked(key)
	}
	for dc.size+diskSize > dc.capacity && len(dc.index) > 0 {
		dc.evictOldest()
	}

	path := filepath.Join(dc.basePath, key+".pcm.zst")
	if err := writeFile(path, compressed); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	now := time.Now()
	dc.index[key] = &entry{
		FilePath:     path,
		Size:         diskSize,
		OriginalSize: int64(len(data)),
		Stored:       now,
		LastAccess:   now,
	}
	dc.size += diskSize

	return nil
}

// Delete removes key from the cache.
func (dc *DiskCache) Delete(key string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.removeLocked(key)
}

// Clear removes every entry.
func (dc *DiskCache) Clear() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	for key := range dc.index {
		dc.removeLocked(key)
	}
	return dc.saveIndex()
}

// Stats returns cache counters.
func (dc *DiskCache) Stats() Stats {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	stats := dc.stats
	stats.Capacity = dc.capacity
	stats.Size = dc.size
	stats.ItemCount = int64(len(dc.index))
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}

// Close persists the index.
func (dc *DiskCache) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.closed {
		return nil
	}
	dc.closed = true
	dc.decoder.Close()
	if err := dc.encoder.Close(); err != nil {
		log.Debug("Cache: closing encoder", "error", err)
	}
	return dc.saveIndex()
}

func (dc *DiskCache) removeLocked(key string) {
	e, ok := dc.index[key]
	if !ok {
		return
	}
	if err := os.Remove(e.FilePath); err != nil && !os.IsNotExist(err) {
		log.Debug("Cache: removing file", "path", e.FilePath, "error", err)
	}
	dc.size -= e.Size
	delete(dc.index, key)
}

func (dc *DiskCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, e := range dc.index {
		if oldestKey == "" || e.LastAccess.Before(oldest) {
			oldestKey = key
			oldest = e.LastAccess
		}
	}
	if oldestKey != "" {
		dc.removeLocked(oldestKey)
		dc.stats.Evictions++
	}
}

// pruneMissing drops index entries whose file vanished and recomputes the
// size.
func (dc *DiskCache) pruneMissing() {
	dc.size = 0
	for key, e := range dc.index {
		if _, err := os.Stat(e.FilePath); err != nil {
			delete(dc.index, key)
			continue
		}
		dc.size += e.Size
	}
}

func (dc *DiskCache) loadIndex() error {
	file, err := os.Open(filepath.Join(dc.basePath, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close() //nolint:errcheck

	return gob.NewDecoder(file).Decode(&dc.index)
}

func (dc *DiskCache) saveIndex() error {
	indexPath := filepath.Join(dc.basePath, indexFile)
	tempPath := indexPath + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}
	err = gob.NewEncoder(file).Encode(dc.index)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return err
	}

	return os.Rename(tempPath, indexPath)
}

// writeFile writes to a temp file and renames it into place.
func writeFile(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	return os.Rename(tempPath, path)
}
