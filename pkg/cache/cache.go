// Package cache stores IMDB id -> upstream item lookups with separate
// lifetimes for found and not-found results, persisted as one JSON snapshot.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stremio-sos-go/pkg/logging"
	"stremio-sos-go/pkg/types"
)

// SnapshotVersion is written into every snapshot file.
const SnapshotVersion = 1

// Kind distinguishes found from confirmed-not-found entries.
type Kind string

const (
	KindPositive Kind = "positive"
	KindNegative Kind = "negative"
)

// Entry is one cached lookup.
type Entry struct {
	Kind      Kind      `json:"kind"`
	UpdatedAt time.Time `json:"updatedAt"`

	// positive payload
	UpstreamID string        `json:"upstreamId,omitempty"`
	Title      string        `json:"title,omitempty"`
	Year       int           `json:"year,omitempty"`
	Quality    types.Quality `json:"quality,omitempty"`

	// negative payload
	Reason string `json:"reason,omitempty"`
}

// Payload is the data stored with a positive entry.
type Payload struct {
	UpstreamID string
	Title      string
	Year       int
	Quality    types.Quality
}

type snapshot struct {
	Version int               `json:"version"`
	Items   map[string]*Entry `json:"items"`
}

// Options configures a Cache.
type Options struct {
	// Path of the snapshot file. Empty keeps the cache in memory only.
	Path        string
	PositiveTTL time.Duration
	NegativeTTL time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Cache is the lookup cache. It is safe for concurrent use; overlapping
// writers are last-write-wins on the snapshot.
type Cache struct {
	opts  Options
	log   *logging.Logger
	mu    sync.Mutex
	items map[string]*Entry

	// snapshot writer state
	writeMu  sync.Mutex
	seq      uint64
	written  uint64
	inflight sync.WaitGroup
}

// New creates an empty cache. Call Load to read the snapshot.
func New(opts Options, log *logging.Logger) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		opts:  opts,
		log:   log.WithComponent("cache"),
		items: make(map[string]*Entry),
	}
}

// Key derives the cache key for an IMDB id.
func Key(imdbID string) string {
	return "imdb:" + imdbID
}

// Load reads the snapshot file. A missing or corrupt file leaves the cache
// empty; it never fails startup.
func (c *Cache) Load() {
	if c.opts.Path == "" {
		return
	}

	b, err := os.ReadFile(c.opts.Path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.log.Warn("failed to read cache snapshot, starting empty", "path", c.opts.Path, "error", err)
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		c.log.Warn("cache snapshot is not valid JSON, starting empty", "path", c.opts.Path, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range snap.Items {
		if e == nil || (e.Kind != KindPositive && e.Kind != KindNegative) {
			continue
		}
		c.items[k] = e
	}
	c.log.Info("cache loaded", "path", c.opts.Path, "entries", len(c.items))
}

func (c *Cache) ttl(kind Kind) time.Duration {
	if kind == KindNegative {
		return c.opts.NegativeTTL
	}
	return c.opts.PositiveTTL
}

// Get returns the entry for key. An entry older than its kind's TTL is
// evicted and reported as absent.
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.opts.Now().Sub(e.UpdatedAt) > c.ttl(e.Kind) {
		delete(c.items, key)
		return nil, false
	}

	out := *e
	return &out, true
}

// SetPositive stores a found mapping and schedules a snapshot save.
func (c *Cache) SetPositive(key string, p Payload) {
	c.set(key, &Entry{
		Kind:       KindPositive,
		UpdatedAt:  c.opts.Now(),
		UpstreamID: p.UpstreamID,
		Title:      p.Title,
		Year:       p.Year,
		Quality:    p.Quality,
	})
}

// SetNegative stores a confirmed not-found with a short reason and
// schedules a snapshot save.
func (c *Cache) SetNegative(key, reason string) {
	c.set(key, &Entry{
		Kind:      KindNegative,
		UpdatedAt: c.opts.Now(),
		Reason:    reason,
	})
}

// Len returns the number of entries currently held, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Wait blocks until all scheduled snapshot saves have finished.
func (c *Cache) Wait() {
	c.inflight.Wait()
}

func (c *Cache) set(key string, e *Entry) {
	c.mu.Lock()
	c.items[key] = e
	if c.opts.Path == "" {
		c.mu.Unlock()
		return
	}
	data, err := json.MarshalIndent(snapshot{Version: SnapshotVersion, Items: c.items}, "", "  ")
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	if err != nil {
		c.log.Error("failed to encode cache snapshot", "error", err)
		return
	}

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.save(seq, data)
	}()
}

// save writes one snapshot. It never returns an error: persistence is best
// effort and must not affect request handling. Snapshots older than the
// last one written are dropped.
func (c *Cache) save(seq uint64, data []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if seq <= c.written {
		return
	}
	if err := writeFileAtomic(c.opts.Path, data); err != nil {
		c.log.Warn("failed to save cache snapshot", "path", c.opts.Path, "error", err)
		return
	}
	c.written = seq
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
