// Package cache stores front-end units keyed by source content so unchanged
// files are not re-parsed between runs.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/panbanda/reaper/pkg/symtab"
)

// FormatVersion is mixed into every key. Bump it when extraction changes so
// stale units are ignored.
const FormatVersion = "reaper-unit-v1"

// Cache provides file-based caching of extracted units.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
}

// Entry represents a cached unit.
type Entry struct {
	Hash      string      `json:"hash"`
	Timestamp time.Time   `json:"timestamp"`
	Unit      symtab.Unit `json:"unit"`
}

// New creates a new cache instance. A ttl of zero keeps entries until the
// source changes.
func New(dir string, ttl time.Duration, enabled bool) (*Cache, error) {
	if !enabled {
		return &Cache{enabled: false}, nil
	}
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Cache{
		dir:     dir,
		ttl:     ttl,
		enabled: true,
	}, nil
}

// Enabled reports whether lookups can hit.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// HashBytes computes a BLAKE3 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ContentHash hashes the unit path together with its source, so a file moved
// to another path is re-extracted with its new identities.
func ContentHash(path string, source []byte) string {
	h := blake3.New()
	_, _ = h.Write([]byte(FormatVersion))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(path))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(source)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the unit stored for path if its hash matches and it has not expired.
func (c *Cache) Get(path, hash string) (symtab.Unit, bool) {
	if !c.Enabled() {
		return symtab.Unit{}, false
	}

	file := c.keyPath(path)
	data, err := os.ReadFile(file)
	if err != nil {
		return symtab.Unit{}, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return symtab.Unit{}, false
	}
	if entry.Hash != hash {
		return symtab.Unit{}, false
	}
	if c.ttl > 0 && time.Since(entry.Timestamp) > c.ttl {
		_ = os.Remove(file)
		return symtab.Unit{}, false
	}
	return entry.Unit, true
}

// Put stores the unit for path under hash.
func (c *Cache) Put(path, hash string, unit symtab.Unit) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(Entry{
		Hash:      hash,
		Timestamp: time.Now(),
		Unit:      unit,
	})
	if err != nil {
		return err
	}
	// Write then rename so concurrent workers never read a torn entry.
	tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.keyPath(path))
}

// Clear removes all cache entries.
func (c *Cache) Clear() error {
	if !c.Enabled() {
		return nil
	}
	return os.RemoveAll(c.dir)
}

// keyPath converts a key to a filesystem path.
func (c *Cache) keyPath(key string) string {
	// Use BLAKE3 hash of key for filename to avoid path issues
	hash := blake3.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(hash[:])+".json")
}

// Stats returns cache statistics.
type Stats struct {
	Entries   int   `json:"entries"`
	TotalSize int64 `json:"total_size"`
}

// GetStats returns statistics about the cache.
func (c *Cache) GetStats() (*Stats, error) {
	if !c.Enabled() {
		return &Stats{}, nil
	}
	stats := &Stats{}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.TotalSize += info.Size()
	}
	return stats, nil
}
