package translate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"layout-translator/internal/types"
)

// CacheEntry is one persisted translation.
type CacheEntry struct {
	Hash        string    `json:"hash"`
	Scope       string    `json:"scope"`
	Original    string    `json:"original"`
	Translation string    `json:"translation"`
	CreatedAt   time.Time `json:"created_at"`
}

// cacheFile is the on-disk layout.
type cacheFile struct {
	Version string       `json:"version"`
	Entries []CacheEntry `json:"entries"`
}

// Cache 翻译缓存
// Entries are keyed by the sha256 of scope and text, where scope names the
// backend and language pair.
type Cache struct {
	path    string
	entries map[string]CacheEntry
	mu      sync.RWMutex
}

// NewCache creates an empty cache persisted at path. An empty path keeps it in memory.
func NewCache(path string) *Cache {
	return &Cache{
		path:    path,
		entries: make(map[string]CacheEntry),
	}
}

// Scope builds the cache scope of a backend and language pair.
func Scope(backend, langIn, langOut string) string {
	return backend + "|" + langIn + "|" + langOut
}

// ComputeHash hashes scope and text.
func ComputeHash(scope, text string) string {
	h := sha256.New()
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached translation of text.
func (c *Cache) Get(scope, text string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[ComputeHash(scope, text)]
	if !ok {
		return "", false
	}
	return entry.Translation, true
}

// Set stores a translation.
func (c *Cache) Set(scope, text, translation string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := ComputeHash(scope, text)
	c.entries[hash] = CacheEntry{
		Hash:        hash,
		Scope:       scope,
		Original:    text,
		Translation: translation,
		CreatedAt:   time.Now(),
	}
}

// Size returns the number of entries.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Load reads the cache file. A missing file leaves the cache empty.
func (c *Cache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return types.NewAppError(types.ErrFileNotFound, "failed to read cache file", err)
	}

	var f cacheFile
	if err := json.Unmarshal(data, &f); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput, "failed to parse cache file", c.path, err)
	}
	c.entries = make(map[string]CacheEntry, len(f.Entries))
	for _, e := range f.Entries {
		c.entries[e.Hash] = e
	}
	return nil
}

// Save writes the cache file.
func (c *Cache) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		return nil
	}
	f := cacheFile{Version: "1.0", Entries: make([]CacheEntry, 0, len(c.entries))}
	for _, e := range c.entries {
		f.Entries = append(f.Entries, e)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrInvalidInput, "failed to marshal cache", err)
	}
	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return types.NewAppError(types.ErrInvalidInput, "failed to create cache directory", err)
		}
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return types.NewAppError(types.ErrInvalidInput, "failed to write cache file", err)
	}
	return nil
}
