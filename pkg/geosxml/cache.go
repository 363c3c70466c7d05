package geosxml

import (
	"container/list"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benjaminschreck/go-geosxml/pkg/geosxml/xml"
)

// CacheConfig contains configuration options for the document cache
type CacheConfig struct {
	// MaxSize is the maximum number of documents to cache. 0 disables caching.
	MaxSize int
	// TTL is the time-to-live for cached documents. 0 means no expiration.
	TTL time.Duration
}

// DocumentCache keeps parsed input files keyed by absolute path. An entry is dropped when the
// file's size or modification time changes. Cached documents must not be mutated.
type DocumentCache struct {
	mu     sync.Mutex
	cache  map[string]*cacheEntry
	lru    *list.List
	config CacheConfig

	hits   int
	misses int
}

type cacheEntry struct {
	key      string
	document *xml.Document
	size     int64
	modTime  time.Time
	expiry   time.Time
	element  *list.Element
}

// NewDocumentCache creates a new document cache using the global configuration
func NewDocumentCache() *DocumentCache {
	config := GetGlobalConfig()
	return NewDocumentCacheWithConfig(CacheConfig{
		MaxSize: config.CacheMaxSize,
		TTL:     config.CacheTTL,
	})
}

// NewDocumentCacheWithConfig creates a new document cache with the given configuration
func NewDocumentCacheWithConfig(config CacheConfig) *DocumentCache {
	return &DocumentCache{
		cache:  make(map[string]*cacheEntry),
		lru:    list.New(),
		config: config,
	}
}

// Load returns the parsed document stored at path, reading it only when it is not cached or
// has changed on disk.
func (dc *DocumentCache) Load(path string) (*xml.Document, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(key)
	if err != nil {
		return nil, err
	}

	if doc, ok := dc.get(key, info); ok {
		return doc, nil
	}

	doc, err := xml.ParseFile(key)
	if err != nil {
		return nil, NewDocumentError("parse", key, err)
	}

	dc.set(key, doc, info)
	return doc, nil
}

func (dc *DocumentCache) get(key string, info os.FileInfo) (*xml.Document, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	entry, exists := dc.cache[key]
	if !exists {
		dc.misses++
		return nil, false
	}

	stale := entry.size != info.Size() || !entry.modTime.Equal(info.ModTime())
	expired := dc.config.TTL > 0 && time.Now().After(entry.expiry)
	if stale || expired {
		dc.removeLocked(entry)
		dc.misses++
		return nil, false
	}

	dc.lru.MoveToFront(entry.element)
	dc.hits++
	return entry.document, true
}

func (dc *DocumentCache) set(key string, doc *xml.Document, info os.FileInfo) {
	// Check if caching is disabled
	if dc.config.MaxSize == 0 {
		return
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if existing, exists := dc.cache[key]; exists {
		dc.removeLocked(existing)
	}

	// Evict least recently used
	for dc.lru.Len() >= dc.config.MaxSize {
		oldest := dc.lru.Back()
		if oldest == nil {
			break
		}
		dc.removeLocked(oldest.Value.(*cacheEntry))
	}

	entry := &cacheEntry{
		key:      key,
		document: doc,
		size:     info.Size(),
		modTime:  info.ModTime(),
	}
	if dc.config.TTL > 0 {
		entry.expiry = time.Now().Add(dc.config.TTL)
	}

	entry.element = dc.lru.PushFront(entry)
	dc.cache[key] = entry
}

func (dc *DocumentCache) removeLocked(entry *cacheEntry) {
	delete(dc.cache, entry.key)
	dc.lru.Remove(entry.element)
}

// Remove drops the entry for path
func (dc *DocumentCache) Remove(path string) {
	key, err := filepath.Abs(path)
	if err != nil {
		return
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if entry, exists := dc.cache[key]; exists {
		dc.removeLocked(entry)
	}
}

// Clear removes all documents from the cache
func (dc *DocumentCache) Clear() {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.cache = make(map[string]*cacheEntry)
	dc.lru = list.New()
}

// Size returns the current number of cached documents
func (dc *DocumentCache) Size() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return len(dc.cache)
}

// Stats returns the number of cache hits and misses so far
func (dc *DocumentCache) Stats() (hits, misses int) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.hits, dc.misses
}
