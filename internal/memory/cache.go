package memory

import (
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheTTL bounds how long a cached collection is served without
// re-reading the file.
const DefaultCacheTTL = 30 * time.Second

// Resource is a cached file: where it came from, the file version it was
// loaded from, and the parsed value.
type Resource struct {
	Path     string
	ModTime  time.Time
	Size     int64
	LoadedAt time.Time
	Value    any
}

// FileStat is the current on-disk version of a file.
type FileStat struct {
	Exists  bool
	ModTime time.Time
	Size    int64
}

// StatFile reads the current version of path.
func StatFile(path string) FileStat {
	info, err := os.Stat(path)
	if err != nil {
		return FileStat{}
	}
	return FileStat{Exists: true, ModTime: info.ModTime(), Size: info.Size()}
}

// IsStale reports whether r must be reloaded: it is older than ttl, or the
// file has changed or disappeared since it was loaded.
func IsStale(r Resource, st FileStat, now time.Time, ttl time.Duration) bool {
	if !st.Exists {
		return true
	}
	if now.Sub(r.LoadedAt) >= ttl {
		return true
	}
	return !r.ModTime.Equal(st.ModTime) || r.Size != st.Size
}

// ReadCache caches parsed store files. Entries are validated against the
// file's modification time and size on every read.
type ReadCache struct {
	items *gocache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewReadCache creates a cache. now may be nil for time.Now.
func NewReadCache(ttl time.Duration, now func() time.Time) *ReadCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &ReadCache{items: gocache.New(ttl, 2*ttl), ttl: ttl, now: now}
}

// Get returns the cached value for path if it is still fresh for st.
func (c *ReadCache) Get(path string, st FileStat) (any, bool) {
	v, ok := c.items.Get(path)
	if !ok {
		return nil, false
	}
	r := v.(Resource)
	if IsStale(r, st, c.now(), c.ttl) {
		c.items.Delete(path)
		return nil, false
	}
	return r.Value, true
}

// Put stores value as the parsed form of path at version st.
func (c *ReadCache) Put(path string, st FileStat, value any) {
	c.items.Set(path, Resource{
		Path:     path,
		ModTime:  st.ModTime,
		Size:     st.Size,
		LoadedAt: c.now(),
		Value:    value,
	}, gocache.DefaultExpiration)
}

// Invalidate drops path from the cache.
func (c *ReadCache) Invalidate(path string) {
	c.items.Delete(path)
}
