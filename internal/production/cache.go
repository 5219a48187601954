package production

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/SchmidtDSE/josh/internal/primitives"
)

// ResourceReader reads an external geospatial resource (a raster band, a
// COG window) covering geometry and returns its values. Implementations
// are external collaborators; Read must be callable outside any entity
// lock and may block on I/O.
type ResourceReader interface {
	Read(ctx context.Context, pathOrURL string, geometry primitives.Geometry) (*primitives.Distribution, error)
}

// ResourceReaderFunc adapts a plain function to ResourceReader.
type ResourceReaderFunc func(ctx context.Context, pathOrURL string, geometry primitives.Geometry) (*primitives.Distribution, error)

func (f ResourceReaderFunc) Read(ctx context.Context, pathOrURL string, geometry primitives.Geometry) (*primitives.Distribution, error) {
	return f(ctx, pathOrURL, geometry)
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]*primitives.Distribution
}

// ResourceCache fronts a ResourceReader with a sharded in-memory cache.
// Hits take only the shard's read lock; a miss takes the shard's write
// lock for the duration of the read, so concurrent misses on different
// shards never serialize against each other. Transient I/O and data errors
// are retried up to the configured attempt count before surfacing.
type ResourceCache struct {
	reader   ResourceReader
	shards   []*cacheShard
	attempts int
}

// DefaultCacheShards is the shard count used when a caller passes zero.
const DefaultCacheShards = 16

// DefaultReadAttempts bounds retries on ErrIO/ErrData before surfacing.
const DefaultReadAttempts = 3

// NewResourceCache builds a cache over reader with the given shard count
// and per-read attempt bound; zero values select the defaults.
func NewResourceCache(reader ResourceReader, shardCount, attempts int) *ResourceCache {
	if shardCount <= 0 {
		shardCount = DefaultCacheShards
	}
	if attempts <= 0 {
		attempts = DefaultReadAttempts
	}
	shards := make([]*cacheShard, shardCount)
	for i := range shards {
		shards[i] = &cacheShard{entries: make(map[string]*primitives.Distribution)}
	}
	return &ResourceCache{reader: reader, shards: shards, attempts: attempts}
}

func cacheKey(pathOrURL string, geometry primitives.Geometry) string {
	return fmt.Sprintf("%s@%.6f,%.6f", pathOrURL, geometry.CenterX(), geometry.CenterY())
}

func (c *ResourceCache) shardFor(key string) *cacheShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[int(h.Sum32())%len(c.shards)]
}

// Read returns the cached distribution for (pathOrURL, geometry), reading
// through on a miss.
func (c *ResourceCache) Read(ctx context.Context, pathOrURL string, geometry primitives.Geometry) (*primitives.Distribution, error) {
	key := cacheKey(pathOrURL, geometry)
	shard := c.shardFor(key)

	shard.mu.RLock()
	cached, ok := shard.entries[key]
	shard.mu.RUnlock()
	if ok {
		return cached, nil
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if cached, ok := shard.entries[key]; ok {
		return cached, nil
	}

	dist, err := c.readWithRetry(ctx, pathOrURL, geometry)
	if err != nil {
		return nil, err
	}
	shard.entries[key] = dist
	return dist, nil
}

func (c *ResourceCache) readWithRetry(ctx context.Context, pathOrURL string, geometry primitives.Geometry) (*primitives.Distribution, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dist, err := c.reader.Read(ctx, pathOrURL, geometry)
		if err == nil {
			return dist, nil
		}
		lastErr = err
		if !errors.Is(err, primitives.ErrIO) && !errors.Is(err, primitives.ErrData) {
			break
		}
	}
	return nil, fmt.Errorf("resource %s: %w", pathOrURL, lastErr)
}

// Len reports the total number of cached entries, across all shards.
func (c *ResourceCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.entries)
		shard.mu.RUnlock()
	}
	return total
}
