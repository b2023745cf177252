package repo

import (
	"context"
	"sync"
	"time"

	"github.com/miradorstack/mirador-hotspot/internal/cache"
)

// recordingCache is a MemoryProvider that remembers which keys were written.
type recordingCache struct {
	*cache.MemoryProvider

	mu   sync.Mutex
	sets []string
}

func newRecordingCache() *recordingCache {
	return &recordingCache{MemoryProvider: cache.NewMemoryProvider()}
}

func (r *recordingCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	r.mu.Lock()
	r.sets = append(r.sets, key)
	r.mu.Unlock()
	return r.MemoryProvider.Set(ctx, key, value, ttl)
}

func (r *recordingCache) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sets...)
}
