package cache

import (
	"context"
	"io"
)

var _ StateCache = (*nonPersistentStateCache)(nil)
var _ StateCache = (*persistentCache)(nil)
var _ io.Closer = (*persistentCache)(nil)

// NewPersistentCache creates a cache that persists its content to disk under workingDir. Each cache file is indexed by
// the RPC address (to separate network caches) and the pinned block key. The returned cache is closed when ctx is
// cancelled, or explicitly through io.Closer.
func NewPersistentCache(ctx context.Context, workingDir string, rpcAddr string, blockKey string) (StateCache, error) {
	return newPersistentCache(ctx, workingDir, rpcAddr, blockKey)
}

// NewNonPersistentCache creates a cache that only lives in memory for the duration of a session.
func NewNonPersistentCache() StateCache {
	return newNonPersistentStateCache()
}
