package kpm

import (
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/blake2b"
)

// Digest is the hex blake2b-256 of an archive as downloaded.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// archiveCache keeps decompressed tar streams by the digest of the archive
// they came from.
type archiveCache struct {
	mu sync.RWMutex

	cache *lru.ARCCache
}

func newArchiveCache(size int) *archiveCache {
	cache, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}

	return &archiveCache{cache: cache}
}

func (c *archiveCache) Lookup(digest string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, ok := c.cache.Get(digest)
	if !ok {
		return nil, false
	}

	return val.([]byte), true
}

func (c *archiveCache) Set(digest string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(digest, data)
}
