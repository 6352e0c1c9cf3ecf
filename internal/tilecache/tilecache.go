// Package tilecache keeps recently decoded tiles keyed by payload content.
package tilecache

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Faultbox/qmesh/pkg/qmesh"
)

// Key identifies a compressed tile payload decoded with particular options.
type Key uint64

// KeyOf hashes a compressed payload together with the decoder options that
// affect the decoded result, so decoders with different settings can share
// one cache without seeing each other's tiles.
func KeyOf(data []byte, opts qmesh.Options) Key {
	var prefix [17]byte
	binary.LittleEndian.PutUint64(prefix[0:], uint64(opts.HeaderSize))
	binary.LittleEndian.PutUint64(prefix[8:], uint64(opts.MaxTileBytes))
	prefix[16] = uint8(opts.Compression)

	h := xxhash.New()
	h.Write(prefix[:])
	h.Write(data)
	return Key(h.Sum64())
}

// Cache is a fixed-size LRU of decoded tiles. Cached tiles are shared with
// every caller that hits the same key; callers must treat them as read-only.
// It is safe for concurrent use.
type Cache struct {
	lru *lru.Cache[Key, *qmesh.Tile]
}

// New returns a cache holding at most size tiles.
func New(size int) (*Cache, error) {
	c, err := lru.New[Key, *qmesh.Tile](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Get returns the tile cached for key.
func (c *Cache) Get(key Key) (*qmesh.Tile, bool) {
	return c.lru.Get(key)
}

// Add caches tile under key and reports whether an older entry was evicted.
func (c *Cache) Add(key Key, tile *qmesh.Tile) bool {
	return c.lru.Add(key, tile)
}

// Len returns the number of cached tiles.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every cached tile.
func (c *Cache) Purge() {
	c.lru.Purge()
}
