package tilecache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// tileKey derives the memory-cache key for a tile: a one-way hash over the
// URL, the projection identifier and the tile size. The key is stable across
// sessions, and tiles cached under a different size or projection stay
// addressable only under their old key.
func tileKey(url string, epsg, tileSizePx int) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(fmt.Sprintf("%s|%d|%d", url, epsg, tileSizePx)))
}
