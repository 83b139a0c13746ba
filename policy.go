package tilecache

// CachePolicy governs how the disk cache and the network are consulted when a
// tile is not in memory.
type CachePolicy int

const (
	// AlwaysNetwork always pulls tiles from the network; the disk cache is
	// detached entirely.
	AlwaysNetwork CachePolicy = iota
	// PreferNetwork pulls the latest tile from the network but keeps the disk
	// cache attached so responses still land on disk.
	PreferNetwork
	// PreferCache serves from the disk cache when possible and falls back to
	// the network.
	PreferCache
	// AlwaysCache serves from caches only; no network requests are made.
	AlwaysCache
)

func (p CachePolicy) String() string {
	switch p {
	case AlwaysNetwork:
		return "always-network"
	case PreferNetwork:
		return "prefer-network"
	case PreferCache:
		return "prefer-cache"
	case AlwaysCache:
		return "always-cache"
	default:
		return "unknown"
	}
}

// ParseCachePolicy maps a configuration string to a CachePolicy.
func ParseCachePolicy(s string) (CachePolicy, bool) {
	switch s {
	case "always-network":
		return AlwaysNetwork, true
	case "prefer-network":
		return PreferNetwork, true
	case "prefer-cache":
		return PreferCache, true
	case "always-cache":
		return AlwaysCache, true
	default:
		return AlwaysCache, false
	}
}
