package tilecache

import (
	"time"

	"tilecache/network"
)

// Option configures a Manager.
type Option func(*Manager)

// WithTileSize sets the tile edge length in pixels (default 256). It feeds
// the tile key hash and the placeholder dimensions.
func WithTileSize(px int) Option {
	return func(m *Manager) {
		if px > 0 {
			m.tileSizePx = px
		}
	}
}

// WithProjectionEPSG sets the projection identifier mixed into tile keys
// (default 3857, web mercator).
func WithProjectionEPSG(epsg int) Option {
	return func(m *Manager) {
		m.epsg = epsg
	}
}

// WithMemoryCacheCapacity sets the decoded-image cache capacity in MiB
// (default 30).
func WithMemoryCacheCapacity(miB int) Option {
	return func(m *Manager) {
		if miB > 0 {
			m.memoryCapacity = int64(miB) * 1024 * 1024
		}
	}
}

// WithCachePolicy sets the initial cache policy (default AlwaysCache).
func WithCachePolicy(p CachePolicy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithDecoder replaces the default standard-library decoder.
func WithDecoder(d Decoder) Option {
	return func(m *Manager) {
		if d != nil {
			m.decoder = d
		}
	}
}

// WithTransport replaces the default HTTP transport. Useful for tests and for
// callers with their own download stack.
func WithTransport(t network.Transport) Option {
	return func(m *Manager) {
		if t != nil {
			m.transport = t
		}
	}
}

// WithUserAgent sets the User-Agent header sent by the default transport.
func WithUserAgent(ua string) Option {
	return func(m *Manager) {
		if ua != "" {
			m.userAgent = ua
		}
	}
}

// WithNotify installs the notification callbacks.
func WithNotify(n Notify) Option {
	return func(m *Manager) {
		m.notify = n
	}
}

// WithNetworkTimeout sets the per-download deadline enforced by the periodic
// sweep.
func WithNetworkTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.networkTimeout = d
	}
}

// WithSweepInterval sets how often stuck downloads are checked for timeout.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.sweepInterval = d
	}
}
