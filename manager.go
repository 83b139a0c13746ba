// Package tilecache implements the tile acquisition core of a map widget:
// given a tile URL it returns pixel data immediately, sourcing it from the
// in-memory cache, an optional tile provider, the persistent disk cache or a
// deduplicated network download, according to the active cache policy.
package tilecache

import (
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tilecache/cache"
	"tilecache/network"
)

const (
	DefaultTileSizePx     = 256
	DefaultProjectionEPSG = 3857
	DefaultMemoryCacheMiB = 30
	defaultUserAgent      = "tilecache"
)

// Notify carries the manager's notification callbacks; any of them may be
// nil. Each download reaches exactly one terminal state: ImageUpdated (or
// silence, for prefetches), ImageCached, or DownloadFailed.
type Notify struct {
	ImageUpdated   func(url string)
	ImageCached    func(url string)
	DownloadFailed func(url string, err error)
	QueueChanged   func(size int)
	QueueEmpty     func()
}

// Manager is the tile resolution engine. All methods are safe for concurrent
// use; GetImage never blocks on disk or network I/O.
type Manager struct {
	logger *zap.Logger

	// construction-time settings consumed by New
	memoryCapacity int64
	userAgent      string
	networkTimeout time.Duration
	sweepInterval  time.Duration
	transport      network.Transport

	decoder Decoder
	memory  *cache.Memory
	network *network.Manager
	notify  Notify

	stateMu    sync.Mutex
	tileSizePx int
	epsg       int
	loadingImg image.Image
	emptyImg   image.Image

	policyMu sync.Mutex
	policy   CachePolicy

	diskMu  sync.Mutex
	disk    cache.ByteCache
	diskDir string

	providerMu sync.Mutex
	provider   TileProvider

	prefetchMu sync.Mutex
	prefetch   map[string]struct{}

	diskGroup singleflight.Group
}

// New creates a tile manager. The zero configuration resolves 256 px web
// mercator tiles with a 30 MiB memory cache under the AlwaysCache policy,
// matching an offline-first widget. Call Close to release the download
// coordinator.
func New(log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}

	m := &Manager{
		logger:         log,
		tileSizePx:     DefaultTileSizePx,
		epsg:           DefaultProjectionEPSG,
		memoryCapacity: DefaultMemoryCacheMiB * 1024 * 1024,
		userAgent:      defaultUserAgent,
		policy:         AlwaysCache,
		decoder:        StdDecoder{},
		disk:           cache.NewNoop(),
		prefetch:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(m)
	}

	m.memory = cache.NewMemory(m.memoryCapacity)
	m.loadingImg = newLoadingImage(m.tileSizePx)
	m.emptyImg = newEmptyImage(m.tileSizePx)

	if m.transport == nil {
		m.transport = network.NewHTTPTransport(m.userAgent, log)
	}

	m.network = network.New(network.Config{
		Transport:     m.transport,
		Decoder:       m.decoder,
		Timeout:       m.networkTimeout,
		SweepInterval: m.sweepInterval,
		Events: network.Events{
			Downloaded:   m.handleDownloaded,
			Cached:       m.handleCached,
			Failed:       m.handleFailed,
			QueueChanged: m.notify.QueueChanged,
			QueueEmpty:   m.notify.QueueEmpty,
		},
	}, log)
	m.attachDiskCache()

	return m
}

// Close aborts outstanding downloads and stops the download coordinator.
func (m *Manager) Close() {
	m.network.Close()
}

// TileSize returns the tile edge length in pixels.
func (m *Manager) TileSize() int {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	return m.tileSizePx
}

// SetTileSize changes the tile size and regenerates both placeholders.
// Entries cached under the previous size stay addressable only under their
// old keys.
func (m *Manager) SetTileSize(px int) {
	if px <= 0 {
		return
	}

	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	m.tileSizePx = px
	m.loadingImg = newLoadingImage(px)
	m.emptyImg = newEmptyImage(px)
}

// SetLoadingImage replaces the placeholder shown while a tile downloads.
func (m *Manager) SetLoadingImage(img image.Image) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if img != nil {
		m.loadingImg = img
	}
}

// SetEmptyImage replaces the placeholder shown for tiles with no data.
func (m *Manager) SetEmptyImage(img image.Image) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if img != nil {
		m.emptyImg = img
	}
}

// SetMemoryCacheCapacity resizes the decoded-image cache.
func (m *Manager) SetMemoryCacheCapacity(miB int) {
	m.memory.SetCapacity(int64(miB) * 1024 * 1024)
}

// SetProxy configures the default transport's proxy. Credentials are supplied
// when the proxy challenges. A no-op when a custom transport is installed.
func (m *Manager) SetProxy(proxyURL, username, password string) {
	ht, ok := m.transport.(*network.HTTPTransport)
	if !ok {
		m.logger.Debug("SetProxy ignored: custom transport installed")
		return
	}
	ht.SetProxy(network.Proxy{URL: proxyURL, Username: username, Password: password})
}

// Policy returns the active cache policy.
func (m *Manager) Policy() CachePolicy {
	m.policyMu.Lock()
	defer m.policyMu.Unlock()

	return m.policy
}

// SetCachePolicy switches the cache policy. AlwaysCache aborts outstanding
// downloads (they could never be served); AlwaysNetwork detaches the disk
// cache from the download coordinator, every other policy attaches it.
func (m *Manager) SetCachePolicy(p CachePolicy) {
	m.policyMu.Lock()
	m.policy = p
	m.policyMu.Unlock()

	m.logger.Info("Cache policy changed", zap.Stringer("policy", p))

	if p == AlwaysCache {
		m.AbortLoading()
	}
	m.attachDiskCache()
}

// ConfigureDiskCache enables the persistent tile cache in dir, bounded to
// capacityMiB. Failure to create the directory leaves the disk tier disabled
// and the manager degrades to network-only behavior.
func (m *Manager) ConfigureDiskCache(dir string, capacityMiB int) error {
	disk, err := cache.NewDisk(dir, int64(capacityMiB)*1024*1024, m.logger)
	if err != nil {
		m.logger.Warn("Unable to enable persistent cache", zap.String("dir", dir), zap.Error(err))
		return fmt.Errorf("configure disk cache: %w", err)
	}

	m.logger.Info("Persistent cache enabled", zap.String("dir", dir), zap.Int("capacity_mib", capacityMiB))
	m.SetDiskCache(disk)
	return nil
}

// SetDiskCache installs store as the persistent tier. A nil store disables
// persistence; the manager degrades to network-only behavior.
func (m *Manager) SetDiskCache(store cache.ByteCache) {
	if store == nil {
		store = cache.NewNoop()
	}

	m.diskMu.Lock()
	m.disk = store
	if d, ok := store.(*cache.Disk); ok {
		m.diskDir = d.Dir()
	} else {
		m.diskDir = ""
	}
	m.diskMu.Unlock()

	m.attachDiskCache()
}

// DiskCacheDir returns the persistent cache directory, or "" when the
// installed store is not disk backed.
func (m *Manager) DiskCacheDir() string {
	m.diskMu.Lock()
	defer m.diskMu.Unlock()

	return m.diskDir
}

// ClearDiskCache removes all tiles stored in the persistent cache.
func (m *Manager) ClearDiskCache() {
	m.diskMu.Lock()
	disk := m.disk
	m.diskMu.Unlock()

	disk.Clear()
}

// attachDiskCache points the download coordinator at the persistent store, or
// detaches it under AlwaysNetwork.
func (m *Manager) attachDiskCache() {
	m.diskMu.Lock()
	disk := m.disk
	m.diskMu.Unlock()

	if m.Policy() == AlwaysNetwork {
		m.network.SetCache(nil)
		return
	}
	m.network.SetCache(disk)
}

// SetTileProvider installs (or removes, with nil) the authoritative tile
// source and aborts queued downloads. Swapping does not stop a redraw already
// in progress: requests issued under the previous provider may still complete
// and land in the memory cache. Known, accepted weakness.
func (m *Manager) SetTileProvider(p TileProvider) {
	// Abort outside the provider lock: the queue callbacks it fires may
	// re-enter the manager.
	m.AbortLoading()

	m.providerMu.Lock()
	m.provider = p
	m.providerMu.Unlock()
}

// AbortLoading cancels all in-flight downloads and forgets pending
// prefetches. Useful when the viewport or zoom changes and queued tiles are
// worthless.
func (m *Manager) AbortLoading() {
	m.network.Abort()

	m.prefetchMu.Lock()
	m.prefetch = make(map[string]struct{})
	m.prefetchMu.Unlock()
}

// DownloadQueueSize returns the number of tiles pending download.
func (m *Manager) DownloadQueueSize() int {
	return m.network.QueueSize()
}

func (m *Manager) key(url string) string {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	return tileKey(url, m.epsg, m.tileSizePx)
}

func (m *Manager) loadingImage() image.Image {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	return m.loadingImg
}

func (m *Manager) emptyImage() image.Image {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	return m.emptyImg
}

// GetImage resolves the tile for url. It returns immediately: a cached or
// provider/disk-backed image when available, otherwise the loading
// placeholder while the download coordinator fetches the tile in the
// background (the completion arrives via Notify.ImageUpdated).
func (m *Manager) GetImage(url string) image.Image {
	if img, ok := m.memory.Get(m.key(url)); ok {
		return img
	}
	return m.getImageInternal(url)
}

func (m *Manager) getImageInternal(url string) image.Image {
	m.providerMu.Lock()
	if m.provider != nil {
		data, found := m.provider.GetTileData(url)
		m.providerMu.Unlock()
		if !found {
			// The provider is authoritative: no fallback to disk or network.
			return m.emptyImage()
		}
		return m.decodeAndCache(url, data)
	}
	m.providerMu.Unlock()

	policy := m.Policy()
	if policy == AlwaysCache || policy == PreferCache {
		if data, ok := m.diskData(url); ok {
			return m.resolveFromDisk(url, data)
		}
		// In offline mode only the caches are consulted, never the network.
		if policy == AlwaysCache {
			return m.emptyImage()
		}
	}

	m.network.Download(url, false)
	return m.loadingImage()
}

// resolveFromDisk decodes a disk hit. Concurrent resolutions of the same tile
// share one decode+insert via singleflight instead of decoding per caller.
func (m *Manager) resolveFromDisk(url string, data []byte) image.Image {
	key := m.key(url)
	v, _, _ := m.diskGroup.Do(key, func() (any, error) {
		if img, ok := m.memory.Get(key); ok {
			return img, nil
		}
		return m.decodeAndCache(url, data), nil
	})
	img, _ := v.(image.Image)
	return img
}

// decodeAndCache decodes a payload obtained from the provider or the disk
// cache, inserts it into the memory cache and unmarks any pending prefetch.
// A decode failure is silent: the empty placeholder is returned.
func (m *Manager) decodeAndCache(url string, data []byte) image.Image {
	img, err := m.decoder.Decode(data)
	if err != nil {
		m.logger.Debug("Tile decode failed", zap.String("url", url), zap.Error(err))
		m.clearPrefetch(url)
		return m.emptyImage()
	}

	m.insertToMemory(url, img)
	m.clearPrefetch(url)
	return img
}

func (m *Manager) insertToMemory(url string, img image.Image) {
	if img == nil {
		return
	}
	bounds := img.Bounds()
	cost := int64(bounds.Dx()) * int64(bounds.Dy()) * 4
	m.memory.Set(m.key(url), img, cost)
}

// clearPrefetch removes url from the prefetch set, reporting whether it was
// marked.
func (m *Manager) clearPrefetch(url string) bool {
	m.prefetchMu.Lock()
	defer m.prefetchMu.Unlock()

	if _, ok := m.prefetch[url]; ok {
		delete(m.prefetch, url)
		return true
	}
	return false
}

// Prefetch resolves url to warm the caches for a tile that is off-screen but
// likely needed soon. Its completion does not emit ImageUpdated.
func (m *Manager) Prefetch(url string) {
	if _, ok := m.memory.Get(m.key(url)); ok {
		return
	}

	m.prefetchMu.Lock()
	m.prefetch[url] = struct{}{}
	m.prefetchMu.Unlock()

	m.getImageInternal(url)
}

// RawFromDiskCache returns the stored payload for url: the provider's answer
// when one is installed, otherwise the disk cache entry. Empty when absent.
func (m *Manager) RawFromDiskCache(url string) []byte {
	m.providerMu.Lock()
	if m.provider != nil {
		data, _ := m.provider.GetTileData(url)
		m.providerMu.Unlock()
		return data
	}
	m.providerMu.Unlock()

	if data, ok := m.diskData(url); ok {
		return data
	}
	return nil
}

// CacheToDisk downloads url straight into the disk cache for later offline
// use, without touching the memory cache or triggering redraws. It returns
// true when the tile is already locally available (emitting ImageCached) and
// false when a network request was spawned; the caller then waits for the
// ImageCached notification.
func (m *Manager) CacheToDisk(url string) bool {
	policy := m.Policy()
	if policy == AlwaysCache || policy == PreferCache {
		if len(m.RawFromDiskCache(url)) > 0 {
			m.handleCached(url)
			return true
		}
		// Offline mode: nothing to download.
		if policy == AlwaysCache {
			return true
		}
	}

	m.network.Download(url, true)
	return false
}

func (m *Manager) diskData(url string) ([]byte, bool) {
	m.diskMu.Lock()
	disk := m.disk
	m.diskMu.Unlock()

	return disk.Get(url)
}

// handleDownloaded receives display downloads from the coordinator. Prefetch
// completions are absorbed silently; everything else notifies ImageUpdated.
func (m *Manager) handleDownloaded(url string, img image.Image) {
	m.insertToMemory(url, img)

	if m.clearPrefetch(url) {
		return
	}
	if m.notify.ImageUpdated != nil {
		m.notify.ImageUpdated(url)
	}
}

func (m *Manager) handleCached(url string) {
	if m.notify.ImageCached != nil {
		m.notify.ImageCached(url)
	}
}

func (m *Manager) handleFailed(url string, err error) {
	if m.notify.DownloadFailed != nil {
		m.notify.DownloadFailed(url, err)
	}
}
