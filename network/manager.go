// Package network coordinates tile downloads: it deduplicates in-flight
// requests per URL, tracks queue depth, writes successful responses to an
// attached persistent cache and reports every terminal state exactly once.
package network

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultSweepInterval = 5 * time.Second
)

// Decoder turns a downloaded payload into a pixel image.
type Decoder interface {
	Decode(data []byte) (image.Image, error)
}

// ByteCache is the persistent store successful downloads are written into.
type ByteCache interface {
	Set(url string, data []byte)
}

// Events carries the coordinator's notification callbacks. Nil callbacks are
// skipped. Terminal-state callbacks (Downloaded, Cached, Failed) and the
// queue callbacks that accompany them are invoked from a single dispatch
// goroutine; QueueChanged may additionally fire from the goroutine that
// submitted or aborted a request.
type Events struct {
	QueueChanged func(size int)
	QueueEmpty   func()
	Downloaded   func(url string, img image.Image)
	Cached       func(url string)
	Failed       func(url string, err error)
}

// Config configures a download Manager.
type Config struct {
	Transport     Transport
	Decoder       Decoder
	Events        Events
	Timeout       time.Duration // per-request deadline enforced by the sweep
	SweepInterval time.Duration
}

type inflight struct {
	id        string
	url       string
	cacheOnly bool
	deadline  time.Time
	cancel    context.CancelFunc
}

type result struct {
	req  *inflight
	data []byte
	err  error
}

// Manager tracks in-flight tile downloads keyed by URL. At most one transfer
// per URL is active at a time; submissions for a pending URL observe the
// existing transfer.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	requests map[string]*inflight

	cacheMu sync.Mutex
	cache   ByteCache

	results chan result
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a download manager and starts its dispatch and sweep loops.
// Call Close to release them.
func New(cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		logger:   log,
		requests: make(map[string]*inflight),
		results:  make(chan result),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go m.run()
	go m.sweep()

	return m
}

// Close aborts all in-flight downloads and stops the manager's goroutines.
func (m *Manager) Close() {
	m.Abort()
	m.cancel()
	<-m.done
}

// SetCache attaches the persistent store that successful responses are
// written into. Passing nil detaches it (network-only operation).
func (m *Manager) SetCache(c ByteCache) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	m.cache = c
}

// Download requests url. If a transfer for the same URL is already in flight
// the call is a no-op: the caller observes the pending transfer's outcome.
// With cacheOnly set, the response is only written to the attached cache and
// reported via Cached instead of Downloaded.
func (m *Manager) Download(url string, cacheOnly bool) {
	m.mu.Lock()
	if _, ok := m.requests[url]; ok {
		m.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(m.ctx)
	req := &inflight{
		id:        uuid.New().String(),
		url:       url,
		cacheOnly: cacheOnly,
		deadline:  time.Now().Add(m.cfg.Timeout),
		cancel:    cancel,
	}
	m.requests[url] = req
	size := len(m.requests)
	m.mu.Unlock()

	m.logger.Debug("Tile download queued",
		zap.String("request_id", req.id),
		zap.String("url", url),
		zap.Bool("cache_only", cacheOnly),
		zap.Int("queue_size", size),
	)

	go m.fetch(ctx, req)

	m.emitQueueChanged(size)
}

// Downloading reports whether url has a transfer in flight.
func (m *Manager) Downloading(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.requests[url]
	return ok
}

// QueueSize returns the number of in-flight downloads.
func (m *Manager) QueueSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

// Abort cancels every in-flight download and clears the queue. Cancelled
// requests produce no Downloaded/Cached/Failed notification.
func (m *Manager) Abort() {
	m.mu.Lock()
	n := len(m.requests)
	for url, req := range m.requests {
		req.cancel()
		delete(m.requests, url)
	}
	m.mu.Unlock()

	if n == 0 {
		return
	}

	m.logger.Debug("Aborted downloads", zap.Int("count", n))
	m.emitQueueChanged(0)
	m.emitQueueEmpty()
}

func (m *Manager) fetch(ctx context.Context, req *inflight) {
	data, err := m.cfg.Transport.Fetch(ctx, req.url)

	select {
	case m.results <- result{req: req, data: data, err: err}:
	case <-m.ctx.Done():
	}
}

func (m *Manager) run() {
	defer close(m.done)
	for {
		select {
		case res := <-m.results:
			m.finish(res)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) finish(res result) {
	m.mu.Lock()
	cur, ok := m.requests[res.req.url]
	if ok && cur == res.req {
		delete(m.requests, res.req.url)
	} else {
		ok = false
	}
	size := len(m.requests)
	m.mu.Unlock()

	if !ok {
		// Aborted or timed out before the response was dispatched.
		m.logger.Debug("Discarding response for aborted request",
			zap.String("request_id", res.req.id),
			zap.String("url", res.req.url),
		)
		return
	}

	switch {
	case res.err != nil:
		if errors.Is(res.err, context.Canceled) {
			// Cancellation is control flow, not a failure.
			break
		}
		m.logger.Warn("Tile download failed",
			zap.String("request_id", res.req.id),
			zap.String("url", res.req.url),
			zap.Error(res.err),
		)
		if m.cfg.Events.Failed != nil {
			m.cfg.Events.Failed(res.req.url, res.err)
		}

	case res.req.cacheOnly:
		m.storeToCache(res.req.url, res.data)
		if m.cfg.Events.Cached != nil {
			m.cfg.Events.Cached(res.req.url)
		}

	default:
		m.storeToCache(res.req.url, res.data)
		var img image.Image
		if m.cfg.Decoder != nil {
			decoded, err := m.cfg.Decoder.Decode(res.data)
			if err != nil {
				m.logger.Warn("Tile decode failed",
					zap.String("request_id", res.req.id),
					zap.String("url", res.req.url),
					zap.Int("payload_bytes", len(res.data)),
					zap.Error(err),
				)
			} else {
				img = decoded
			}
		}
		if m.cfg.Events.Downloaded != nil {
			m.cfg.Events.Downloaded(res.req.url, img)
		}
	}

	m.emitQueueChanged(size)
	if size == 0 {
		m.emitQueueEmpty()
	}
}

func (m *Manager) storeToCache(url string, data []byte) {
	m.cacheMu.Lock()
	c := m.cache
	m.cacheMu.Unlock()

	if c != nil {
		c.Set(url, data)
	}
}

// sweep periodically aborts requests stuck past their deadline so the queue
// counter cannot wedge on a hung transfer.
func (m *Manager) sweep() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.abortExpired()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) abortExpired() {
	now := time.Now()

	m.mu.Lock()
	expired := 0
	for url, req := range m.requests {
		if now.After(req.deadline) {
			m.logger.Debug("Aborting timed out request",
				zap.String("request_id", req.id),
				zap.String("url", url),
			)
			req.cancel()
			delete(m.requests, url)
			expired++
		}
	}
	size := len(m.requests)
	m.mu.Unlock()

	if expired == 0 {
		return
	}

	m.emitQueueChanged(size)
	if size == 0 {
		m.emitQueueEmpty()
	}
}

func (m *Manager) emitQueueChanged(size int) {
	if m.cfg.Events.QueueChanged != nil {
		m.cfg.Events.QueueChanged(size)
	}
}

func (m *Manager) emitQueueEmpty() {
	if m.cfg.Events.QueueEmpty != nil {
		m.cfg.Events.QueueEmpty()
	}
}
