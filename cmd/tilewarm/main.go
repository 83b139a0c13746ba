// Command tilewarm bulk-downloads tile URLs into the persistent disk cache
// so a map widget can later run offline. URLs are read from a file (or stdin),
// one per line.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tilecache"
	"tilecache/cache"
	"tilecache/internal/config"
	"tilecache/internal/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	urls, err := readURLs(cfg.URLFile)
	if err != nil {
		log.Fatal("Failed to read URL list", zap.String("file", cfg.URLFile), zap.Error(err))
	}
	if len(urls) == 0 {
		log.Warn("No URLs to warm")
		return
	}

	policy, ok := tilecache.ParseCachePolicy(cfg.CachePolicy)
	if !ok {
		log.Fatal("Unknown cache policy", zap.String("policy", cfg.CachePolicy))
	}

	var cached, failed atomic.Int64
	queueEmpty := make(chan struct{}, 1)

	mgr := tilecache.New(log,
		tilecache.WithCachePolicy(policy),
		tilecache.WithUserAgent(cfg.UserAgent),
		tilecache.WithNetworkTimeout(time.Duration(cfg.TimeoutSec)*time.Second),
		tilecache.WithNotify(tilecache.Notify{
			ImageCached: func(url string) {
				cached.Add(1)
				log.Debug("Tile cached", zap.String("url", url))
			},
			DownloadFailed: func(url string, err error) {
				failed.Add(1)
				log.Warn("Tile download failed", zap.String("url", url), zap.Error(err))
			},
			QueueEmpty: func() {
				select {
				case queueEmpty <- struct{}{}:
				default:
				}
			},
		}),
	)
	defer mgr.Close()

	if cfg.ProxyURL != "" {
		mgr.SetProxy(cfg.ProxyURL, cfg.ProxyUser, cfg.ProxyPassword)
	}

	store, err := cache.New(cfg.CacheType, cfg.CacheDir, cfg.CacheCapacityMiB, log)
	if err != nil {
		log.Fatal("Failed to configure persistent cache", zap.Error(err))
	}
	mgr.SetDiskCache(store)

	log.Info("Warming tile cache",
		zap.Int("urls", len(urls)),
		zap.String("cache_dir", mgr.DiskCacheDir()),
		zap.Stringer("policy", policy),
		zap.Int("concurrency", cfg.Concurrency),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var group errgroup.Group
	group.SetLimit(cfg.Concurrency)
	for _, url := range urls {
		url := url
		group.Go(func() error {
			if mgr.CacheToDisk(url) {
				log.Debug("Tile already local", zap.String("url", url))
			}
			return nil
		})
	}
	_ = group.Wait()

	// All requests submitted; wait for the download queue to drain.
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for mgr.DownloadQueueSize() > 0 {
		select {
		case <-queueEmpty:
		case <-ticker.C:
		case <-quit:
			log.Warn("Interrupted, aborting downloads")
			mgr.AbortLoading()
			os.Exit(1)
		}
	}

	log.Info("Warmup finished",
		zap.Int64("cached", cached.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Int("urls", len(urls)),
	)
	if failed.Load() > 0 {
		os.Exit(1)
	}
}

// readURLs loads one URL per line; blank lines and #-comments are skipped.
// "-" reads from stdin.
func readURLs(path string) ([]string, error) {
	var in *os.File
	if path == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}

	var urls []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
