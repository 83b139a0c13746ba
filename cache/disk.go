package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

const shardPrefixLen = 2

// Disk implements a persistent byte store for tile payloads.
// Structure: {dir}/{hh}/{hash} where hash is the xxhash hex of the URL,
// sharded by its first two characters. Keys depend only on the URL, so
// entries written in one session are found in the next.
type Disk struct {
	mu       sync.RWMutex
	dir      string
	capacity int64
	logger   *zap.Logger
}

// NewDisk creates a disk cache rooted at dir, bounded to capacity bytes.
// A capacity <= 0 disables pruning. The directory is created if absent.
func NewDisk(dir string, capacity int64, log *zap.Logger) (*Disk, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Disk{
		dir:      dir,
		capacity: capacity,
		logger:   log,
	}, nil
}

// Dir returns the cache directory.
func (c *Disk) Dir() string {
	return c.dir
}

func (c *Disk) path(url string) string {
	sum := fmt.Sprintf("%016x", xxhash.Sum64String(url))
	return filepath.Join(c.dir, sum[:shardPrefixLen], sum)
}

func (c *Disk) Get(url string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := os.ReadFile(c.path(url))
	if err != nil {
		return nil, false
	}

	return data, true
}

func (c *Disk) Has(url string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, err := os.Stat(c.path(url))
	return err == nil
}

func (c *Disk) Set(url string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	filePath := c.path(url)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		c.logger.Warn("Failed to create cache shard directory", zap.Error(err))
		return
	}

	// Write atomically
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		c.logger.Warn("Failed to write cache entry", zap.String("url", url), zap.Error(err))
		return
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		c.logger.Warn("Failed to commit cache entry", zap.String("url", url), zap.Error(err))
		return
	}

	c.pruneLocked()
}

func (c *Disk) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.RemoveAll(c.dir); err != nil {
		c.logger.Warn("Failed to clear disk cache", zap.Error(err))
		return
	}

	os.MkdirAll(c.dir, 0755)
}

type diskEntry struct {
	path    string
	size    int64
	modTime time.Time
}

// pruneLocked deletes the oldest entries until the total size fits the
// configured capacity again.
func (c *Disk) pruneLocked() {
	if c.capacity <= 0 {
		return
	}

	entries := make([]diskEntry, 0)
	var total int64

	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		entries = append(entries, diskEntry{
			path:    path,
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		c.logger.Warn("Disk cache prune scan failed", zap.Error(err))
		return
	}
	if total <= c.capacity {
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].path < entries[j].path
		}
		return entries[i].modTime.Before(entries[j].modTime)
	})

	for _, entry := range entries {
		if total <= c.capacity {
			break
		}
		if err := os.Remove(entry.path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			c.logger.Warn("Disk cache prune failed", zap.String("path", entry.path), zap.Error(err))
			return
		}
		total -= entry.size
	}
}
