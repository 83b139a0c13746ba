package cache

import (
	"fmt"

	"go.uber.org/zap"
)

// New creates a persistent byte cache based on the cache type.
func New(cacheType, cacheDir string, capacityMiB int, log *zap.Logger) (ByteCache, error) {
	switch cacheType {
	case "disk":
		log.Info("Using disk cache", zap.String("cache_dir", cacheDir), zap.Int("capacity_mib", capacityMiB))
		return NewDisk(cacheDir, int64(capacityMiB)*1024*1024, log)
	case "disabled":
		log.Info("Disk cache disabled")
		return NewNoop(), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: disk, disabled)", cacheType)
	}
}
