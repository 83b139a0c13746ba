package cache

import "image"

// ImageCache stores decoded tile images keyed by tile hash.
type ImageCache interface {
	Get(key string) (image.Image, bool)
	Set(key string, img image.Image, cost int64)
	Clear()
}

// ByteCache stores raw tile payloads keyed by resource URL.
type ByteCache interface {
	Get(url string) ([]byte, bool)
	Set(url string, data []byte)
	Has(url string) bool // Check if a payload exists without reading it (lightweight check)
	Clear()
}

// Interface compliance.
var (
	_ ImageCache = (*Memory)(nil)
	_ ByteCache  = (*Disk)(nil)
	_ ByteCache  = (*Noop)(nil)
)
