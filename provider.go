package tilecache

// TileProvider is an authoritative override data source, e.g. an offline tile
// bundle or a database. While installed it supersedes the disk cache and the
// network entirely: a not-found answer yields the empty placeholder rather
// than a network fallback.
type TileProvider interface {
	GetTileData(url string) ([]byte, bool)
}
