package cache

// Noop is a ByteCache that stores nothing. It stands in for the persistent
// tier when disk caching is disabled.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (c *Noop) Get(url string) ([]byte, bool) {
	return nil, false
}

func (c *Noop) Set(url string, data []byte) {
}

func (c *Noop) Has(url string) bool {
	return false
}

func (c *Noop) Clear() {
}
