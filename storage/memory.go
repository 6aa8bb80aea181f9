package storage

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const memoryJanitorInterval = time.Minute

// Memory is an in-process Store backed by a TTL cache. Entries expire after
// the configured default TTL so abandoned flow state does not accumulate.
type Memory struct {
	c *gocache.Cache
}

var _ Store = (*Memory)(nil)

// NewMemory creates a Memory store. A defaultTTL of zero means entries never
// expire.
func NewMemory(defaultTTL time.Duration) *Memory {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	return &Memory{c: gocache.New(defaultTTL, memoryJanitorInterval)}
}

func (m *Memory) Set(key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.c.Set(key, cp, gocache.DefaultExpiration)
	return nil
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, true, nil
}

func (m *Memory) Delete(key string) error {
	m.c.Delete(key)
	return nil
}
