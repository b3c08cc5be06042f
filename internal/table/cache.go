package table

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// readCache remembers the latest block-resident value of recently read keys.
// Keys present in the memtable are never cached. A nil cache is disabled.
type readCache struct {
	entries *lru.Cache[string, []byte]
}

func newReadCache(size int) (*readCache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &readCache{entries: entries}, nil
}

func (c *readCache) get(key []byte) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(string(key))
}

func (c *readCache) add(key, value []byte) {
	if c == nil {
		return
	}
	c.entries.Add(string(key), value)
}

func (c *readCache) remove(key []byte) {
	if c == nil {
		return
	}
	c.entries.Remove(string(key))
}

func (c *readCache) purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

func (c *readCache) len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
