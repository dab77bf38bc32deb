package storage

import (
	"github.com/drpcorg/objgraph"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// Cached keeps recently used records of another backend in memory.
// Stores write through.
type Cached struct {
	inner objgraph.Backend
	cache *lru.Cache[key, []byte]
}

func NewCached(inner objgraph.Backend, size int) (*Cached, error) {
	cache, err := lru.New[key, []byte](size)
	if err != nil {
		return nil, errors.Wrap(err, "record cache")
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Store(id objgraph.ObjID, storage objgraph.Storage, data []byte) error {
	if err := c.inner.Store(id, storage, data); err != nil {
		c.cache.Remove(key{id, storage})
		return err
	}
	c.cache.Add(key{id, storage}, append([]byte(nil), data...))
	return nil
}

func (c *Cached) Load(id objgraph.ObjID, storage objgraph.Storage) ([]byte, error) {
	if data, ok := c.cache.Get(key{id, storage}); ok {
		return append([]byte(nil), data...), nil
	}
	data, err := c.inner.Load(id, storage)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key{id, storage}, append([]byte(nil), data...))
	return data, nil
}

func (c *Cached) Enumerate(id objgraph.ObjID) ([]objgraph.Storage, error) {
	return c.inner.Enumerate(id)
}

// Purge drops every cached record.
func (c *Cached) Purge() {
	c.cache.Purge()
}

func (c *Cached) Len() int {
	return c.cache.Len()
}
