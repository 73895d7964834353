package table

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"
)

// SchemaCache keeps decoded schemas keyed by the hash of their serialized
// form, so opening a table in every transaction does not decode it again.
// It is safe for concurrent use.
type SchemaCache struct {
	cache *ristretto.Cache[uint64, *TableSchema]
}

// NewSchemaCache returns a cache holding up to maxSchemas entries.
func NewSchemaCache(maxSchemas int64) (*SchemaCache, error) {
	if maxSchemas <= 0 {
		maxSchemas = 1024
	}
	c, err := ristretto.NewCache(&ristretto.Config[uint64, *TableSchema]{
		NumCounters: maxSchemas * 10,
		MaxCost:     maxSchemas,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &SchemaCache{cache: c}, nil
}

// Get decodes raw, or returns the schema decoded from the same bytes
// before. Returned schemas are shared and must not be modified.
func (c *SchemaCache) Get(raw []byte) (*TableSchema, error) {
	if c == nil {
		return ReadSchema(raw)
	}
	key := xxhash.Sum64(raw)
	if s, ok := c.cache.Get(key); ok {
		return s, nil
	}
	s, err := ReadSchema(raw)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, s, 1)
	return s, nil
}

// Wait blocks until pending Sets are applied.
func (c *SchemaCache) Wait() {
	c.cache.Wait()
}

// Close stops the cache.
func (c *SchemaCache) Close() {
	c.cache.Close()
}
