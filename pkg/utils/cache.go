package utils

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ResponseCache keeps the last good body per URL on disk so startup data can be
// served while the backend is unreachable.
type ResponseCache struct {
	db *badger.DB
}

type CachedBody struct {
	Body     []byte
	StoredAt time.Time
}

func OpenResponseCache(path string) (*ResponseCache, error) {
	opts := badger.DefaultOptions(path)
	// Decrease logging verbosity
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &ResponseCache{db: db}, nil
}

func (c *ResponseCache) Close() error {
	return c.db.Close()
}

// Put stores body under url. Values are an 8-byte big-endian unix-nano
// timestamp followed by the body.
func (c *ResponseCache) Put(url string, body []byte) error {
	return c.PutAt(url, body, time.Now())
}

func (c *ResponseCache) PutAt(url string, body []byte, at time.Time) error {
	val := make([]byte, 8+len(body))
	binary.BigEndian.PutUint64(val, uint64(at.UnixNano()))
	copy(val[8:], body)
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(url), val)
	})
}

// Get returns the cached body for url, or nil when nothing is stored.
func (c *ResponseCache) Get(url string) (*CachedBody, error) {
	var out *CachedBody
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(url))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(val) < 8 {
			return fmt.Errorf("cache entry for %s is truncated", url)
		}
		out = &CachedBody{
			Body:     val[8:],
			StoredAt: time.Unix(0, int64(binary.BigEndian.Uint64(val[:8]))),
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return out, err
}

// Keys lists every cached URL.
func (c *ResponseCache) Keys() ([]string, error) {
	var keys []string
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}
