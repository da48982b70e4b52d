// Package cache is a best-effort read cache. A slow or failing backend is a miss, never an error.
package cache

import (
	"context"
	"encoding/hex"
	"log"
	"time"

	"github.com/zeebo/blake3"
)

// DefaultReadTimeout bounds how long Get waits for the backend.
const DefaultReadTimeout = time.Second

// Backend stores opaque values by key.
type Backend interface {
	// Get reports found=false for absent or expired keys.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Cache struct {
	backend     Backend
	readTimeout time.Duration
	ttl         time.Duration
}

func New(backend Backend, readTimeout, ttl time.Duration) *Cache {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Cache{backend: backend, readTimeout: readTimeout, ttl: ttl}
}

type result struct {
	value []byte
	found bool
	err   error
}

// Get returns the cached value or a miss. The backend read races the read timeout;
// when the timeout wins the read keeps running and its result is discarded.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	ch := make(chan result, 1)
	go func() {
		v, ok, err := c.backend.Get(ctx, key)
		ch <- result{value: v, found: ok, err: err}
	}()

	timer := time.NewTimer(c.readTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if r.err != nil {
			log.Printf("⚠️ cache read %s failed, treating as miss: %v", short(key), r.err)
			return nil, false
		}
		return r.value, r.found
	case <-timer.C:
		log.Printf("⚠️ cache read %s timed out after %s, treating as miss", short(key), c.readTimeout)
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// Set writes through to the backend. Failures are logged only.
func (c *Cache) Set(ctx context.Context, key string, value []byte) {
	if err := c.backend.Set(ctx, key, value, c.ttl); err != nil {
		log.Printf("⚠️ cache write %s failed: %v", short(key), err)
	}
}

func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.backend.Delete(ctx, key); err != nil {
		log.Printf("⚠️ cache delete %s failed: %v", short(key), err)
	}
}

// Key derives a fixed-length cache key from a namespace and parts.
func Key(namespace string, parts ...string) string {
	h := blake3.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return namespace + "/" + hex.EncodeToString(h.Sum(nil))
}

func short(key string) string {
	if len(key) > 24 {
		return key[:24]
	}
	return key
}
