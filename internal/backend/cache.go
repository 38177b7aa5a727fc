package backend

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/MrWong99/typofix/pkg/types"
)

type cacheKey struct {
	backend string
	text    string
}

// Cached is a [Backend] decorator that remembers successful corrections. It
// reports the wrapped backend's ID and Status unchanged.
type Cached struct {
	Backend
	cache *lru.Cache[cacheKey, string]
}

var _ Backend = (*Cached)(nil)

// NewCached wraps b with an LRU of size entries. A size of zero or less
// disables caching and returns b itself.
func NewCached(b Backend, size int) (Backend, error) {
	if size <= 0 {
		return b, nil
	}
	c, err := lru.New[cacheKey, string](size)
	if err != nil {
		return nil, fmt.Errorf("backend: cache: %w", err)
	}
	return &Cached{Backend: b, cache: c}, nil
}

// Correct answers from the cache when possible and otherwise delegates.
// Failures are never cached.
func (c *Cached) Correct(ctx context.Context, req types.CorrectionRequest) (types.CorrectionResult, error) {
	key := cacheKey{backend: c.Backend.ID(), text: req.Text}
	if out, ok := c.cache.Get(key); ok {
		return types.CorrectionResult{CorrectedText: out, BackendID: key.backend}, nil
	}
	res, err := c.Backend.Correct(ctx, req)
	if err != nil {
		return res, err
	}
	if res.BackendID == "" {
		res.BackendID = key.backend
	}
	c.cache.Add(key, res.CorrectedText)
	return res, nil
}

// Len returns the number of cached corrections.
func (c *Cached) Len() int { return c.cache.Len() }

// Purge drops every cached correction. Served as DELETE /cache.
func (c *Cached) Purge() { c.cache.Purge() }
