package catalog

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"musicroom/internal/sequence"
)

// CachedSource memoises a Source whose contents never change, such as the
// album catalog. Concurrent misses for the same id share one load.
//
// Do not wrap playlist or queue sources: their edits must be visible on the
// next request.
type CachedSource struct {
	next  Source
	cache *lru.Cache[string, sequence.Sequence]
	group singleflight.Group
}

func NewCachedSource(next Source, size int) (*CachedSource, error) {
	cache, err := lru.New[string, sequence.Sequence](size)
	if err != nil {
		return nil, fmt.Errorf("catalog: create cache: %w", err)
	}
	return &CachedSource{next: next, cache: cache}, nil
}

func (c *CachedSource) Tracks(ctx context.Context, id string) (sequence.Sequence, error) {
	if seq, ok := c.cache.Get(id); ok {
		return seq.Clone(), nil
	}
	v, err, _ := c.group.Do(id, func() (any, error) {
		if seq, ok := c.cache.Get(id); ok {
			return seq, nil
		}
		seq, err := c.next.Tracks(ctx, id)
		if err != nil {
			return nil, err
		}
		seq = seq.Clone()
		c.cache.Add(id, seq)
		return seq, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(sequence.Sequence).Clone(), nil
}

// Purge drops every cached entry.
func (c *CachedSource) Purge() {
	c.cache.Purge()
}
