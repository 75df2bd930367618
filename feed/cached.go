// File: feed/cached.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TTL cache in front of a slow telescope feed.

package feed

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/internal/logging"
)

const statusKey = "status"

// CachedFeed serves repeated reads within ttl from memory. Failures are
// never cached.
type CachedFeed struct {
	next  api.TelescopeFeed
	cache *gocache.Cache
	log   *zap.Logger
}

// NewCachedFeed wraps next with a ttl cache.
func NewCachedFeed(next api.TelescopeFeed, ttl time.Duration, log *zap.Logger) *CachedFeed {
	return &CachedFeed{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
		log:   logging.OrNop(log).Named(logging.CompFeed),
	}
}

// Read implements api.TelescopeFeed.
func (c *CachedFeed) Read(ctx context.Context) (api.TelescopeStatus, error) {
	if v, ok := c.cache.Get(statusKey); ok {
		if st, ok := v.(api.TelescopeStatus); ok {
			c.log.Debug("feed cache hit", zap.Time("read_at", st.ReadAt))
			return st, nil
		}
	}
	st, err := c.next.Read(ctx)
	if err != nil {
		return api.TelescopeStatus{}, unavailable("cached", err)
	}
	c.cache.SetDefault(statusKey, st)
	return st, nil
}

// Invalidate drops the cached status.
func (c *CachedFeed) Invalidate() { c.cache.Delete(statusKey) }
