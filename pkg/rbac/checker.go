package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/plantops/pkg/auth"
)

// PermissionSource looks up one permission matrix cell for a caller
type PermissionSource interface {
	GetAreaPermission(ctx context.Context, objectID, area string) (auth.AreaPermission, error)
}

type cachedPermission struct {
	perm  auth.AreaPermission
	found bool
}

// CachingChecker memoizes permission lookups per (object-id, area).
// Missing rows are cached too; other errors are not.
type CachingChecker struct {
	source PermissionSource
	cache  *expirable.LRU[string, cachedPermission]
}

// NewCachingChecker wraps source with a bounded TTL cache
func NewCachingChecker(source PermissionSource, size int, ttl time.Duration) *CachingChecker {
	if size <= 0 {
		size = 1024
	}
	return &CachingChecker{
		source: source,
		cache:  expirable.NewLRU[string, cachedPermission](size, nil, ttl),
	}
}

// GetAreaPermission implements PermissionSource
func (c *CachingChecker) GetAreaPermission(ctx context.Context, objectID, area string) (auth.AreaPermission, error) {
	key := objectID + "|" + area
	if entry, ok := c.cache.Get(key); ok {
		if !entry.found {
			return auth.AreaPermission{}, auth.ErrNoPermissionEntry
		}
		return entry.perm, nil
	}

	perm, err := c.source.GetAreaPermission(ctx, objectID, area)
	switch {
	case err == nil:
		c.cache.Add(key, cachedPermission{perm: perm, found: true})
	case errors.Is(err, auth.ErrNoPermissionEntry):
		c.cache.Add(key, cachedPermission{found: false})
	}
	return perm, err
}

// Invalidate drops every cached row; call after the matrix changes
func (c *CachingChecker) Invalidate() {
	c.cache.Purge()
}
