package cache

import (
	"context"

	"github.com/AlibekovAA/user-directory/backend/internal/user/domain"
)

// Cache stores user snapshots by username. Implementations never fail the
// caller: persist and remove report true on degradation and find reports a
// miss.
type Cache interface {
	Persist(ctx context.Context, entry domain.CacheEntry) bool
	Find(ctx context.Context, username string) (domain.CacheEntry, bool)
	Remove(ctx context.Context, username string) bool
}

// Disabled is the cache used when caching is switched off.
type Disabled struct{}

func (Disabled) Persist(ctx context.Context, entry domain.CacheEntry) bool { return true }

func (Disabled) Find(ctx context.Context, username string) (domain.CacheEntry, bool) {
	return domain.CacheEntry{}, false
}

func (Disabled) Remove(ctx context.Context, username string) bool { return true }
