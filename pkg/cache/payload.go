package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sw33tLie/emuchievements/pkg/achievements"
)

const (
	DefaultPayloadSize = 512
	DefaultPayloadTTL  = 30 * time.Minute
)

// PayloadCache keeps normalized achievement sets for the session. Entries
// older than the TTL are treated as absent and fetched again.
type PayloadCache struct {
	lru *expirable.LRU[int, *achievements.GameAchievementSet]
}

// NewPayloadCache creates a cache holding at most size sets for ttl each.
// A zero size or ttl falls back to the defaults.
func NewPayloadCache(size int, ttl time.Duration) *PayloadCache {
	if size <= 0 {
		size = DefaultPayloadSize
	}
	if ttl <= 0 {
		ttl = DefaultPayloadTTL
	}
	return &PayloadCache{lru: expirable.NewLRU[int, *achievements.GameAchievementSet](size, nil, ttl)}
}

func (c *PayloadCache) Get(appID int) (*achievements.GameAchievementSet, bool) {
	return c.lru.Get(appID)
}

func (c *PayloadCache) Add(appID int, set *achievements.GameAchievementSet) {
	c.lru.Add(appID, set)
}

func (c *PayloadCache) Remove(appID int) {
	c.lru.Remove(appID)
}

func (c *PayloadCache) Purge() {
	c.lru.Purge()
}

func (c *PayloadCache) Len() int {
	return c.lru.Len()
}
