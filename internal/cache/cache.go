// Package cache provides the key-value store shared by the caching
// decorator and the journey association cache.
package cache

import (
	"errors"
	"log"
	"time"

	"github.com/bluele/gcache"
)

type Store interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	// Add stores value only when key is absent and reports whether it did.
	Add(key string, value any, ttl time.Duration) bool
}

// LRU is a size-bounded in-process store with per-entry expiry.
type LRU struct {
	c gcache.Cache
}

func New(size int) *LRU {
	return &LRU{c: gcache.New(size).LRU().Build()}
}

// NewWithClock is New with an injectable clock, for expiry tests.
func NewWithClock(size int, clock gcache.Clock) *LRU {
	return &LRU{c: gcache.New(size).LRU().Clock(clock).Build()}
}

func (l *LRU) Get(key string) (any, bool) {
	v, err := l.c.Get(key)
	if err != nil {
		if !errors.Is(err, gcache.KeyNotFoundError) {
			log.Printf("cache get key=%s: %v", key, err)
		}
		return nil, false
	}
	return v, true
}

func (l *LRU) Set(key string, value any, ttl time.Duration) {
	if err := l.c.SetWithExpire(key, value, ttl); err != nil {
		log.Printf("cache set key=%s: %v", key, err)
	}
}

func (l *LRU) Add(key string, value any, ttl time.Duration) bool {
	if l.c.Has(key) {
		return false
	}
	l.Set(key, value, ttl)
	return true
}

func (l *LRU) Len() int { return l.c.Len(true) }
