package casan

import (
	"fmt"
	"time"

	m "github.com/coalalib/casan/message"
	cache "github.com/patrickmn/go-cache"
)

type cacheEntry struct {
	request *m.CoAPMessage
	reply   *m.CoAPMessage
}

// responseCache keeps replies to requests sent to slaves, for as long as
// their Max-Age allows. Entries are keyed by slave and by the options
// taking part in cache matching.
type responseCache struct {
	storage *cache.Cache
}

// newResponseCache starts no janitor: the engine scheduler calls Cleanup.
func newResponseCache() *responseCache {
	return &responseCache{
		storage: cache.New(DEFAULT_MAX_AGE, 0),
	}
}

func cacheKey(sid int, req *m.CoAPMessage) string {
	return fmt.Sprintf("%d/%s", sid, m.CacheKey(req))
}

// Add stores reply for req. A Max-Age of 0 means the reply must not be
// cached; without Max-Age it lives DEFAULT_MAX_AGE.
func (c *responseCache) Add(sid int, req, reply *m.CoAPMessage) bool {
	if req == nil || reply == nil {
		return false
	}
	ttl := DEFAULT_MAX_AGE
	if age, ok := reply.GetMaxAge(); ok {
		if age <= 0 {
			return false
		}
		ttl = time.Duration(age) * time.Second
	}
	c.storage.Set(cacheKey(sid, req), &cacheEntry{request: req, reply: reply}, ttl)
	return true
}

func (c *responseCache) Get(sid int, req *m.CoAPMessage) *m.CoAPMessage {
	v, ok := c.storage.Get(cacheKey(sid, req))
	if !ok {
		return nil
	}
	e := v.(*cacheEntry)
	if !m.CacheMatch(e.request, req) {
		return nil
	}
	return e.reply
}

func (c *responseCache) Cleanup() {
	c.storage.DeleteExpired()
}

func (c *responseCache) ItemCount() int {
	return c.storage.ItemCount()
}
