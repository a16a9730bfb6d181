package casan

import (
	"time"

	cache "github.com/patrickmn/go-cache"
)

// dedupEntry is a CON/NON datagram seen on a link, with the reply the
// gateway sent for it, if any.
type dedupEntry struct {
	reply []byte
}

// dedupStore remembers recently received CON/NON datagrams of one link,
// keyed by their raw bytes.
type dedupStore struct {
	seen *cache.Cache
	max  int
}

func newDedupStore() *dedupStore {
	return &dedupStore{
		seen: cache.New(cache.NoExpiration, 0),
		max:  DEDUP_MAX_ENTRIES,
	}
}

// Check reports whether raw was already seen. A new datagram is recorded
// for ttl; a zero ttl records nothing.
func (d *dedupStore) Check(raw []byte, ttl time.Duration) (*dedupEntry, bool) {
	key := string(raw)
	if v, ok := d.seen.Get(key); ok {
		return v.(*dedupEntry), true
	}
	if ttl <= 0 {
		return nil, false
	}

	if d.seen.ItemCount() >= d.max {
		d.seen.DeleteExpired()
		if d.seen.ItemCount() >= d.max {
			d.evictOldest()
		}
	}

	d.seen.Set(key, &dedupEntry{}, ttl)
	return nil, false
}

// MarkReplied attaches the reply sent for raw so that a duplicate gets it
// again.
func (d *dedupStore) MarkReplied(raw, reply []byte) {
	if v, ok := d.seen.Get(string(raw)); ok {
		v.(*dedupEntry).reply = reply
	}
}

func (d *dedupStore) Cleanup() {
	d.seen.DeleteExpired()
}

func (d *dedupStore) ItemCount() int {
	return d.seen.ItemCount()
}

func (d *dedupStore) evictOldest() {
	var (
		oldest string
		exp    int64
	)
	for k, it := range d.seen.Items() {
		if exp == 0 || it.Expiration < exp {
			oldest, exp = k, it.Expiration
		}
	}
	d.seen.Delete(oldest)
}
