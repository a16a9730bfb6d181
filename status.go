package casan

import (
	"time"
)

type LinkInfo struct {
	Name      string
	MTU       int
	Broadcast string
	Dedup     int
}

// Status is a snapshot of the engine for the admin pages.
type Status struct {
	Started       time.Time
	HelloID       int
	NextHello     time.Time
	Options       Options
	Links         []LinkInfo
	Slaves        []SlaveInfo
	Outstanding   int
	CachedReplies int
}

func (e *Engine) Status() Status {
	e.mx.Lock()
	defer e.mx.Unlock()

	st := Status{
		Started:       e.started,
		HelloID:       e.hid,
		NextHello:     e.nextHello,
		Options:       e.opts,
		Outstanding:   len(e.outstanding),
		CachedReplies: e.cache.ItemCount(),
	}
	for _, l := range e.links {
		st.Links = append(st.Links, LinkInfo{
			Name:      l.name(),
			MTU:       l.link.MTU(),
			Broadcast: l.link.Broadcast().String(),
			Dedup:     l.dedup.ItemCount(),
		})
	}
	for _, id := range e.order {
		st.Slaves = append(st.Slaves, e.slaves[id].info())
	}
	return st
}
