package casan

import (
	"sync"
	"time"

	"github.com/coalalib/casan/network"
)

type SlaveStatus int

const (
	SlaveInactive SlaveStatus = iota
	SlaveRunning
)

func (s SlaveStatus) String() string {
	if s == SlaveRunning {
		return "running"
	}
	return "inactive"
}

// SlaveConfig is the static description of an authorized slave. Zero TTL
// or MTU means the gateway default.
type SlaveConfig struct {
	ID  int
	TTL time.Duration
	MTU int
}

// Slave is a configured device and its association state. Fields are
// guarded by the engine mutex.
type Slave struct {
	mu *sync.Mutex

	id         int
	ttl        time.Duration
	defaultMTU int

	status    SlaveStatus
	link      *linkState
	addr      network.Address
	curMTU    int
	resources []*Resource
	deadline  time.Time

	// set by the last Discover, applied on Assoc-Answer
	discLink *linkState
	discAddr network.Address
	discMTU  int
	assoc    *exchange
}

func newSlave(mu *sync.Mutex, cfg SlaveConfig, defaultTTL time.Duration) *Slave {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Slave{mu: mu, id: cfg.ID, ttl: ttl, defaultMTU: cfg.MTU}
}

func (s *Slave) ID() int {
	return s.id
}

func (s *Slave) Status() SlaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Slave) CurMTU() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curMTU
}

// FindResource returns the announced resource whose path components are
// exactly path.
func (s *Slave) FindResource(path []string) *Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resources {
		if r.DoesMatchPath(path) {
			return r
		}
	}
	return nil
}

// Resources returns the announced resources.
func (s *Slave) Resources() []*Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Resource(nil), s.resources...)
}

func (s *Slave) running() bool {
	return s.status == SlaveRunning
}

func (s *Slave) isPeer(l *linkState, addr network.Address) bool {
	if s.running() && s.link == l && s.addr == addr {
		return true
	}
	return s.discLink == l && s.discAddr == addr
}

// reset forgets the association.
func (s *Slave) reset() {
	s.status = SlaveInactive
	s.link = nil
	s.addr = network.Address{}
	s.curMTU = 0
	s.resources = nil
	s.deadline = time.Time{}
}

// resetDiscover records the sender of a Discover and negotiates the MTU:
// the slave's configured MTU caps the link MTU, and the advertised MTU
// may lower it further.
func (s *Slave) resetDiscover(l *linkState, addr network.Address, advertised int) {
	l2mtu := l.link.MTU()
	defmtu := l2mtu
	if s.defaultMTU > 0 && s.defaultMTU <= l2mtu {
		defmtu = s.defaultMTU
	}

	mtu := defmtu
	if advertised > 0 && advertised <= defmtu {
		mtu = advertised
	}

	s.discLink = l
	s.discAddr = addr
	s.discMTU = mtu
}

// associate applies a parsed Assoc-Answer.
func (s *Slave) associate(resources []*Resource, now time.Time) {
	s.link = s.discLink
	s.addr = s.discAddr
	s.curMTU = s.discMTU
	s.resources = resources
	s.status = SlaveRunning
	s.deadline = now.Add(s.ttl)
}

func (s *Slave) expired(now time.Time) bool {
	return s.running() && !now.Before(s.deadline)
}

// lowerMTU applies a Size1 hint from the slave.
func (s *Slave) lowerMTU(size int) {
	if size > 0 && size < s.curMTU {
		s.curMTU = size
	}
}

// SlaveInfo is a snapshot of a slave for status pages.
type SlaveInfo struct {
	ID        int
	Status    SlaveStatus
	Link      string
	Addr      string
	MTU       int
	TTL       time.Duration
	Deadline  time.Time
	Resources []*Resource
}

func (s *Slave) info() SlaveInfo {
	info := SlaveInfo{
		ID:        s.id,
		Status:    s.status,
		MTU:       s.curMTU,
		TTL:       s.ttl,
		Deadline:  s.deadline,
		Resources: append([]*Resource(nil), s.resources...),
	}
	if s.link != nil {
		info.Link = s.link.link.Name()
		info.Addr = s.addr.String()
	}
	return info
}
