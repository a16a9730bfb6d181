package casan

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	cerr "github.com/coalalib/casan/errors"
	m "github.com/coalalib/casan/message"
	"github.com/coalalib/casan/network"
	log "github.com/ndmsystems/logger"
	"golang.org/x/sync/errgroup"
)

// Options are the gateway timers. Zero values take the defaults.
type Options struct {
	FirstHello    time.Duration
	HelloInterval time.Duration
	SlaveTTL      time.Duration
	CacheCleanup  time.Duration
	AckTimeout    time.Duration
	// Namespace prefixes resource paths in ResourceListText.
	Namespace string
}

func (o Options) withDefaults() Options {
	if o.FirstHello <= 0 {
		o.FirstHello = DEFAULT_FIRST_HELLO
	}
	if o.HelloInterval <= 0 {
		o.HelloInterval = DEFAULT_HELLO_INTERVAL
	}
	if o.SlaveTTL <= 0 {
		o.SlaveTTL = DEFAULT_SLAVE_TTL
	}
	if o.CacheCleanup <= 0 {
		o.CacheCleanup = DEFAULT_CACHE_CLEANUP
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = ACK_TIMEOUT
	}
	if o.Namespace == "" {
		o.Namespace = DEFAULT_CASAN_NAMESPACE
	}
	return o
}

type linkState struct {
	link  network.Link
	dedup *dedupStore
}

func (l *linkState) name() string {
	return l.link.Name()
}

// Engine is the gateway core: it owns the links, the slaves and every
// exchange in flight. All of its state is guarded by mx.
type Engine struct {
	mx   sync.Mutex
	cond *sync.Cond

	opts   Options
	timing timing
	rnd    *rand.Rand
	ids    *m.IDGenerator

	links       []*linkState
	slaves      map[int]*Slave
	order       []int
	outstanding map[exchangeKey]*exchange
	cache       *responseCache

	started     time.Time
	hid         int
	nextHello   time.Time
	nextCleanup time.Time
	stopped     bool
	done        chan struct{}
}

func NewEngine(opts Options, links []network.Link, slaves []SlaveConfig) *Engine {
	opts = opts.withDefaults()
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	e := &Engine{
		opts:        opts,
		timing:      timing{ackTimeout: opts.AckTimeout},
		rnd:         rnd,
		ids:         m.NewIDGenerator(rnd),
		slaves:      make(map[int]*Slave),
		outstanding: make(map[exchangeKey]*exchange),
		cache:       newResponseCache(),
		done:        make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mx)

	for _, l := range links {
		e.links = append(e.links, &linkState{link: l, dedup: newDedupStore()})
	}
	for _, sc := range slaves {
		if _, dup := e.slaves[sc.ID]; dup {
			continue
		}
		e.slaves[sc.ID] = newSlave(&e.mx, sc, opts.SlaveTTL)
		e.order = append(e.order, sc.ID)
	}
	sort.Ints(e.order)

	return e
}

// Run starts a receiver per link and the scheduler, and blocks until ctx
// is cancelled or a link fails. Links are closed on return.
func (e *Engine) Run(ctx context.Context) error {
	e.mx.Lock()
	now := time.Now()
	e.started = now
	e.hid = int(now.Unix() % 1000)
	e.nextHello = now.Add(e.opts.FirstHello)
	e.nextCleanup = now.Add(e.opts.CacheCleanup)
	e.mx.Unlock()

	log.Info(fmt.Sprintf("casan engine started: %d links, %d slaves, hello id %d", len(e.links), len(e.slaves), e.hid))

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range e.links {
		l := l
		g.Go(func() error {
			return e.receive(l)
		})
	}
	g.Go(e.schedule)
	g.Go(func() error {
		<-gctx.Done()
		e.stop()
		return nil
	})

	err := g.Wait()
	log.Info("casan engine stopped")
	return err
}

func (e *Engine) stop() {
	e.mx.Lock()
	if !e.stopped {
		close(e.done)
	}
	e.stopped = true
	for k, x := range e.outstanding {
		if x.pending != nil {
			x.pending.release(nil, cerr.EngineStopped)
		}
		delete(e.outstanding, k)
	}
	e.cond.Broadcast()
	e.mx.Unlock()

	for _, l := range e.links {
		if err := l.link.Close(); err != nil {
			log.Error(fmt.Sprintf("%s: close: %s", l.name(), err))
		}
	}
}

func (e *Engine) isStopped() bool {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.stopped
}

// NewRequest builds a CON request for a slave resource. Query items are
// "key=value" strings.
func NewRequest(method m.CoapCode, path []string, query []string, payload []byte) *m.CoAPMessage {
	msg := m.NewCoAPMessage(m.CON, method)
	msg.SetURIPath(path...)
	for _, q := range query {
		msg.AddOption(m.OptionURIQuery, q)
	}
	msg.Payload = payload
	return msg
}

// SubmitRequest sends a request to a running slave.
func (e *Engine) SubmitRequest(sid int, method m.CoapCode, path []string, query []string, payload []byte) (*Pending, error) {
	return e.Submit(sid, NewRequest(method, path, query, payload))
}

// Submit queues req for sid. A message id is assigned unless req carries
// a free one, and a token unless it has one. Only CON requests can be
// waited on; a request larger than the slave MTU fails at once.
func (e *Engine) Submit(sid int, req *m.CoAPMessage) (*Pending, error) {
	if req == nil {
		return nil, cerr.NilMessage
	}
	if req.Type != m.CON {
		return nil, fmt.Errorf("%w: got %s", cerr.NotConfirmable, req.Type)
	}

	e.mx.Lock()
	defer e.mx.Unlock()

	if e.stopped {
		return nil, cerr.EngineStopped
	}
	sl, ok := e.slaves[sid]
	if !ok {
		return nil, cerr.UnknownSlave
	}
	if !sl.running() {
		return nil, cerr.SlaveNotRunning
	}

	if len(req.Token) == 0 {
		req.Token = m.GenerateToken(e.rnd, TOKEN_LENGTH)
	}
	x := &exchange{
		msg:      req,
		link:     sl.link,
		peer:     sl.addr,
		slave:    sl,
		category: CategoryNone,
		pending:  newPending(),
	}
	if err := e.enqueue(x, sl.curMTU); err != nil {
		return nil, err
	}
	return x.pending, nil
}

// enqueue hands x to the scheduler. Called with mx held.
func (e *Engine) enqueue(x *exchange, mtu int) error {
	if x.msg.MessageID != 0 {
		if _, busy := e.outstanding[exchangeKey{link: x.link, id: x.msg.MessageID}]; busy {
			x.msg.MessageID = 0
		}
	}
	for x.msg.MessageID == 0 {
		id := e.ids.Next()
		if _, busy := e.outstanding[exchangeKey{link: x.link, id: id}]; !busy {
			x.msg.MessageID = id
		}
	}

	raw, err := m.SerializeLimit(x.msg, mtu)
	if err != nil {
		return err
	}
	x.raw = raw

	e.outstanding[x.key()] = x
	e.cond.Broadcast()
	return nil
}

// dropExchange removes x from the table and releases its caller with err.
// Called with mx held.
func (e *Engine) dropExchange(x *exchange, err error) {
	if e.outstanding[x.key()] == x {
		delete(e.outstanding, x.key())
	}
	if x.slave != nil && x.slave.assoc == x {
		x.slave.assoc = nil
	}
	if x.pending != nil {
		x.pending.release(nil, err)
	}
}

func (e *Engine) FindSlave(sid int) *Slave {
	e.mx.Lock()
	defer e.mx.Unlock()
	return e.slaves[sid]
}

// Slaves returns the configured slaves ordered by id.
func (e *Engine) Slaves() []*Slave {
	e.mx.Lock()
	defer e.mx.Unlock()
	list := make([]*Slave, 0, len(e.order))
	for _, id := range e.order {
		list = append(list, e.slaves[id])
	}
	return list
}

// ExchangeLifetime is how long a request to sid may stay unanswered.
func (e *Engine) ExchangeLifetime(sid int) time.Duration {
	e.mx.Lock()
	defer e.mx.Unlock()
	maxLatency := network.DefaultMaxLatency
	if sl, ok := e.slaves[sid]; ok && sl.link != nil {
		maxLatency = sl.link.link.MaxLatency()
	}
	return e.timing.exchangeLifetime(maxLatency)
}

// ResourceListText is the link-format listing of the resources of every
// running slave, as seen through the HTTP namespace.
func (e *Engine) ResourceListText() []byte {
	e.mx.Lock()
	defer e.mx.Unlock()

	var links []string
	for _, id := range e.order {
		sl := e.slaves[id]
		if !sl.running() {
			continue
		}
		prefix := "/" + e.opts.Namespace + "/" + strconv.Itoa(id) + "/"
		for _, r := range sl.resources {
			links = append(links, r.format(prefix+r.Path))
		}
	}
	return []byte(strings.Join(links, ","))
}

func (e *Engine) CacheGet(sid int, req *m.CoAPMessage) *m.CoAPMessage {
	reply := e.cache.Get(sid, req)
	if reply == nil {
		Metrics.CacheMisses.Inc()
		return nil
	}
	Metrics.CacheHits.Inc()
	return reply
}

func (e *Engine) CacheAdd(sid int, req, reply *m.CoAPMessage) {
	e.cache.Add(sid, req, reply)
}

// FindResource returns the resource at path of a running slave.
func (e *Engine) FindResource(sid int, path []string) (*Resource, error) {
	sl := e.FindSlave(sid)
	if sl == nil {
		return nil, cerr.UnknownSlave
	}
	if sl.Status() != SlaveRunning {
		return nil, cerr.SlaveNotRunning
	}
	if r := sl.FindResource(path); r != nil {
		return r, nil
	}
	return nil, fmt.Errorf("%w: no resource /%s on slave %d", cerr.UnknownResource, strings.Join(path, "/"), sid)
}

// Request submits req to sid and waits for the reply for at most one
// exchange lifetime.
func (e *Engine) Request(sid int, req *m.CoAPMessage) (*m.CoAPMessage, error) {
	p, err := e.Submit(sid, req)
	if err != nil {
		return nil, err
	}
	return p.Await(e.ExchangeLifetime(sid))
}

// ResetSlave forces sid back to INACTIVE. The slave comes back with its
// next Discover.
func (e *Engine) ResetSlave(sid int) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	sl, ok := e.slaves[sid]
	if !ok {
		return cerr.UnknownSlave
	}
	if sl.assoc != nil {
		e.dropExchange(sl.assoc, cerr.AssociationSuperseded)
	}
	sl.reset()
	log.Info(fmt.Sprintf("slave %d reset by admin", sid))
	return nil
}
