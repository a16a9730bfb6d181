package casan

import (
	"fmt"
	"time"

	cerr "github.com/coalalib/casan/errors"
	m "github.com/coalalib/casan/message"
	"github.com/coalalib/casan/network"
	log "github.com/ndmsystems/logger"
)

// outgoing is a datagram ready for a link. x is set when it carries an
// exchange.
type outgoing struct {
	link *linkState
	dst  network.Address
	raw  []byte
	typ  m.CoapType
	x    *exchange
}

// schedule runs the timers: hellos, slave TTLs, cache cleanup and the
// retransmission of outstanding exchanges.
func (e *Engine) schedule() error {
	e.mx.Lock()
	defer e.mx.Unlock()

	for !e.stopped {
		sends := e.tick(time.Now())
		if len(sends) > 0 {
			e.mx.Unlock()
			failed := e.transmit(sends)
			e.mx.Lock()
			for _, f := range failed {
				if f.x != nil {
					e.dropExchange(f.x, f.err)
				}
			}
			continue
		}
		e.sleepUntil(e.nextDeadline())
	}
	return nil
}

// tick fires every timer due at now. Called with mx held.
func (e *Engine) tick(now time.Time) []outgoing {
	var sends []outgoing

	if !e.nextHello.IsZero() && !now.Before(e.nextHello) {
		sends = append(sends, e.hellos()...)
		e.nextHello = now.Add(e.opts.HelloInterval)
	}

	for _, id := range e.order {
		sl := e.slaves[id]
		if sl.expired(now) {
			log.Info(fmt.Sprintf("slave %d: ttl expired, back to inactive", sl.id))
			sl.reset()
			Metrics.SlaveResets.Inc()
		}
	}

	if !e.nextCleanup.IsZero() && !now.Before(e.nextCleanup) {
		e.cache.Cleanup()
		for _, l := range e.links {
			l.dedup.Cleanup()
		}
		e.nextCleanup = now.Add(e.opts.CacheCleanup)
	}

	for k, x := range e.outstanding {
		switch {
		case x.expired(now):
			delete(e.outstanding, k)
			if x.slave != nil && x.slave.assoc == x {
				x.slave.assoc = nil
			}
			if x.pending != nil {
				x.pending.release(nil, cerr.UnresponsiveSlave)
			}
			Metrics.ExpiredMessages.Inc()

		case x.isNew():
			x.sent(now, e.timing, e.rnd)
			sends = append(sends, outgoing{link: x.link, dst: x.peer, raw: x.raw, typ: x.msg.Type, x: x})

		case x.due(now):
			if x.exhausted() {
				x.stop()
				if x.pending != nil {
					x.pending.release(nil, cerr.UnresponsiveSlave)
				}
				Metrics.Unresponsive.Inc()
				log.Debug(fmt.Sprintf("%s: no answer to id %d from %s after %d attempts",
					x.link.name(), x.msg.MessageID, x.peer, x.attempts))
				continue
			}
			x.retransmitted(now)
			Metrics.Retransmissions.Inc()
			sends = append(sends, outgoing{link: x.link, dst: x.peer, raw: x.raw, typ: x.msg.Type, x: x})
		}
	}

	return sends
}

func (e *Engine) hellos() []outgoing {
	var sends []outgoing
	for _, l := range e.links {
		msg := mkHello(e.hid)
		e.ids.Assign(msg)
		raw, err := m.SerializeLimit(msg, l.link.MTU())
		if err != nil {
			log.Error(fmt.Sprintf("%s: hello: %s", l.name(), err))
			continue
		}
		sends = append(sends, outgoing{link: l, dst: l.link.Broadcast(), raw: raw, typ: m.NON})
	}
	return sends
}

// nextDeadline is the earliest pending timer, zero if there is none.
// Called with mx held.
func (e *Engine) nextDeadline() time.Time {
	var next time.Time
	earlier := func(t time.Time) {
		if !t.IsZero() && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}

	earlier(e.nextHello)
	earlier(e.nextCleanup)
	for _, sl := range e.slaves {
		if sl.running() {
			earlier(sl.deadline)
		}
	}
	for _, x := range e.outstanding {
		if x.isNew() {
			return time.Now()
		}
		earlier(x.next)
		earlier(x.expire)
	}
	return next
}

// sleepUntil waits on the condition until deadline or until woken. Called
// with mx held.
func (e *Engine) sleepUntil(deadline time.Time) {
	if deadline.IsZero() {
		e.cond.Wait()
		return
	}
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	t := time.AfterFunc(d, func() {
		e.mx.Lock()
		e.cond.Broadcast()
		e.mx.Unlock()
	})
	e.cond.Wait()
	t.Stop()
}

type sendFailure struct {
	x   *exchange
	err error
}

// transmit writes datagrams to their links. Called without mx.
func (e *Engine) transmit(sends []outgoing) []sendFailure {
	var failed []sendFailure
	for _, o := range sends {
		if err := o.link.link.Send(o.dst, o.raw); err != nil {
			Metrics.SentMessageError.WithLabelValues(o.link.name()).Inc()
			log.Error(fmt.Sprintf("%s: send to %s: %s", o.link.name(), o.dst, err))
			failed = append(failed, sendFailure{x: o.x, err: err})
			continue
		}
		Metrics.SentMessages.WithLabelValues(o.link.name(), o.typ.String()).Inc()
	}
	return failed
}
