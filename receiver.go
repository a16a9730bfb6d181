package casan

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"time"

	cerr "github.com/coalalib/casan/errors"
	m "github.com/coalalib/casan/message"
	"github.com/coalalib/casan/network"
	log "github.com/ndmsystems/logger"
)

// Pause after a failed link read, doubled on each further failure.
var (
	receiveBackoffMin = 100 * time.Millisecond
	receiveBackoffMax = 5 * time.Second
)

// receive reads datagrams from l until the link is closed or the engine
// stops. Read errors are logged and retried so one bad link does not take
// the others down.
func (e *Engine) receive(l *linkState) error {
	backoff := receiveBackoffMin
	for {
		kind, src, data, err := l.link.Receive()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || e.isStopped() {
				return nil
			}
			Metrics.ReceiveErrors.WithLabelValues(l.name()).Inc()
			log.Error(fmt.Sprintf("%s: receive: %s, retrying in %s", l.name(), err, backoff))

			t := time.NewTimer(backoff)
			select {
			case <-e.done:
				t.Stop()
				return nil
			case <-t.C:
			}
			if backoff *= 2; backoff > receiveBackoffMax {
				backoff = receiveBackoffMax
			}
			continue
		}
		backoff = receiveBackoffMin
		if kind == network.PacketNone {
			continue
		}
		e.processDatagram(l, src, data)
	}
}

func (e *Engine) processDatagram(l *linkState, src network.Address, data []byte) {
	msg, err := m.Deserialize(data)
	if err != nil {
		Metrics.DecodeErrors.WithLabelValues(l.name()).Inc()
		log.Debug(fmt.Sprintf("%s: dropping datagram from %s: %s", l.name(), src, err))
		return
	}
	Metrics.ReceivedMessages.WithLabelValues(l.name(), msg.Type.String()).Inc()

	cat, info := CategoryNone, discoverInfo{}
	if msg.Type == m.CON || msg.Type == m.NON {
		cat, info = classify(msg)
	}
	if cat == CategoryAssocRequest || cat == CategoryHello {
		log.Info(fmt.Sprintf("%s: %s from %s, another master is active", l.name(), cat, src))
		return
	}

	var sends []outgoing

	e.mx.Lock()
	if e.stopped {
		e.mx.Unlock()
		return
	}
	now := time.Now()

	sl := e.findPeer(l, src, cat, info)
	if sl == nil {
		e.mx.Unlock()
		log.Debug(fmt.Sprintf("%s: dropping %s from unknown sender %s", l.name(), msg.Type, src))
		return
	}

	switch msg.Type {
	case m.ACK, m.RST:
		e.correlate(l, src, msg, now)

	case m.CON, m.NON:
		var ttl time.Duration
		if msg.Type == m.CON {
			ttl = e.timing.exchangeLifetime(l.link.MaxLatency())
		}
		if entry, dup := l.dedup.Check(data, ttl); dup {
			Metrics.Duplicates.WithLabelValues(l.name()).Inc()
			if entry.reply != nil {
				sends = append(sends, outgoing{link: l, dst: src, raw: entry.reply, typ: m.ACK})
			}
			break
		}
		sends = e.dispatch(l, src, sl, msg, data, cat, info, now)
	}
	e.mx.Unlock()

	e.transmit(sends)
}

// findPeer returns the slave src speaks for. Called with mx held.
func (e *Engine) findPeer(l *linkState, src network.Address, cat Category, info discoverInfo) *Slave {
	if cat == CategoryDiscover {
		return e.slaves[info.sid]
	}
	for _, id := range e.order {
		if sl := e.slaves[id]; sl.isPeer(l, src) {
			return sl
		}
	}
	return nil
}

// correlate pairs an ACK or RST with the exchange it answers.
func (e *Engine) correlate(l *linkState, src network.Address, msg *m.CoAPMessage, now time.Time) {
	x, ok := e.outstanding[exchangeKey{link: l, id: msg.MessageID}]
	if !ok || x.peer != src {
		log.Debug(fmt.Sprintf("%s: unmatched %s id %d from %s", l.name(), msg.Type, msg.MessageID, src))
		return
	}

	// empty ACK: the response will come separately
	if msg.Type == m.ACK && msg.Code == m.CoapCodeEmpty {
		if x.reply == nil {
			x.acked = true
			x.stop()
		}
		return
	}
	e.complete(x, msg, now)
}

func (e *Engine) complete(x *exchange, reply *m.CoAPMessage, now time.Time) {
	if !x.setReply(reply) {
		return
	}

	if sl := x.slave; sl != nil {
		if size1 := reply.GetOption(m.OptionSize1); size1 != nil {
			sl.lowerMTU(size1.IntValue())
		}
		if x.category == CategoryAssocRequest && sl.assoc == x {
			sl.assoc = nil
			if reply.Type != m.RST {
				e.assocAnswer(sl, reply, now)
			}
		}
	}

	if x.pending == nil {
		return
	}
	if reply.Type == m.RST {
		x.pending.release(nil, cerr.UnresponsiveSlave)
		return
	}
	x.pending.release(reply, nil)
}

func (e *Engine) assocAnswer(sl *Slave, reply *m.CoAPMessage, now time.Time) {
	resources, err := ParseResourceList(reply.Payload)
	if err != nil {
		log.Error(fmt.Sprintf("slave %d: %s", sl.id, err))
		return
	}
	sl.associate(resources, now)
	Metrics.Associations.Inc()
	log.Info(fmt.Sprintf("slave %d associated on %s at %s, mtu %d, ttl %s, %d resources",
		sl.id, sl.link.name(), sl.addr, sl.curMTU, sl.ttl, len(resources)))
	e.cond.Broadcast()
}

// dispatch handles a new CON or NON from sl. Called with mx held; the
// returned datagrams are sent after unlocking.
func (e *Engine) dispatch(l *linkState, src network.Address, sl *Slave, msg *m.CoAPMessage,
	raw []byte, cat Category, info discoverInfo, now time.Time) []outgoing {

	if cat == CategoryDiscover {
		e.handleDiscover(l, src, sl, info)
		return nil
	}

	if !msg.IsRequest() && msg.Code != m.CoapCodeEmpty {
		e.separateResponse(sl, msg, now)
	}

	if msg.Type != m.CON {
		return nil
	}
	ack := m.NewAck(msg, m.CoapCodeEmpty)
	ack.Token = nil
	b, err := m.Serialize(ack)
	if err != nil {
		log.Error(fmt.Sprintf("%s: ack for %d: %s", l.name(), msg.MessageID, err))
		return nil
	}
	l.dedup.MarkReplied(raw, b)
	return []outgoing{{link: l, dst: src, raw: b, typ: m.ACK}}
}

// separateResponse completes an acknowledged exchange whose response
// arrived in its own message.
func (e *Engine) separateResponse(sl *Slave, msg *m.CoAPMessage, now time.Time) {
	for _, x := range e.outstanding {
		if x.slave == sl && x.acked && x.reply == nil && bytes.Equal(x.msg.Token, msg.Token) {
			e.complete(x, msg, now)
			return
		}
	}
}

// handleDiscover restarts association with the sender of a Discover. The
// last Discover wins: an association in progress is abandoned.
func (e *Engine) handleDiscover(l *linkState, src network.Address, sl *Slave, info discoverInfo) {
	if sl.running() && (sl.link != l || sl.addr != src) {
		log.Info(fmt.Sprintf("slave %d moved from %s/%s to %s/%s", sl.id, sl.link.name(), sl.addr, l.name(), src))
		sl.reset()
	}
	if sl.assoc != nil {
		e.dropExchange(sl.assoc, cerr.AssociationSuperseded)
	}

	sl.resetDiscover(l, src, info.mtu)

	req := mkAssocRequest(int(sl.ttl/time.Second), sl.discMTU)
	req.Token = m.GenerateToken(e.rnd, TOKEN_LENGTH)
	x := &exchange{
		msg:      req,
		link:     l,
		peer:     src,
		slave:    sl,
		category: CategoryAssocRequest,
	}
	if err := e.enqueue(x, sl.discMTU); err != nil {
		log.Error(fmt.Sprintf("slave %d: assoc request: %s", sl.id, err))
		return
	}
	sl.assoc = x
	log.Debug(fmt.Sprintf("slave %d: discover on %s from %s, mtu %d", sl.id, l.name(), src, sl.discMTU))
}
