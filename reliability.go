package casan

import (
	"math/rand"
	"time"

	m "github.com/coalalib/casan/message"
	"github.com/coalalib/casan/network"
)

// timing derives the RFC 7252 4.8.2 time values from ACK_TIMEOUT.
type timing struct {
	ackTimeout time.Duration
}

func (t timing) randAckTimeout(r *rand.Rand) time.Duration {
	factor := ACK_RANDOM_FACTOR - 1
	return t.ackTimeout + time.Duration(r.Float64()*factor*float64(t.ackTimeout))
}

// maxTransmitSpan = ACK_TIMEOUT * (2^MAX_RETRANSMIT - 1) * ACK_RANDOM_FACTOR
func (t timing) maxTransmitSpan() time.Duration {
	return time.Duration(float64(t.ackTimeout) * float64(int(1)<<MAX_RETRANSMIT-1) * ACK_RANDOM_FACTOR)
}

func (t timing) processingDelay() time.Duration {
	return t.ackTimeout
}

func (t timing) maxRTT(maxLatency time.Duration) time.Duration {
	return 2*maxLatency + t.processingDelay()
}

func (t timing) exchangeLifetime(maxLatency time.Duration) time.Duration {
	return t.maxTransmitSpan() + 2*maxLatency + t.processingDelay()
}

type exchangeKey struct {
	link *linkState
	id   uint16
}

// exchange is a message the gateway originated, with its transmission
// state. It lives in the outstanding table until expire.
type exchange struct {
	msg      *m.CoAPMessage
	raw      []byte
	link     *linkState
	peer     network.Address
	slave    *Slave
	category Category

	attempts int
	timeout  time.Duration
	next     time.Time
	expire   time.Time
	acked    bool

	reply   *m.CoAPMessage
	pending *Pending
}

func (x *exchange) key() exchangeKey {
	return exchangeKey{link: x.link, id: x.msg.MessageID}
}

func (x *exchange) isNew() bool {
	return x.attempts == 0
}

// sent records a first transmission at now.
func (x *exchange) sent(now time.Time, t timing, r *rand.Rand) {
	maxLatency := x.link.link.MaxLatency()
	x.attempts = 1

	switch x.msg.Type {
	case m.CON:
		x.timeout = t.randAckTimeout(r)
		x.next = now.Add(x.timeout)
		x.expire = now.Add(t.exchangeLifetime(maxLatency))
	case m.NON:
		x.attempts = MAX_RETRANSMIT + 1
		x.expire = now
	default:
		x.attempts = MAX_RETRANSMIT + 1
		x.expire = now.Add(t.maxRTT(maxLatency))
	}
}

// due reports whether the retransmission timer has fired.
func (x *exchange) due(now time.Time) bool {
	return !x.next.IsZero() && !now.Before(x.next)
}

// exhausted reports whether every transmission has been spent.
func (x *exchange) exhausted() bool {
	return x.attempts > MAX_RETRANSMIT
}

// retransmitted doubles the timeout after one more transmission.
func (x *exchange) retransmitted(now time.Time) {
	x.attempts++
	x.timeout *= 2
	x.next = now.Add(x.timeout)
}

// stop cancels retransmission; the exchange stays until expire.
func (x *exchange) stop() {
	x.next = time.Time{}
}

func (x *exchange) expired(now time.Time) bool {
	return !x.isNew() && !now.Before(x.expire)
}

// setReply pairs the exchange with its reply; a second reply is ignored.
func (x *exchange) setReply(reply *m.CoAPMessage) bool {
	if x.reply != nil {
		return false
	}
	x.reply = reply
	x.stop()
	return true
}
