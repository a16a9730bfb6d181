package casan

import (
	"time"

	cerr "github.com/coalalib/casan/errors"
	m "github.com/coalalib/casan/message"
)

// Pending is the caller's handle on a submitted request. It is released
// once, with either the reply or an error.
type Pending struct {
	done  chan struct{}
	reply *m.CoAPMessage
	err   error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// release must be called with the engine mutex held.
func (p *Pending) release(reply *m.CoAPMessage, err error) {
	select {
	case <-p.done:
		return
	default:
	}
	p.reply = reply
	p.err = err
	close(p.done)
}

func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Await waits up to timeout for the outcome. Giving up does not cancel
// the exchange: it keeps retransmitting until answered or expired.
func (p *Pending) Await(timeout time.Duration) (*m.CoAPMessage, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-p.done:
		return p.reply, p.err
	case <-t.C:
		return nil, cerr.RequestTimeout
	}
}
