package message

import (
	"math/rand"
	"sync"
)

// IDGenerator hands out message IDs in 1..65535, wrapping and never
// returning 0. One generator is shared by every link of an engine.
type IDGenerator struct {
	mx      sync.Mutex
	current uint16
}

func NewIDGenerator(r *rand.Rand) *IDGenerator {
	return &IDGenerator{current: uint16(r.Intn(65535))}
}

func (g *IDGenerator) Next() uint16 {
	g.mx.Lock()
	defer g.mx.Unlock()

	if g.current < 65535 {
		g.current++
	} else {
		g.current = 1
	}
	return g.current
}

// Assign gives msg an ID unless it already carries one.
func (g *IDGenerator) Assign(msg *CoAPMessage) {
	if msg.MessageID == 0 {
		msg.MessageID = g.Next()
	}
}
