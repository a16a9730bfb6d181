package casan_test

import (
	"net"
	"strconv"
	"sync"
	"time"

	cerr "github.com/coalalib/casan/errors"
	m "github.com/coalalib/casan/message"
	"github.com/coalalib/casan/network"
)

type frame struct {
	kind network.PacketKind
	addr network.Address
	data []byte
}

// memLink is an in-memory network.Link. Tests push datagrams into in and
// read what the engine sent from out.
type memLink struct {
	name  string
	mtu   int
	bcast network.Address

	in   chan frame
	out  chan frame
	errs chan error

	closed chan struct{}
	once   sync.Once
}

func newMemLink(name string, mtu int) *memLink {
	return &memLink{
		name:   name,
		mtu:    mtu,
		bcast:  network.NewAddress(network.NetworkXBee, []byte{0xff, 0xff}),
		in:     make(chan frame, 64),
		out:    make(chan frame, 1024),
		errs:   make(chan error, 4),
		closed: make(chan struct{}),
	}
}

func (l *memLink) Name() string { return l.name }
func (l *memLink) MTU() int { return l.mtu }
func (l *memLink) MaxLatency() time.Duration { return 10 * time.Millisecond }
func (l *memLink) Broadcast() network.Address { return l.bcast }

func (l *memLink) Send(dst network.Address, data []byte) error {
	if len(data) > l.mtu {
		return cerr.MessageTooLarge
	}
	select {
	case <-l.closed:
		return net.ErrClosed
	case l.out <- frame{kind: network.PacketUnicast, addr: dst, data: append([]byte(nil), data...)}:
		return nil
	}
}

func (l *memLink) Receive() (network.PacketKind, network.Address, []byte, error) {
	select {
	case <-l.closed:
		return network.PacketNone, network.Address{}, nil, net.ErrClosed
	case err := <-l.errs:
		return network.PacketNone, network.Address{}, nil, err
	case f := <-l.in:
		return f.kind, f.addr, f.data, nil
	}
}

func (l *memLink) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

// recv returns the next datagram the engine sent that is not a Hello.
func (l *memLink) recv(timeout time.Duration) (*m.CoAPMessage, network.Address, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case f := <-l.out:
			msg, err := m.Deserialize(f.data)
			if err != nil {
				continue
			}
			if _, hello := msg.LookupURIQuery("hello"); hello {
				continue
			}
			return msg, f.addr, true
		case <-t.C:
			return nil, network.Address{}, false
		}
	}
}

// fakeSlave plays a CASAN slave on a memLink.
type fakeSlave struct {
	link *memLink
	addr network.Address
	id   uint16
}

func newFakeSlave(l *memLink, lo byte) *fakeSlave {
	return &fakeSlave{link: l, addr: network.NewAddress(network.NetworkXBee, []byte{0x00, lo}), id: 0x100}
}

func (s *fakeSlave) sendRaw(raw []byte) {
	s.link.in <- frame{kind: network.PacketUnicast, addr: s.addr, data: raw}
}

func (s *fakeSlave) send(msg *m.CoAPMessage) []byte {
	raw, err := m.Serialize(msg)
	if err != nil {
		panic(err)
	}
	s.sendRaw(raw)
	return raw
}

func (s *fakeSlave) discover(sid, mtu int) {
	msg := m.NewCoAPMessage(m.NON, m.POST)
	s.id++
	msg.MessageID = s.id
	msg.SetURIPath(".well-known", "casan")
	msg.SetURIQuery("slave", strconv.Itoa(sid))
	msg.SetURIQuery("mtu", strconv.Itoa(mtu))
	s.send(msg)
}

// answer replies to req with a piggybacked ACK.
func (s *fakeSlave) answer(req *m.CoAPMessage, code m.CoapCode, payload string) {
	ack := m.NewAck(req, code)
	ack.Payload = []byte(payload)
	s.send(ack)
}
