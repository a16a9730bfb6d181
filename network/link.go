package network

import "time"

type PacketKind int

const (
	PacketNone PacketKind = iota
	PacketUnicast
	PacketBroadcast
)

func (k PacketKind) String() string {
	switch k {
	case PacketUnicast:
		return "unicast"
	case PacketBroadcast:
		return "broadcast"
	}
	return "none"
}

// DefaultMaxLatency bounds the one-way delivery time on a link.
const DefaultMaxLatency = time.Second

// Link is a network interface toward slaves. Receive blocks until a frame
// arrives or the link is closed; a frame the link could not classify is
// returned as PacketNone.
type Link interface {
	Name() string
	MTU() int
	MaxLatency() time.Duration
	Broadcast() Address
	Send(dst Address, data []byte) error
	Receive() (PacketKind, Address, []byte, error)
	Close() error
}
