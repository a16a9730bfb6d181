//go:build linux

package network

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	cerr "github.com/coalalib/casan/errors"
	log "github.com/ndmsystems/logger"
	"golang.org/x/sys/unix"
)

// Ethernet is a raw AF_PACKET link carrying one EtherType.
type Ethernet struct {
	iface   string
	ifindex int
	ethType uint16
	mtu     int
	fd      int
	closed  atomic.Bool
}

func OpenEthernet(iface string, ethType uint16, mtu int) (*Ethernet, error) {
	if ethType == 0 {
		ethType = DefaultEtherType
	}
	if mtu <= 0 {
		mtu = DefaultEthernetMTU
	}

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", cerr.LinkInitFailure, iface, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_DGRAM, int(htons(ethType)))
	if err != nil {
		return nil, fmt.Errorf("%w: socket: %v", cerr.LinkInitFailure, err)
	}

	sll := &unix.SockaddrLinklayer{Protocol: htons(ethType), Ifindex: ifi.Index}
	if err := unix.Bind(fd, sll); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: bind %s: %v", cerr.LinkInitFailure, iface, err)
	}

	// a bounded read lets Receive notice Close
	tv := unix.NsecToTimeval(ethernetReadPoll.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: SO_RCVTIMEO: %v", cerr.LinkInitFailure, err)
	}

	log.Info(fmt.Sprintf("ethernet link %s up, ethertype 0x%04x, mtu %d", iface, ethType, mtu))

	return &Ethernet{
		iface:   iface,
		ifindex: ifi.Index,
		ethType: ethType,
		mtu:     mtu,
		fd:      fd,
	}, nil
}

func (e *Ethernet) Name() string              { return e.iface }
func (e *Ethernet) MTU() int                  { return e.mtu }
func (e *Ethernet) MaxLatency() time.Duration { return DefaultMaxLatency }
func (e *Ethernet) Broadcast() Address        { return EthernetBroadcast }

func (e *Ethernet) Send(dst Address, data []byte) error {
	if e.closed.Load() {
		return net.ErrClosed
	}
	if len(data) > e.mtu {
		return fmt.Errorf("%w: %d > %d", cerr.MessageTooLarge, len(data), e.mtu)
	}

	sll := &unix.SockaddrLinklayer{
		Protocol: htons(e.ethType),
		Ifindex:  e.ifindex,
		Halen:    6,
	}
	copy(sll.Addr[:], dst.Bytes())

	return unix.Sendto(e.fd, frameEthernet(data), 0, sll)
}

func (e *Ethernet) Receive() (PacketKind, Address, []byte, error) {
	buf := make([]byte, ethernetReadMax)

	n, from, err := unix.Recvfrom(e.fd, buf, 0)
	if e.closed.Load() {
		return PacketNone, Address{}, nil, net.ErrClosed
	}
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return PacketNone, Address{}, nil, nil
		}
		return PacketNone, Address{}, nil, err
	}

	sll, ok := from.(*unix.SockaddrLinklayer)
	if !ok {
		return PacketNone, Address{}, nil, nil
	}

	var kind PacketKind
	switch sll.Pkttype {
	case unix.PACKET_HOST:
		kind = PacketUnicast
	case unix.PACKET_BROADCAST, unix.PACKET_MULTICAST:
		kind = PacketBroadcast
	default:
		return PacketNone, Address{}, nil, nil
	}

	payload, ok := unframeEthernet(buf[:n])
	if !ok {
		log.Debug(fmt.Sprintf("%s: dropping frame with bad length prefix", e.iface))
		return PacketNone, Address{}, nil, nil
	}

	return kind, NewAddress(NetworkEthernet, sll.Addr[:sll.Halen]), payload, nil
}

func (e *Ethernet) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	return unix.Close(e.fd)
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
