package network

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cerr "github.com/coalalib/casan/errors"
	"github.com/jacobsa/go-serial/serial"
	log "github.com/ndmsystems/logger"
)

const (
	xbeeReadMax       = 1000
	xbeeATTimeout     = 3 * time.Second
	xbeeBaudRate      = 9600
	xbeeCharTimeoutMs = 100
)

// guard time around "+++" required by the XBee command mode
var xbeeGuardTime = 200 * time.Millisecond

// An empty read returning well before the inter-character timeout means the
// device is gone. Receive pauses after each one and gives up after
// xbeeMaxFastEOF in a row.
var (
	xbeeEOFPause   = 50 * time.Millisecond
	xbeeMaxFastEOF = 10
)

type XBeeConfig struct {
	Device  string
	Addr    Address
	PanID   Address
	Channel int
	MTU     int
}

// XBee is an 802.15.4 link driven through a Digi XBee in API mode.
type XBee struct {
	name   string
	port   io.ReadWriteCloser
	mtu    int
	buf    []byte
	wmx    sync.Mutex
	closed atomic.Bool

	fastEOF int
}

// OpenXBee opens the serial device at 9600 8N1 and configures the radio.
func OpenXBee(cfg XBeeConfig) (*XBee, error) {
	device := cfg.Device
	if !strings.HasPrefix(device, "/dev") {
		device = "/dev/" + device
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName:              device,
		BaudRate:              xbeeBaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: xbeeCharTimeoutMs,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", cerr.LinkInitFailure, device, err)
	}

	x, err := NewXBee(port, cfg)
	if err != nil {
		port.Close()
		return nil, err
	}
	return x, nil
}

// NewXBee runs the AT bring-up sequence on an already open port.
func NewXBee(port io.ReadWriteCloser, cfg XBeeConfig) (*XBee, error) {
	if cfg.Channel < 11 || cfg.Channel > 26 {
		return nil, fmt.Errorf("%w: invalid 802.15.4 channel %d", cerr.LinkInitFailure, cfg.Channel)
	}
	if len(cfg.Addr.Bytes()) != 2 || len(cfg.PanID.Bytes()) != 2 {
		return nil, fmt.Errorf("%w: address and panid must be 16 bits", cerr.LinkInitFailure)
	}

	mtu := cfg.MTU
	if mtu <= 0 || mtu > XBeeMTU {
		mtu = XBeeMTU
	}

	x := &XBee{
		name: cfg.Device,
		port: port,
		mtu:  mtu,
	}

	a, p := cfg.Addr.Bytes(), cfg.PanID.Bytes()
	commands := []string{
		"+++",
		"ATRE\r",
		fmt.Sprintf("ATMY%02X%02X\r", a[0], a[1]),
		fmt.Sprintf("ATID%02X%02X\r", p[0], p[1]),
		fmt.Sprintf("ATCH%X\r", cfg.Channel),
		"ATMM2\r",
		"ATAP1\r",
		"ATCN\r",
	}

	for _, c := range commands {
		if c == "+++" {
			time.Sleep(xbeeGuardTime)
		}
		if err := x.sendATCommand(c); err != nil {
			return nil, err
		}
		if c == "+++" {
			time.Sleep(xbeeGuardTime)
		}
	}

	log.Info(fmt.Sprintf("xbee link %s up, addr %s, panid %s, channel %d, mtu %d",
		cfg.Device, cfg.Addr, cfg.PanID, cfg.Channel, mtu))

	return x, nil
}

// sendATCommand writes one command and waits for its "\r"-terminated reply.
func (x *XBee) sendATCommand(cmd string) error {
	if _, err := x.port.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("%w: %q: %v", cerr.LinkInitFailure, strings.TrimSpace(cmd), err)
	}

	deadline := time.Now().Add(xbeeATTimeout)
	var reply []byte
	b := make([]byte, 1)
	for time.Now().Before(deadline) {
		n, err := x.port.Read(b)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %q: %v", cerr.LinkInitFailure, strings.TrimSpace(cmd), err)
		}
		if n == 0 {
			if err != nil && x.closed.Load() {
				return fmt.Errorf("%w: port closed", cerr.LinkInitFailure)
			}
			continue
		}

		reply = append(reply, b[0])
		if b[0] != '\r' {
			continue
		}
		switch {
		case bytes.HasSuffix(reply, []byte("OK\r")):
			return nil
		case bytes.HasSuffix(reply, []byte("ERROR\r")):
			return fmt.Errorf("%w: %q answered ERROR", cerr.LinkInitFailure, strings.TrimSpace(cmd))
		default:
			return fmt.Errorf("%w: %q answered %q", cerr.LinkInitFailure, strings.TrimSpace(cmd), reply)
		}
	}

	return fmt.Errorf("%w: %q: no answer", cerr.LinkInitFailure, strings.TrimSpace(cmd))
}

func (x *XBee) Name() string              { return x.name }
func (x *XBee) MTU() int                  { return x.mtu }
func (x *XBee) MaxLatency() time.Duration { return DefaultMaxLatency }
func (x *XBee) Broadcast() Address        { return XBeeBroadcast }

func (x *XBee) Send(dst Address, data []byte) error {
	if x.closed.Load() {
		return net.ErrClosed
	}
	if len(data) > x.mtu {
		return fmt.Errorf("%w: %d > %d", cerr.MessageTooLarge, len(data), x.mtu)
	}
	if len(dst.Bytes()) != 2 {
		return fmt.Errorf("xbee: bad destination %s", dst)
	}

	frame := encodeTransmit(dst, data)

	x.wmx.Lock()
	defer x.wmx.Unlock()
	for len(frame) > 0 {
		n, err := x.port.Write(frame)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		frame = frame[n:]
	}
	return nil
}

// Receive returns the next datagram, or PacketNone when the serial read
// timed out with no complete frame.
func (x *XBee) Receive() (PacketKind, Address, []byte, error) {
	for {
		for {
			frame, rest := extractFrame(x.buf)
			x.buf = rest
			if frame == nil {
				break
			}
			if kind, src, data, ok := decodeFrame(frame); ok {
				return kind, src, data, nil
			}
		}

		tmp := make([]byte, xbeeReadMax)
		start := time.Now()
		n, err := x.port.Read(tmp)
		if x.closed.Load() {
			return PacketNone, Address{}, nil, net.ErrClosed
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return PacketNone, Address{}, nil, err
		}
		if n == 0 {
			if time.Since(start) >= xbeeCharTimeoutMs*time.Millisecond/2 {
				x.fastEOF = 0
				return PacketNone, Address{}, nil, nil
			}
			x.fastEOF++
			if x.fastEOF >= xbeeMaxFastEOF {
				x.fastEOF = 0
				return PacketNone, Address{}, nil, fmt.Errorf("%s: %w", x.name, io.ErrUnexpectedEOF)
			}
			time.Sleep(xbeeEOFPause)
			return PacketNone, Address{}, nil, nil
		}
		x.fastEOF = 0
		x.buf = append(x.buf, tmp[:n]...)
	}
}

func (x *XBee) Close() error {
	if x.closed.Swap(true) {
		return nil
	}
	return x.port.Close()
}
