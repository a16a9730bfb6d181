package network

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	NetworkEthernet = "ether"
	NetworkXBee     = "xbee"
)

// Address is a link-layer address. It is comparable and usable as a map key.
type Address struct {
	network string
	addr    string
}

func NewAddress(network string, raw []byte) Address {
	return Address{
		network: network,
		addr:    string(raw),
	}
}

// ParseXBeeAddress parses a 16-bit short address written as "ca:fe" or "cafe".
func ParseXBeeAddress(s string) (Address, error) {
	v, err := strconv.ParseUint(strings.ReplaceAll(s, ":", ""), 16, 16)
	if err != nil {
		return Address{}, fmt.Errorf("invalid 802.15.4 address %q: %w", s, err)
	}
	return NewAddress(NetworkXBee, []byte{byte(v >> 8), byte(v)}), nil
}

func (a Address) Network() string {
	return a.network
}

func (a Address) Bytes() []byte {
	return []byte(a.addr)
}

func (a Address) IsZero() bool {
	return a.addr == ""
}

func (a Address) String() string {
	switch a.network {
	case NetworkEthernet:
		return net.HardwareAddr(a.addr).String()
	case NetworkXBee:
		parts := make([]string, len(a.addr))
		for i := 0; i < len(a.addr); i++ {
			parts[i] = fmt.Sprintf("%02x", a.addr[i])
		}
		return strings.Join(parts, ":")
	}
	return fmt.Sprintf("%x", a.addr)
}
