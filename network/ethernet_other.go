//go:build !linux

package network

import (
	"fmt"
	"runtime"

	cerr "github.com/coalalib/casan/errors"
)

// Ethernet raw sockets need AF_PACKET, which only Linux provides.
type Ethernet struct{ Link }

func OpenEthernet(iface string, ethType uint16, mtu int) (*Ethernet, error) {
	return nil, fmt.Errorf("%w: raw ethernet not supported on %s", cerr.LinkInitFailure, runtime.GOOS)
}
