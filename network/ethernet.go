package network

import (
	"encoding/binary"
	"time"
)

const (
	DefaultEtherType   = 0x88b5
	DefaultEthernetMTU = 1536
	ethernetReadMax    = 2000
	ethernetReadPoll   = time.Second
)

var EthernetBroadcast = NewAddress(NetworkEthernet, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff})

// frameEthernet prefixes data with the frame length (data plus the two
// length bytes), since short Ethernet frames come back padded.
func frameEthernet(data []byte) []byte {
	frame := make([]byte, len(data)+2)
	binary.BigEndian.PutUint16(frame, uint16(len(data)+2))
	copy(frame[2:], data)
	return frame
}

func unframeEthernet(frame []byte) ([]byte, bool) {
	if len(frame) < 2 {
		return nil, false
	}
	n := int(binary.BigEndian.Uint16(frame))
	if n < 2 || n > len(frame) {
		return nil, false
	}
	return frame[2:n], true
}
