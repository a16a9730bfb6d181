package network

import (
	"bytes"
	"fmt"

	log "github.com/ndmsystems/logger"
)

/*
	XBee API frame:

	+------+--------+--------+------------+---------------+----------+
	| 0x7E | len-hi | len-lo | frame type | frame data... | checksum |
	+------+--------+--------+------------+---------------+----------+

	len covers frame type and data; checksum covers the same bytes.
*/
const (
	xbeeStart         = 0x7e
	xbeeTxShort       = 0x01
	xbeeTxFrameID     = 0x41
	xbeeFtRxLong      = 0x80
	xbeeFtRxShort     = 0x81
	xbeeFtTxStatus    = 0x89
	xbeeMinFrameSize  = 5
	xbeeMaxFrameSize  = 115
	xbeeRxOptBcast    = 0x02
	xbeeFrameOverhead = 4

	// XBeeMTU is the largest CoAP datagram a TX-short frame carries.
	XBeeMTU = 100 + 9 + 2
)

var XBeeBroadcast = NewAddress(NetworkXBee, []byte{0xff, 0xff})

// checksum computes the trailer of the frame starting at buf[0] (the
// start marker); buf must hold at least the 3 header bytes and the
// declared length.
func checksum(buf []byte) byte {
	framelen := int(buf[1])<<8 | int(buf[2])
	var c byte
	for _, b := range buf[3 : 3+framelen] {
		c += b
	}
	return 0xff - c
}

// extractFrame looks for one complete, valid frame in buf. It returns the
// frame content (type byte and data) and the remaining buffer. When no
// frame is available yet, frame is nil and rest holds the bytes to keep.
func extractFrame(buf []byte) (frame []byte, rest []byte) {
	for {
		i := bytes.IndexByte(buf, xbeeStart)
		if i < 0 {
			return nil, buf[:0]
		}
		buf = buf[i:]

		if len(buf) < xbeeMinFrameSize {
			return nil, buf
		}

		framelen := int(buf[1])<<8 | int(buf[2])
		if framelen > xbeeMaxFrameSize {
			buf = buf[1:]
			continue
		}

		pktlen := framelen + xbeeFrameOverhead
		if pktlen > len(buf) {
			return nil, buf
		}

		if checksum(buf) != buf[pktlen-1] {
			buf = buf[1:]
			continue
		}

		frame = append([]byte(nil), buf[3:3+framelen]...)
		return frame, buf[pktlen:]
	}
}

// encodeTransmit builds a TX-short (16-bit address) request frame.
func encodeTransmit(dst Address, data []byte) []byte {
	a := dst.Bytes()
	dlen := 5 + len(data)

	b := make([]byte, 0, dlen+xbeeFrameOverhead)
	b = append(b, xbeeStart, byte(dlen>>8), byte(dlen), xbeeTxShort, xbeeTxFrameID, a[0], a[1], 0)
	b = append(b, data...)
	return append(b, checksum(b))
}

// decodeFrame interprets a frame returned by extractFrame. ok is false
// for frames that carry no datagram.
func decodeFrame(frame []byte) (kind PacketKind, src Address, data []byte, ok bool) {
	if len(frame) == 0 {
		return PacketNone, Address{}, nil, false
	}

	switch frame[0] {
	case xbeeFtRxShort:
		if len(frame) < 5 {
			return PacketNone, Address{}, nil, false
		}
		src = NewAddress(NetworkXBee, frame[1:3])
		kind = PacketUnicast
		if frame[4]&xbeeRxOptBcast != 0 {
			kind = PacketBroadcast
		}
		return kind, src, frame[5:], true

	case xbeeFtTxStatus:
		if len(frame) >= 3 && frame[2] != 0 {
			log.Debug(fmt.Sprintf("xbee: tx status 0x%02x for frame 0x%02x", frame[2], frame[1]))
		}

	default:
		log.Debug(fmt.Sprintf("xbee: unrecognized API frame type 0x%02x", frame[0]))
	}

	return PacketNone, Address{}, nil, false
}
