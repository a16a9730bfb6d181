package message

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"sort"

	cerr "github.com/coalalib/casan/errors"
)

func GenerateToken(r *rand.Rand, l int) []byte {
	token := make([]byte, l)
	r.Read(token)
	return token
}

// sortOptions orders options by code, keeping the relative order of
// repeated options (Uri-Path segments must stay in sequence).
func sortOptions(opts []*CoAPMessageOption) []*CoAPMessageOption {
	sorted := make([]*CoAPMessageOption, len(opts))
	copy(sorted, opts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Code < sorted[j].Code
	})
	return sorted
}

func getOptionHeaderValue(optValue int) (int, error) {
	switch {
	case optValue <= 12:
		return optValue, nil
	case optValue <= 268:
		return 13, nil
	case optValue <= 65804:
		return 14, nil
	}
	return 0, fmt.Errorf("%w: value %d too large", cerr.MalformedOption, optValue)
}

func valueToBytes(value interface{}) []byte {
	var v uint32

	switch i := value.(type) {
	case nil:
		return nil
	case string:
		return []byte(i)
	case []byte:
		return i
	case MediaType:
		v = uint32(i)
	case uint8:
		v = uint32(i)
	case uint16:
		v = uint32(i)
	case int:
		v = uint32(i)
	case int32:
		v = uint32(i)
	case uint:
		v = uint32(i)
	case uint32:
		v = i
	}

	return encodeInt(v)
}

func decodeInt(b []byte) uint32 {
	tmp := []byte{0, 0, 0, 0}
	copy(tmp[4-len(b):], b)

	return binary.BigEndian.Uint32(tmp)
}

// encodeInt writes v big-endian without leading zero bytes.
func encodeInt(v uint32) []byte {
	switch {
	case v == 0:
		return nil

	case v < 256:
		return []byte{byte(v)}

	case v < 65536:
		rv := []byte{0, 0}
		binary.BigEndian.PutUint16(rv, uint16(v))
		return rv

	case v < 1<<24:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}

	default:
		rv := []byte{0, 0, 0, 0}
		binary.BigEndian.PutUint32(rv, v)
		return rv
	}
}

func typeString(c CoapType) string {
	switch c {
	case CON:
		return "CON"
	case NON:
		return "NON"
	case ACK:
		return "ACK"
	case RST:
		return "RST"
	}
	return "???"
}

func (c CoapType) String() string {
	return typeString(c)
}

func (c CoapCode) String() string {
	switch c {
	case CoapCodeEmpty:
		return "EMPTY"
	case GET:
		return "GET"
	case POST:
		return "POST"
	case PUT:
		return "PUT"
	case DELETE:
		return "DELETE"
	}
	return fmt.Sprintf("%d.%02d", c.Class(), c.Detail())
}
