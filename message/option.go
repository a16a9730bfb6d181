package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"

	cerr "github.com/coalalib/casan/errors"
	log "github.com/ndmsystems/logger"
)

// Represents an Option for a CoAP Message
type CoAPMessageOption struct {
	Code  OptionCode
	Value interface{}
}

// Instantiates a New Option
func NewOption(optionNumber OptionCode, optionValue interface{}) *CoAPMessageOption {
	return &CoAPMessageOption{
		Code:  optionNumber,
		Value: optionValue,
	}
}

// Determines if an option is elective
func (o *CoAPMessageOption) IsElective() bool {
	return int(o.Code)%2 == 0
}

// Determines if an option is critical
func (o *CoAPMessageOption) IsCritical() bool {
	return int(o.Code)%2 != 0
}

// IsNoCacheKey reports whether the option is excluded from cache keys (RFC 7252 5.4.6).
func (o *CoAPMessageOption) IsNoCacheKey() bool {
	return int(o.Code)&0x1e == 0x1c
}

// Checks if an option is repeatable
func (o *CoAPMessageOption) IsRepeatableOption() bool {
	if def, ok := optionDefs[o.Code]; ok {
		return def.repeat
	}
	return false
}

// Returns the string value of an option
func (o *CoAPMessageOption) StringValue() string {
	switch v := o.Value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func (o *CoAPMessageOption) IntValue() int {
	switch v := o.Value.(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case uint:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case MediaType:
		return int(v)
	case string:
		intVal, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return intVal
	default:
		return 0
	}
}

// Bytes returns the wire image of the option value.
func (o *CoAPMessageOption) Bytes() []byte {
	return valueToBytes(o.Value)
}

// Equal compares code and encoded value.
func (o *CoAPMessageOption) Equal(other *CoAPMessageOption) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.Code == other.Code && bytes.Equal(o.Bytes(), other.Bytes())
}

func (o *CoAPMessageOption) String() string {
	switch optionFormat(o.Code) {
	case UintValue:
		return fmt.Sprintf("%s: %d", OptionName(o.Code), o.IntValue())
	case StringValue:
		return fmt.Sprintf("%s: '%s'", OptionName(o.Code), o.StringValue())
	case EmptyValue:
		return OptionName(o.Code)
	}
	return fmt.Sprintf("%s: %x", OptionName(o.Code), o.Bytes())
}

func (o *CoAPMessageOption) validate() error {
	def, ok := optionDefs[o.Code]
	if !ok {
		return nil
	}
	n := len(o.Bytes())
	if n < def.minlen || n > def.maxlen {
		return fmt.Errorf("%w: %s length %d not in [%d, %d]", cerr.MalformedOption, def.name, n, def.minlen, def.maxlen)
	}
	return nil
}

/*
	    0   1   2   3   4   5   6   7
	   +---------------+---------------+
	   |  Option Delta | Option Length |   1 byte
	   +---------------+---------------+
	   /         Option Delta          /   0-2 bytes
	   \          (extended)           \
	   +-------------------------------+
	   /         Option Length         /   0-2 bytes
	   \          (extended)           \
	   +-------------------------------+
	   /         Option Value          /   0 or more bytes
	   +-------------------------------+
*/

// encodeOption writes opt delta-coded against prev.
func encodeOption(buf *bytes.Buffer, opt *CoAPMessageOption, prev OptionCode) error {
	if err := opt.validate(); err != nil {
		return err
	}

	value := opt.Bytes()
	delta := int(opt.Code) - int(prev)
	if delta < 0 {
		return fmt.Errorf("%w: options not sorted (%d after %d)", cerr.MalformedOption, opt.Code, prev)
	}

	deltaNibble, err := getOptionHeaderValue(delta)
	if err != nil {
		return err
	}
	lengthNibble, err := getOptionHeaderValue(len(value))
	if err != nil {
		return err
	}

	buf.WriteByte(byte(deltaNibble<<4 | lengthNibble))
	writeExtended(buf, deltaNibble, delta)
	writeExtended(buf, lengthNibble, len(value))
	buf.Write(value)

	return nil
}

func writeExtended(buf *bytes.Buffer, nibble, v int) {
	switch nibble {
	case 13:
		buf.WriteByte(byte(v - 13))
	case 14:
		ext := []byte{0, 0}
		binary.BigEndian.PutUint16(ext, uint16(v-269))
		buf.Write(ext)
	}
}

// readExtended resolves a header nibble, consuming extended bytes at offset.
func readExtended(data []byte, offset, nibble int) (int, int, error) {
	switch nibble {
	case 13:
		if offset+1 > len(data) {
			return 0, offset, fmt.Errorf("%w: extended header past end", cerr.MalformedOption)
		}
		return int(data[offset]) + 13, offset + 1, nil
	case 14:
		if offset+2 > len(data) {
			return 0, offset, fmt.Errorf("%w: extended header past end", cerr.MalformedOption)
		}
		return int(binary.BigEndian.Uint16(data[offset:offset+2])) + 269, offset + 2, nil
	case 15:
		return 0, offset, fmt.Errorf("%w: reserved nibble 15", cerr.MalformedOption)
	}
	return nibble, offset, nil
}

// decodeOption reads one option at offset. A nil option with a nil error
// means an unknown elective option was skipped.
func decodeOption(data []byte, offset int, prev OptionCode) (*CoAPMessageOption, OptionCode, int, error) {
	if offset >= len(data) {
		return nil, prev, offset, cerr.Truncated
	}

	header := data[offset]
	offset++

	delta, offset, err := readExtended(data, offset, int(header>>4))
	if err != nil {
		return nil, prev, offset, err
	}
	length, offset, err := readExtended(data, offset, int(header&0x0f))
	if err != nil {
		return nil, prev, offset, err
	}

	code := prev + OptionCode(delta)
	if offset+length > len(data) {
		return nil, code, offset, fmt.Errorf("%w: option %d value past end", cerr.Truncated, code)
	}
	raw := data[offset : offset+length]
	offset += length

	def, ok := optionDefs[code]
	if !ok {
		if int(code)&0x01 == 1 {
			return nil, code, offset, fmt.Errorf("%w (%d)", cerr.UnknownCriticalOption, code)
		}
		log.Debug(fmt.Sprintf("skipping unknown option %d", code))
		return nil, code, offset, nil
	}
	if length < def.minlen || length > def.maxlen {
		return nil, code, offset, fmt.Errorf("%w: %s length %d not in [%d, %d]", cerr.MalformedOption, def.name, length, def.minlen, def.maxlen)
	}

	var value interface{}
	switch def.format {
	case EmptyValue:
		value = nil
	case UintValue:
		value = decodeInt(raw)
	case StringValue:
		value = string(raw)
	default:
		value = append([]byte(nil), raw...)
	}

	return NewOption(code, value), code, offset, nil
}
