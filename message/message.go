package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	cerr "github.com/coalalib/casan/errors"
)

// A CoAPMessage is one CoAP datagram. Transmission state (peer, link,
// timers) is kept by whoever sends or receives it.
type CoAPMessage struct {
	MessageID uint16
	Type      CoapType
	Code      CoapCode
	Token     []byte
	Options   []*CoAPMessageOption
	Payload   []byte
}

// NewCoAPMessage returns a message without ID; one is assigned by the
// IDGenerator when the message is first sent.
func NewCoAPMessage(messageType CoapType, messageCode CoapCode) *CoAPMessage {
	return &CoAPMessage{
		Type: messageType,
		Code: messageCode,
	}
}

// NewAck builds an acknowledgement for req, piggybacking code.
func NewAck(req *CoAPMessage, code CoapCode) *CoAPMessage {
	return &CoAPMessage{
		MessageID: req.MessageID,
		Type:      ACK,
		Code:      code,
		Token:     req.Token,
	}
}

// Converts an array of bytes to a Message object.
// An error is returned if a parsing error occurs
func Deserialize(data []byte) (*CoAPMessage, error) {
	if len(data) < DataTokenStart {
		return nil, fmt.Errorf("%w: %d bytes, header needs 4", cerr.Truncated, len(data))
	}

	if ver := data[DataHeader] >> 6; ver != CoapVersion {
		return nil, fmt.Errorf("%w: got %d", cerr.ProtocolVersionMismatch, ver)
	}

	msg := &CoAPMessage{}
	msg.Type = CoapType(data[DataHeader] >> 4 & 0x03)
	msg.Code = CoapCode(data[DataCode])
	msg.MessageID = binary.BigEndian.Uint16(data[DataMsgIDStart:DataMsgIDEnd])

	tokenLength := int(data[DataHeader] & 0x0f)
	if tokenLength > MaxTokenLen {
		return nil, cerr.InvalidTokenLength
	}
	if DataTokenStart+tokenLength > len(data) {
		return nil, fmt.Errorf("%w: token", cerr.Truncated)
	}
	if tokenLength > 0 {
		msg.Token = append([]byte(nil), data[DataTokenStart:DataTokenStart+tokenLength]...)
	}

	offset := DataTokenStart + tokenLength
	prev := OptionCode(0)
	for offset < len(data) {
		if data[offset] == PayloadMarker {
			offset++
			if offset == len(data) {
				return nil, fmt.Errorf("%w: payload marker without payload", cerr.Truncated)
			}
			msg.Payload = append([]byte(nil), data[offset:]...)
			break
		}

		opt, code, next, err := decodeOption(data, offset, prev)
		if err != nil {
			return nil, err
		}
		prev, offset = code, next
		if opt != nil {
			msg.Options = append(msg.Options, opt)
		}
	}

	return msg, nil
}

// Converts a message object to a byte array. Typically done prior to transmission
func Serialize(msg *CoAPMessage) ([]byte, error) {
	if msg == nil {
		return nil, cerr.NilMessage
	}
	if msg.Type > RST {
		return nil, cerr.UnknownMessageType
	}
	if len(msg.Token) > MaxTokenLen {
		return nil, cerr.InvalidTokenLength
	}

	buf := bytes.Buffer{}
	buf.WriteByte(CoapVersion<<6 | uint8(msg.Type)<<4 | uint8(len(msg.Token)))
	buf.WriteByte(byte(msg.Code))
	messageID := []byte{0, 0}
	binary.BigEndian.PutUint16(messageID, msg.MessageID)
	buf.Write(messageID)
	buf.Write(msg.Token)

	prev := OptionCode(0)
	for _, opt := range sortOptions(msg.Options) {
		if err := encodeOption(&buf, opt, prev); err != nil {
			return nil, err
		}
		prev = opt.Code
	}

	if len(msg.Payload) > 0 {
		buf.WriteByte(PayloadMarker)
		buf.Write(msg.Payload)
	}

	return buf.Bytes(), nil
}

// SerializeLimit serializes msg and fails if the datagram would not fit in mtu bytes.
func SerializeLimit(msg *CoAPMessage, mtu int) ([]byte, error) {
	data, err := Serialize(msg)
	if err != nil {
		return nil, err
	}
	if mtu > 0 && len(data) > mtu {
		return nil, fmt.Errorf("%w: %d > %d", cerr.MessageTooLarge, len(data), mtu)
	}
	return data, nil
}

func (m *CoAPMessage) Clone() *CoAPMessage {
	c := *m
	c.Token = append([]byte(nil), m.Token...)
	c.Options = append([]*CoAPMessageOption(nil), m.Options...)
	c.Payload = append([]byte(nil), m.Payload...)
	return &c
}

// Equal compares header, token, option multiset (in code order) and payload.
func (m *CoAPMessage) Equal(o *CoAPMessage) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Type != o.Type || m.Code != o.Code || m.MessageID != o.MessageID {
		return false
	}
	if !bytes.Equal(m.Token, o.Token) || !bytes.Equal(m.Payload, o.Payload) {
		return false
	}
	return optionsEqual(sortOptions(m.Options), sortOptions(o.Options))
}

func optionsEqual(a, b []*CoAPMessageOption) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (m *CoAPMessage) GetURIPath() string {
	return "/" + strings.Join(m.GetOptionsAsString(OptionURIPath), "/")
}

func (m *CoAPMessage) GetURIPathSegments() []string {
	return m.GetOptionsAsString(OptionURIPath)
}

// SetURIPath appends one Uri-Path option per segment.
func (m *CoAPMessage) SetURIPath(segments ...string) {
	for _, s := range segments {
		m.AddOption(OptionURIPath, s)
	}
}

func (m *CoAPMessage) SetURIQuery(k string, v string) {
	m.AddOption(OptionURIQuery, k+"="+v)
}

func (m *CoAPMessage) GetURIQueryArray() []string {
	return m.GetOptionsAsString(OptionURIQuery)
}

// LookupURIQuery returns the value of the first k=v query with key q.
func (m *CoAPMessage) LookupURIQuery(q string) (string, bool) {
	for _, v := range m.GetURIQueryArray() {
		kv := strings.SplitN(v, "=", 2)
		if len(kv) == 2 && kv[0] == q {
			return kv[1], true
		}
	}
	return "", false
}

func (m *CoAPMessage) GetURIQuery(q string) string {
	v, _ := m.LookupURIQuery(q)
	return v
}

// GetMaxAge reports the Max-Age option, if present.
func (m *CoAPMessage) GetMaxAge() (int, bool) {
	opt := m.GetOption(OptionMaxAge)
	if opt == nil {
		return 0, false
	}
	return opt.IntValue(), true
}

func (m *CoAPMessage) GetContentFormat() (MediaType, bool) {
	opt := m.GetOption(OptionContentFormat)
	if opt == nil {
		return 0, false
	}
	return MediaType(opt.IntValue()), true
}

func (m *CoAPMessage) SetMediaType(mt MediaType) {
	m.AddOption(OptionContentFormat, mt)
}

func (m *CoAPMessage) IsRequest() bool {
	return m.Code.IsRequest()
}

func (m *CoAPMessage) ToReadableString() string {
	options := make([]string, 0, len(m.Options))
	for _, option := range m.Options {
		options = append(options, option.String())
	}

	return fmt.Sprintf(
		"%v\t%v\tid=%d\ttoken=%x\t[%s]\tpayload=%d bytes",
		m.Type,
		m.Code,
		m.MessageID,
		m.Token,
		strings.Join(options, ", "),
		len(m.Payload))
}
