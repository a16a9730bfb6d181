package message

import (
	"bytes"
	"errors"
	"testing"

	cerr "github.com/coalalib/casan/errors"
)

func TestCoAPMessageOption_IsElective(t *testing.T) {
	type fields struct {
		Code  OptionCode
		Value interface{}
	}
	tests := []struct {
		name   string
		fields fields
		want   bool
	}{
		{
			"even", fields{2, nil}, true,
		},
		{
			"odd", fields{3, nil}, false,
		},
		{
			"zero", fields{0, nil}, true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &CoAPMessageOption{
				Code:  tt.fields.Code,
				Value: tt.fields.Value,
			}
			if got := o.IsElective(); got != tt.want {
				t.Errorf("CoAPMessageOption.IsElective() = %v, want %v", got, tt.want)
			}
			if got := o.IsCritical(); got == tt.want {
				t.Errorf("CoAPMessageOption.IsCritical() = %v, want %v", got, !tt.want)
			}
		})
	}
}

func TestCoAPMessageOption_IsNoCacheKey(t *testing.T) {
	tests := []struct {
		name string
		code OptionCode
		want bool
	}{
		{"Size1", OptionSize1, true},
		{"Size2", OptionSize2, true},
		{"Accept", OptionAccept, false},
		{"ETag", OptionEtag, false},
		{"UriPath", OptionURIPath, false},
		{"MaxAge", OptionMaxAge, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewOption(tt.code, nil).IsNoCacheKey(); got != tt.want {
				t.Errorf("CoAPMessageOption.IsNoCacheKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCoAPMessageOption_StringValue(t *testing.T) {
	str := "hello"

	type fields struct {
		Code  OptionCode
		Value interface{}
	}
	tests := []struct {
		name   string
		fields fields
		want   string
	}{
		{
			"string", fields{1, str}, str,
		},
		{
			"bytes", fields{1, []byte(str)}, str,
		},
		{
			"int", fields{1, 42}, "",
		},
		{
			"nil", fields{1, nil}, "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &CoAPMessageOption{
				Code:  tt.fields.Code,
				Value: tt.fields.Value,
			}
			if got := o.StringValue(); got != tt.want {
				t.Errorf("CoAPMessageOption.StringValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCoAPMessageOption_IntValue(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  int
	}{
		{"int", int(42), 42},
		{"int8", int8(42), 42},
		{"uint16", uint16(42), 42},
		{"uint32", uint32(42), 42},
		{"media type", MediaTypeApplicationJSON, 50},
		{"string", "42", 42},
		{"string invalid", "hello!", 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewOption(OptionMaxAge, tt.value).IntValue(); got != tt.want {
				t.Errorf("CoAPMessageOption.IntValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCoAPMessageOption_IsRepeatableOption(t *testing.T) {
	tests := []struct {
		name string
		code OptionCode
		want bool
	}{
		{"OptionIfMatch", OptionIfMatch, true},
		{"OptionEtag", OptionEtag, true},
		{"OptionLocationPath", OptionLocationPath, true},
		{"OptionURIPath", OptionURIPath, true},
		{"OptionURIQuery", OptionURIQuery, true},
		{"OptionLocationQuery", OptionLocationQuery, true},
		{"OptionURIPort", OptionURIPort, false},
		{"OptionSize1", OptionSize1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewOption(tt.code, nil).IsRepeatableOption(); got != tt.want {
				t.Errorf("CoAPMessageOption.IsRepeatableOption() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeInt(t *testing.T) {
	tests := []struct {
		name string
		v    uint32
		want []byte
	}{
		{"zero", 0, nil},
		{"one byte", 0x2a, []byte{0x2a}},
		{"two bytes", 0x1234, []byte{0x12, 0x34}},
		{"three bytes", 0x012345, []byte{0x01, 0x23, 0x45}},
		{"four bytes", 0xdeadbeef, []byte{0xde, 0xad, 0xbe, 0xef}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := encodeInt(tt.v)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("encodeInt() = %x, want %x", got, tt.want)
			}
			if back := decodeInt(got); back != tt.v {
				t.Errorf("decodeInt() = %d, want %d", back, tt.v)
			}
		})
	}
}

func TestEncodeOption(t *testing.T) {
	tests := []struct {
		name string
		opt  *CoAPMessageOption
		prev OptionCode
		want []byte
	}{
		{"short delta", NewOption(OptionURIPath, "a"), 0, []byte{0xb1, 'a'}},
		{"empty value", NewOption(OptionIfNoneMatch, nil), 0, []byte{0x50}},
		{"one byte extended delta", NewOption(OptionSize1, 5), 0, []byte{0xd1, 47, 0x05}},
		{"relative delta", NewOption(OptionURIQuery, "x"), OptionURIPath, []byte{0x41, 'x'}},
		{"two byte extended length", NewOption(OptionProxyURI, string(make([]byte, 300))), OptionProxyURI,
			append([]byte{0x0e, 0x00, 0x1f}, make([]byte, 300)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := encodeOption(&buf, tt.opt, tt.prev); err != nil {
				t.Fatalf("encodeOption() error = %v", err)
			}
			if !bytes.Equal(buf.Bytes(), tt.want) {
				t.Errorf("encodeOption() = %x, want %x", buf.Bytes(), tt.want)
			}

			opt, code, next, err := decodeOption(buf.Bytes(), 0, tt.prev)
			if err != nil {
				t.Fatalf("decodeOption() error = %v", err)
			}
			if code != tt.opt.Code || next != buf.Len() || !opt.Equal(tt.opt) {
				t.Errorf("decodeOption() = %v/%d/%d, want %v/%d", opt, code, next, tt.opt, buf.Len())
			}
		})
	}
}

func TestEncodeOption_LengthOutOfRange(t *testing.T) {
	var buf bytes.Buffer
	err := encodeOption(&buf, NewOption(OptionEtag, make([]byte, 9)), 0)
	if !errors.Is(err, cerr.MalformedOption) {
		t.Errorf("encodeOption() error = %v, want MalformedOption", err)
	}
}

func TestDecodeOption_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"extended delta past end", []byte{0xd0}, cerr.MalformedOption},
		{"extended length past end", []byte{0x1e, 0x00}, cerr.MalformedOption},
		{"reserved delta", []byte{0xf1, 0x00}, cerr.MalformedOption},
		{"unknown critical", []byte{0x90}, cerr.MalformedOption},
		{"etag too long", append([]byte{0x49}, make([]byte, 9)...), cerr.MalformedOption},
		{"value past end", []byte{0xb3, 'a'}, cerr.Truncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := decodeOption(tt.data, 0, 0)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("decodeOption() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeOption_SkipsUnknownElective(t *testing.T) {
	opt, code, next, err := decodeOption([]byte{0x21, 0xaa, 0xb1, 'a'}, 0, 0)
	if err != nil {
		t.Fatalf("decodeOption() error = %v", err)
	}
	if opt != nil || code != 2 || next != 2 {
		t.Errorf("decodeOption() = %v/%d/%d, want nil/2/2", opt, code, next)
	}
}

func TestIDGenerator(t *testing.T) {
	g := &IDGenerator{current: 65534}
	if id := g.Next(); id != 65535 {
		t.Errorf("Next() = %d, want 65535", id)
	}
	if id := g.Next(); id != 1 {
		t.Errorf("Next() = %d, want 1 (wrap skips 0)", id)
	}

	msg := &CoAPMessage{MessageID: 77}
	g.Assign(msg)
	if msg.MessageID != 77 {
		t.Errorf("Assign() overwrote explicit id: %d", msg.MessageID)
	}
	msg.MessageID = 0
	g.Assign(msg)
	if msg.MessageID != 2 {
		t.Errorf("Assign() = %d, want 2", msg.MessageID)
	}
}
