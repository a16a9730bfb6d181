package casan

import (
	"strconv"
	"strings"

	m "github.com/coalalib/casan/message"
)

// Category is the CASAN role of a message.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNone
	CategoryDiscover
	CategoryAssocRequest
	CategoryAssocAnswer
	CategoryHello
)

func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryDiscover:
		return "discover"
	case CategoryAssocRequest:
		return "assoc-request"
	case CategoryAssocAnswer:
		return "assoc-answer"
	case CategoryHello:
		return "hello"
	}
	return "unknown"
}

// discoverInfo is what a Discover announces.
type discoverInfo struct {
	sid int
	mtu int
}

func isCtrlPath(msg *m.CoAPMessage) bool {
	path := msg.GetURIPathSegments()
	if len(path) != len(ctrlPath) {
		return false
	}
	for i := range path {
		if path[i] != ctrlPath[i] {
			return false
		}
	}
	return true
}

// classify finds the category of a received message. Assoc-Answer is
// never found here: it comes from correlation with an Assoc-Request.
func classify(msg *m.CoAPMessage) (Category, discoverInfo) {
	var info discoverInfo
	if msg.Code != m.POST || !isCtrlPath(msg) {
		return CategoryNone, info
	}

	queries := msg.GetURIQueryArray()
	switch {
	case msg.Type == m.NON && parseDiscover(queries, &info):
		return CategoryDiscover, info
	case msg.Type == m.CON && isAssocRequest(queries):
		return CategoryAssocRequest, info
	case hasQuery(queries, "hello"):
		return CategoryHello, info
	}
	return CategoryNone, info
}

func parseDiscover(queries []string, info *discoverInfo) bool {
	for _, q := range queries {
		k, v, ok := strings.Cut(q, "=")
		if !ok {
			return false
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return false
		}
		switch k {
		case "slave":
			info.sid = n
		case "mtu":
			info.mtu = n
		default:
			return false
		}
	}
	return info.sid > 0 && info.mtu >= 0
}

// isAssocRequest accepts only integer ttl= and mtu= queries, at least one
// of them.
func isAssocRequest(queries []string) bool {
	if len(queries) == 0 {
		return false
	}
	for _, q := range queries {
		k, v, ok := strings.Cut(q, "=")
		if !ok || (k != "ttl" && k != "mtu") {
			return false
		}
		if _, err := strconv.Atoi(v); err != nil {
			return false
		}
	}
	return true
}

func hasQuery(queries []string, keys ...string) bool {
	for _, q := range queries {
		k, _, _ := strings.Cut(q, "=")
		for _, key := range keys {
			if k == key {
				return true
			}
		}
	}
	return false
}

func newCtrlMessage(t m.CoapType) *m.CoAPMessage {
	msg := m.NewCoAPMessage(t, m.POST)
	msg.SetURIPath(ctrlPath...)
	return msg
}

// mkAssocRequest builds the CON sent in answer to a Discover.
func mkAssocRequest(ttlSeconds, mtu int) *m.CoAPMessage {
	msg := newCtrlMessage(m.CON)
	msg.SetURIQuery("ttl", strconv.Itoa(ttlSeconds))
	msg.SetURIQuery("mtu", strconv.Itoa(mtu))
	return msg
}

// mkHello builds the periodic broadcast Hello.
func mkHello(hid int) *m.CoAPMessage {
	msg := newCtrlMessage(m.NON)
	msg.SetURIQuery("hello", strconv.Itoa(hid))
	return msg
}
