package casan

import (
	"fmt"
	"strings"

	cerr "github.com/coalalib/casan/errors"
)

// Attribute is a link-format attribute with all of its values.
type Attribute struct {
	Name   string
	Values []string
}

// Resource is a resource announced by a slave in its Assoc-Answer.
type Resource struct {
	Path       string
	Attributes []Attribute
}

func newResource(path string) *Resource {
	return &Resource{Path: strings.Trim(path, "/ ")}
}

// Segments splits the path into its components.
func (r *Resource) Segments() []string {
	if r.Path == "" {
		return nil
	}
	return strings.Split(r.Path, "/")
}

// AddAttribute appends value to the attribute name, creating it if needed.
func (r *Resource) AddAttribute(name, value string) {
	for i := range r.Attributes {
		if r.Attributes[i].Name == name {
			r.Attributes[i].Values = append(r.Attributes[i].Values, value)
			return
		}
	}
	r.Attributes = append(r.Attributes, Attribute{Name: name, Values: []string{value}})
}

func (r *Resource) Attribute(name string) ([]string, bool) {
	for _, a := range r.Attributes {
		if a.Name == name {
			return a.Values, true
		}
	}
	return nil, false
}

func (r *Resource) DoesMatchPath(path []string) bool {
	segs := r.Segments()
	if len(segs) != len(path) {
		return false
	}
	for i := range segs {
		if segs[i] != path[i] {
			return false
		}
	}
	return true
}

func (r *Resource) String() string {
	return r.format("/" + r.Path)
}

func (r *Resource) format(path string) string {
	var b strings.Builder
	b.WriteString("<" + path + ">")
	for _, a := range r.Attributes {
		for _, v := range a.Values {
			fmt.Fprintf(&b, ";%s=%q", a.Name, v)
		}
	}
	return b.String()
}

type parseState int

const (
	stStart parseState = iota
	stResource
	stEndRes
	stAttrName
	stAttrValStart
	stAttrValQuoted
	stAttrValNQuoted
)

// ParseResourceList parses an RFC 6690 link-format payload such as
// `</a>;title="A";rt=temp,</b>;obs`. Links may be separated by ',' or
// follow each other directly.
func ParseResourceList(payload []byte) ([]*Resource, error) {
	var (
		list  []*Resource
		cur   *Resource
		name  []byte
		value []byte
		state = stStart
	)

	fail := func(pos int) ([]*Resource, error) {
		return nil, fmt.Errorf("%w: unexpected byte at offset %d", cerr.UnparsableResourceList, pos)
	}

	for i, b := range payload {
		switch state {
		case stStart:
			if b != '<' {
				return fail(i)
			}
			value = value[:0]
			state = stResource

		case stResource:
			if b == '>' {
				cur = newResource(string(value))
				list = append(list, cur)
				state = stEndRes
			} else {
				value = append(value, b)
			}

		case stEndRes:
			name = name[:0]
			switch b {
			case ';':
				state = stAttrName
			case ',':
				state = stStart
			case '<':
				value = value[:0]
				state = stResource
			default:
				return fail(i)
			}

		case stAttrName:
			switch b {
			case '=':
				if len(name) == 0 {
					return fail(i)
				}
				state = stAttrValStart
			case ';':
				cur.AddAttribute(string(name), "")
				name = name[:0]
			case ',':
				cur.AddAttribute(string(name), "")
				state = stStart
			default:
				name = append(name, b)
			}

		case stAttrValStart:
			value = value[:0]
			switch b {
			case '"':
				state = stAttrValQuoted
			case ',':
				cur.AddAttribute(string(name), "")
				state = stStart
			case ';':
				cur.AddAttribute(string(name), "")
				name = name[:0]
				state = stAttrName
			default:
				value = append(value, b)
				state = stAttrValNQuoted
			}

		case stAttrValQuoted:
			if b == '"' {
				cur.AddAttribute(string(name), string(value))
				state = stEndRes
			} else {
				value = append(value, b)
			}

		case stAttrValNQuoted:
			switch b {
			case ',':
				cur.AddAttribute(string(name), string(value))
				state = stStart
			case ';':
				cur.AddAttribute(string(name), string(value))
				name = name[:0]
				state = stAttrName
			default:
				value = append(value, b)
			}
		}
	}

	switch state {
	case stAttrName:
		if len(name) > 0 {
			cur.AddAttribute(string(name), "")
		}
	case stAttrValStart:
		cur.AddAttribute(string(name), "")
	case stAttrValNQuoted:
		cur.AddAttribute(string(name), string(value))
	case stEndRes:
	default:
		return fail(len(payload))
	}
	return list, nil
}
