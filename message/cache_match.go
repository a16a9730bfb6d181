package message

import "strings"

// CacheMatch reports whether a cached response for a may answer b
// (RFC 7252 5.6): same type and the same options once NoCacheKey
// options are dropped. Payloads are not compared.
func CacheMatch(a, b *CoAPMessage) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Type != b.Type {
		return false
	}
	return optionsEqual(cacheKeyOptions(a), cacheKeyOptions(b))
}

func cacheKeyOptions(m *CoAPMessage) []*CoAPMessageOption {
	opts := make([]*CoAPMessageOption, 0, len(m.Options))
	for _, o := range m.Options {
		if !o.IsNoCacheKey() {
			opts = append(opts, o)
		}
	}
	return sortOptions(opts)
}

// CacheKey encodes the fields CacheMatch compares. Two messages match
// exactly when their keys are equal.
func CacheKey(m *CoAPMessage) string {
	var b strings.Builder
	b.WriteByte(byte(m.Type))
	for _, o := range cacheKeyOptions(m) {
		v := o.Bytes()
		b.Write([]byte{byte(o.Code >> 8), byte(o.Code), byte(len(v) >> 8), byte(len(v))})
		b.Write(v)
	}
	return b.String()
}
