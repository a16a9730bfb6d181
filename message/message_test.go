package message_test

import (
	"encoding/binary"
	"strings"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	cerr "github.com/coalalib/casan/errors"
	. "github.com/coalalib/casan/message"
)

var _ = Describe("Message", func() {
	Describe("Serialize message", func() {
		var (
			message  *CoAPMessage
			datagram []byte
			err      error
		)

		BeforeEach(func() {
			message = NewCoAPMessage(CON, GET)
			message.MessageID = 0xbeef
			datagram, err = Serialize(message)
			Expect(err).NotTo(HaveOccurred())
		})

		Context("With correct Message ID", func() {
			It("Should correct serialize message id", func() {
				Expect(binary.BigEndian.Uint16(datagram[2:4])).Should(Equal(message.MessageID))
			})
		})

		Context("With correct Version", func() {
			It("Should correct serialize version", func() {
				Expect(datagram[0] >> 6).Should(Equal(uint8(1)))
			})
		})

		Context("With Type", func() {
			DescribeTable("Check each type",
				func(expectedType CoapType) {
					message.Type = expectedType
					datagram, err = Serialize(message)
					Expect(err).NotTo(HaveOccurred())
					Expect(datagram[0] >> 4 & 3).To(Equal(uint8(expectedType)))
				},
				Entry("CON", CON),
				Entry("NON", NON),
				Entry("ACK", ACK),
				Entry("RST", RST),
			)
		})

		Context("With options inserted out of order", func() {
			It("Should emit them in ascending code order", func() {
				message.MessageID = 0x1234
				message.Token = []byte{0xab}
				message.AddOption(OptionURIQuery, "x=1")
				message.SetURIPath("a")
				message.Payload = []byte("hi")

				datagram, err = Serialize(message)
				Expect(err).NotTo(HaveOccurred())
				Expect(datagram).To(Equal([]byte{
					0x41, 0x01, 0x12, 0x34, 0xab,
					0xb1, 'a',
					0x43, 'x', '=', '1',
					0xff, 'h', 'i',
				}))
			})

			It("Should keep repeated path segments in sequence", func() {
				message.AddOption(OptionMaxAge, 30)
				message.SetURIPath("x", "y")
				message.AddOption(OptionContentFormat, MediaTypeTextPlain)
				message.SetURIPath("z")

				datagram, err = Serialize(message)
				Expect(err).NotTo(HaveOccurred())
				decoded, err := Deserialize(datagram)
				Expect(err).NotTo(HaveOccurred())
				Expect(decoded.GetURIPath()).To(Equal("/x/y/z"))

				last := OptionCode(0)
				for _, o := range decoded.Options {
					Expect(o.Code >= last).To(BeTrue())
					last = o.Code
				}
			})
		})

		Context("With a link MTU", func() {
			It("Should refuse a datagram larger than the MTU", func() {
				message.Payload = make([]byte, 200)
				_, err = SerializeLimit(message, 100)
				Expect(err).To(MatchError(cerr.MessageTooLarge))
			})

			It("Should accept a datagram that fits", func() {
				message.Payload = make([]byte, 10)
				datagram, err = SerializeLimit(message, 100)
				Expect(err).NotTo(HaveOccurred())
				Expect(len(datagram)).To(BeNumerically("<=", 100))
			})
		})
	})

	Describe("Round trip", func() {
		DescribeTable("decode(encode(m)) == m",
			func(build func() *CoAPMessage) {
				m := build()
				datagram, err := Serialize(m)
				Expect(err).NotTo(HaveOccurred())

				decoded, err := Deserialize(datagram)
				Expect(err).NotTo(HaveOccurred())
				Expect(decoded.Equal(m)).To(BeTrue(), decoded.ToReadableString())
			},
			Entry("empty ack", func() *CoAPMessage {
				return &CoAPMessage{Type: ACK, MessageID: 1}
			}),
			Entry("request with path and query", func() *CoAPMessage {
				m := NewCoAPMessage(CON, POST)
				m.MessageID = 4242
				m.Token = []byte{1, 2, 3, 4, 5, 6, 7, 8}
				m.SetURIPath(".well-known", "casan")
				m.SetURIQuery("slave", "42")
				m.SetURIQuery("mtu", "80")
				return m
			}),
			Entry("response with uint options", func() *CoAPMessage {
				m := NewCoAPMessage(ACK, CoapCodeContent)
				m.MessageID = 65535
				m.AddOption(OptionMaxAge, 70000)
				m.AddOption(OptionSize1, 127)
				m.AddOption(OptionObserve, 0)
				m.SetMediaType(MediaTypeApplicationJSON)
				m.Payload = []byte(`{"t":21}`)
				return m
			}),
			Entry("opaque, empty and long options", func() *CoAPMessage {
				m := NewCoAPMessage(NON, PUT)
				m.MessageID = 7
				m.AddOption(OptionEtag, []byte{0xde, 0xad})
				m.AddOption(OptionIfNoneMatch, nil)
				m.AddOption(OptionProxyURI, "coap://"+strings.Repeat("h", 400))
				m.Payload = []byte{0x00, 0xff, 0x01}
				return m
			}),
		)
	})

	Describe("Deserialize message", func() {
		DescribeTable("Rejects bad datagrams",
			func(data []byte, expected error) {
				_, err := Deserialize(data)
				Expect(err).To(MatchError(expected))
			},
			Entry("version 2", []byte{0x80, 0x01, 0x00, 0x01}, cerr.ProtocolVersionMismatch),
			Entry("short header", []byte{0x40, 0x01}, cerr.Truncated),
			Entry("token past end", []byte{0x42, 0x01, 0x00, 0x01, 0xaa}, cerr.Truncated),
			Entry("token too long", []byte{0x49, 0x01, 0x00, 0x01, 1, 2, 3, 4, 5, 6, 7, 8, 9}, cerr.InvalidTokenLength),
			Entry("marker without payload", []byte{0x40, 0x01, 0x00, 0x01, 0xff}, cerr.Truncated),
			Entry("option past end", []byte{0x40, 0x01, 0x00, 0x01, 0xb5, 'a'}, cerr.Truncated),
			Entry("unknown critical option", []byte{0x40, 0x01, 0x00, 0x01, 0x90}, cerr.MalformedOption),
			Entry("unknown critical option kind", []byte{0x40, 0x01, 0x00, 0x01, 0x90}, cerr.UnknownCriticalOption),
		)

		It("Should skip unknown elective options", func() {
			m, err := Deserialize([]byte{0x50, 0x02, 0x00, 0x09, 0x21, 0xaa, 0x91, 'a'})
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Type).To(Equal(NON))
			Expect(m.GetURIPath()).To(Equal("/a"))
		})
	})

	Describe("Cache matching", func() {
		var a, b *CoAPMessage

		BeforeEach(func() {
			a = NewCoAPMessage(CON, GET)
			a.SetURIPath("temp")
			b = NewCoAPMessage(CON, GET)
			b.SetURIPath("temp")
			b.MessageID = 99
		})

		It("Should match identical requests symmetrically", func() {
			Expect(CacheMatch(a, b)).To(BeTrue())
			Expect(CacheMatch(b, a)).To(BeTrue())
		})

		It("Should ignore payloads", func() {
			a.Payload = []byte("x")
			Expect(CacheMatch(a, b)).To(BeTrue())
		})

		It("Should not match when a cache-key option differs", func() {
			a.AddOption(OptionAccept, MediaTypeApplicationJSON)
			Expect(CacheMatch(a, b)).To(BeFalse())
			Expect(CacheMatch(b, a)).To(BeFalse())
		})

		It("Should ignore NoCacheKey options", func() {
			a.AddOption(OptionSize1, 64)
			b.AddOption(OptionSize2, 128)
			Expect(CacheMatch(a, b)).To(BeTrue())
			Expect(CacheMatch(b, a)).To(BeTrue())
		})

		It("Should not match different types", func() {
			b.Type = NON
			Expect(CacheMatch(a, b)).To(BeFalse())
		})
	})
})
