package casan_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/coalalib/casan"
	cerr "github.com/coalalib/casan/errors"
	m "github.com/coalalib/casan/message"
	"github.com/coalalib/casan/network"
)

var linkSeq int32

var _ = Describe("Engine", func() {
	var (
		link   *memLink
		engine *casan.Engine
		slave  *fakeSlave
		opts   casan.Options
		slaves []casan.SlaveConfig
		cancel context.CancelFunc
		done   chan error
	)

	start := func() {
		engine = casan.NewEngine(opts, []network.Link{link}, slaves)
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- engine.Run(ctx) }()
	}

	assocRequest := func() *m.CoAPMessage {
		msg, dst, ok := link.recv(time.Second)
		Expect(ok).To(BeTrue(), "no assoc request")
		Expect(dst).To(Equal(slave.addr))
		return msg
	}

	associate := func() {
		slave.discover(42, 0)
		slave.answer(assocRequest(), m.CoapCodeContent, `</a>;title="A"</b>`)
		Eventually(func() casan.SlaveStatus { return engine.FindSlave(42).Status() }).Should(Equal(casan.SlaveRunning))
	}

	BeforeEach(func() {
		n := atomic.AddInt32(&linkSeq, 1)
		link = newMemLink(fmt.Sprintf("mem%d", n), 100)
		slave = newFakeSlave(link, 0x2a)
		opts = casan.Options{FirstHello: time.Hour, AckTimeout: 20 * time.Millisecond}
		slaves = []casan.SlaveConfig{{ID: 42}}
	})

	AfterEach(func() {
		cancel()
		Eventually(done, 2*time.Second).Should(Receive(BeNil()))
	})

	Describe("Association", func() {
		JustBeforeEach(start)

		Context("With a Discover advertising mtu 80 on a link of mtu 100", func() {
			BeforeEach(func() {
				slaves = []casan.SlaveConfig{{ID: 42, TTL: time.Second}}
			})

			It("Should send an Assoc-Request with the negotiated mtu", func() {
				slave.discover(42, 80)
				req := assocRequest()
				Expect(req.Type).To(Equal(m.CON))
				Expect(req.Code).To(Equal(m.POST))
				Expect(req.GetURIPathSegments()).To(Equal([]string{".well-known", "casan"}))
				Expect(req.GetURIQueryArray()).To(ConsistOf("ttl=1", "mtu=80"))
			})

			It("Should run the slave until its ttl expires", func() {
				slave.discover(42, 80)
				slave.answer(assocRequest(), m.CoapCodeContent, `</a>;title="A"</b>`)

				sl := engine.FindSlave(42)
				Eventually(sl.Status).Should(Equal(casan.SlaveRunning))
				Expect(sl.CurMTU()).To(Equal(80))

				a := sl.FindResource([]string{"a"})
				Expect(a).NotTo(BeNil())
				title, _ := a.Attribute("title")
				Expect(title).To(Equal([]string{"A"}))
				b := sl.FindResource([]string{"b"})
				Expect(b).NotTo(BeNil())
				Expect(b.Attributes).To(BeEmpty())

				Eventually(sl.Status, 3*time.Second).Should(Equal(casan.SlaveInactive))
				Expect(sl.Resources()).To(BeEmpty())
				Expect(sl.FindResource([]string{"a"})).To(BeNil())
			})
		})

		Context("With the default configuration", func() {
			It("Should announce the default ttl and the link mtu", func() {
				slave.discover(42, 0)
				Expect(assocRequest().GetURIQueryArray()).To(ConsistOf("ttl=3600", "mtu=100"))
			})

			It("Should ignore a Discover for an unknown slave", func() {
				slave.discover(7, 0)
				_, _, ok := link.recv(200 * time.Millisecond)
				Expect(ok).To(BeFalse())
			})

			It("Should stay inactive on an unparsable resource list", func() {
				slave.discover(42, 0)
				slave.answer(assocRequest(), m.CoapCodeContent, `a>;`)
				Consistently(engine.FindSlave(42).Status, 200*time.Millisecond).Should(Equal(casan.SlaveInactive))
			})

			It("Should list the resources under the casan namespace", func() {
				associate()
				Expect(string(engine.ResourceListText())).To(Equal(`</casan/42/a>;title="A",</casan/42/b>`))
			})

			It("Should reset a running slave on demand", func() {
				associate()
				Expect(engine.ResetSlave(42)).To(Succeed())
				Expect(engine.FindSlave(42).Status()).To(Equal(casan.SlaveInactive))
				Expect(engine.ResourceListText()).To(BeEmpty())
				Expect(engine.ResetSlave(7)).To(MatchError(cerr.UnknownSlave))
			})

			It("Should keep receiving after a failed link read", func() {
				link.errs <- errors.New("serial: input/output error")
				associate()
				Eventually(func() float64 {
					return testutil.ToFloat64(casan.Metrics.ReceiveErrors.WithLabelValues(link.name))
				}).Should(Equal(1.0))
			})
		})

		Context("With a second Discover from another address", func() {
			It("Should keep only the last association attempt", func() {
				slave.discover(42, 0)
				first := assocRequest()

				moved := newFakeSlave(link, 0x2b)
				moved.discover(42, 0)
				second, dst, ok := link.recv(time.Second)
				Expect(ok).To(BeTrue())
				Expect(dst).To(Equal(moved.addr))

				slave.answer(first, m.CoapCodeContent, `</old>`)
				moved.answer(second, m.CoapCodeContent, `</new>`)

				sl := engine.FindSlave(42)
				Eventually(sl.Status).Should(Equal(casan.SlaveRunning))
				Expect(sl.FindResource([]string{"new"})).NotTo(BeNil())
				Expect(sl.FindResource([]string{"old"})).To(BeNil())
				Expect(engine.Status().Slaves[0].Addr).To(Equal(moved.addr.String()))
			})
		})
	})

	Describe("Requests", func() {
		JustBeforeEach(func() {
			start()
			associate()
		})

		It("Should deliver the piggybacked reply", func() {
			p, err := engine.SubmitRequest(42, m.GET, []string{"a"}, nil, nil)
			Expect(err).NotTo(HaveOccurred())

			req, _, ok := link.recv(time.Second)
			Expect(ok).To(BeTrue())
			Expect(req.GetURIPath()).To(Equal("/a"))
			Expect(req.Token).To(HaveLen(casan.TOKEN_LENGTH))
			slave.answer(req, m.CoapCodeContent, "21.5")

			reply, err := p.Await(time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Code).To(Equal(m.CoapCodeContent))
			Expect(string(reply.Payload)).To(Equal("21.5"))
		})

		It("Should accept a separate response after an empty ACK", func() {
			p, err := engine.SubmitRequest(42, m.GET, []string{"b"}, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			req, _, ok := link.recv(time.Second)
			Expect(ok).To(BeTrue())

			slave.send(m.NewAck(req, m.CoapCodeEmpty))
			res := m.NewCoAPMessage(m.CON, m.CoapCodeContent)
			res.MessageID = 0x7777
			res.Token = req.Token
			res.Payload = []byte("late")
			slave.send(res)

			reply, err := p.Await(time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(reply.Payload)).To(Equal("late"))

			// retransmissions of req may still be queued ahead of the ACK
			for {
				ack, _, ok := link.recv(time.Second)
				Expect(ok).To(BeTrue())
				if ack.Type == m.ACK {
					Expect(ack.MessageID).To(Equal(uint16(0x7777)))
					break
				}
			}
		})

		It("Should give up after the initial send and four retransmissions", func() {
			p, err := engine.SubmitRequest(42, m.GET, []string{"a"}, nil, nil)
			Expect(err).NotTo(HaveOccurred())

			var ids []uint16
			for {
				req, _, ok := link.recv(700 * time.Millisecond)
				if !ok {
					break
				}
				ids = append(ids, req.MessageID)
			}
			Expect(ids).To(HaveLen(1 + casan.MAX_RETRANSMIT))
			for _, id := range ids {
				Expect(id).To(Equal(ids[0]))
			}

			_, err = p.Await(time.Second)
			Expect(err).To(MatchError(cerr.UnresponsiveSlave))
		})

		It("Should time out the caller without cancelling the exchange", func() {
			p, err := engine.SubmitRequest(42, m.GET, []string{"a"}, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			first, _, ok := link.recv(time.Second)
			Expect(ok).To(BeTrue())
			_, err = p.Await(time.Millisecond)
			Expect(err).To(MatchError(cerr.RequestTimeout))

			again, _, ok := link.recv(time.Second)
			Expect(ok).To(BeTrue())
			Expect(again.MessageID).To(Equal(first.MessageID))
		})

		It("Should reject a request above the slave mtu", func() {
			_, err := engine.SubmitRequest(42, m.PUT, []string{"a"}, nil, bytes.Repeat([]byte{'x'}, 200))
			Expect(errors.Is(err, cerr.MessageTooLarge)).To(BeTrue())
		})

		It("Should keep a message id chosen by the caller", func() {
			req := casan.NewRequest(m.GET, []string{"a"}, nil, nil)
			req.MessageID = 0x1234
			_, err := engine.Submit(42, req)
			Expect(err).NotTo(HaveOccurred())

			sent, _, ok := link.recv(time.Second)
			Expect(ok).To(BeTrue())
			Expect(sent.MessageID).To(Equal(uint16(0x1234)))

			clash := casan.NewRequest(m.GET, []string{"b"}, nil, nil)
			clash.MessageID = 0x1234
			_, err = engine.Submit(42, clash)
			Expect(err).NotTo(HaveOccurred())
			Expect(clash.MessageID).NotTo(Equal(uint16(0x1234)))
			Expect(clash.MessageID).NotTo(BeZero())
		})

		It("Should refuse a NON request", func() {
			req := casan.NewRequest(m.GET, []string{"a"}, nil, nil)
			req.Type = m.NON
			_, err := engine.Submit(42, req)
			Expect(errors.Is(err, cerr.NotConfirmable)).To(BeTrue())
		})

		It("Should reject requests for unknown slaves", func() {
			_, err := engine.SubmitRequest(7, m.GET, []string{"a"}, nil, nil)
			Expect(err).To(MatchError(cerr.UnknownSlave))
		})

		It("Should answer a duplicate CON with the same ACK", func() {
			con := m.NewCoAPMessage(m.CON, m.POST)
			con.MessageID = 0x4242
			con.SetURIPath("event")
			raw := slave.send(con)

			first, _, ok := link.recv(time.Second)
			Expect(ok).To(BeTrue())
			Expect(first.Type).To(Equal(m.ACK))

			dups := engine.Status().Links[0].Dedup
			slave.sendRaw(raw)
			second, _, ok := link.recv(time.Second)
			Expect(ok).To(BeTrue())
			Expect(second).To(Equal(first))

			Expect(engine.Status().Links[0].Dedup).To(Equal(dups))
			Expect(testutil.ToFloat64(casan.Metrics.Duplicates.WithLabelValues(link.name))).To(Equal(1.0))
		})

		It("Should release waiters when stopped", func() {
			p, err := engine.SubmitRequest(42, m.GET, []string{"a"}, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			cancel()
			_, err = p.Await(time.Second)
			Expect(err).To(MatchError(cerr.EngineStopped))
		})
	})

	Describe("Hello", func() {
		BeforeEach(func() {
			opts.FirstHello = 20 * time.Millisecond
			opts.HelloInterval = 50 * time.Millisecond
		})
		JustBeforeEach(start)

		It("Should broadcast the same hello id on every round", func() {
			var hellos []string
			Eventually(func() int {
				select {
				case f := <-link.out:
					msg, err := m.Deserialize(f.data)
					Expect(err).NotTo(HaveOccurred())
					Expect(f.addr).To(Equal(link.bcast))
					Expect(msg.Type).To(Equal(m.NON))
					hellos = append(hellos, msg.GetURIQuery("hello"))
				default:
				}
				return len(hellos)
			}, time.Second, 5*time.Millisecond).Should(BeNumerically(">=", 2))

			Expect(hellos[0]).To(Equal(fmt.Sprint(engine.Status().HelloID)))
			Expect(hellos[1]).To(Equal(hellos[0]))
		})
	})
})
