package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/gpumemsim/mem"
	"github.com/sarchlab/gpumemsim/mem/cache"
)

var _ = Describe("Comp", func() {
	var (
		mockCtrl  *gomock.Controller
		transport *MockTransport
		pool      *mem.IDPool
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		transport = NewMockTransport(mockCtrl)
		pool = mem.NewIDPool()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	build := func(config string) *cache.Comp {
		return cache.MakeBuilder().
			WithName("L2").
			WithConfigString(config).
			WithTransport(transport).
			WithIDPool(pool).
			Build()
	}

	read := func(addr, size uint64) *mem.Request {
		return mem.MakeRequestBuilder().
			WithPool(pool).
			WithAddress(addr).
			WithByteSize(size).
			Build()
	}

	Context("miss classification", func() {
		It("should merge a second same-block miss into the MSHR", func() {
			c := build("N:1:32:1,L:T:m:W:L,A:1:4,8:0,32")

			Expect(c.Access(read(0x100, 4), 1)).To(Equal(cache.AccessMiss))
			Expect(c.Access(read(0x104, 4), 2)).To(Equal(cache.AccessMSHRHit))
		})

		It("should reject every miss when the miss queue has no room", func() {
			c := build("N:4:32:4,L:T:m:W:L,A:4:4,0:0,32")

			for addr := uint64(0); addr < 0x100; addr += 0x20 {
				status := c.Access(read(addr, 4), 1)
				Expect(status).To(Equal(cache.AccessMissQueueFull))
				Expect(status.Rejected()).To(BeTrue())
			}
		})

		It("should fail to merge beyond the merge limit", func() {
			c := build("N:1:32:1,L:T:m:W:L,A:4:1,8:0,32")

			Expect(c.Access(read(0x100, 4), 1)).To(Equal(cache.AccessMiss))
			Expect(c.Access(read(0x104, 4), 2)).
				To(Equal(cache.AccessMSHRMergeFail))
		})

		It("should fail a new block when the MSHR table is full", func() {
			c := build("N:4:32:4,L:T:m:W:L,A:1:4,8:0,32")

			Expect(c.Access(read(0x100, 4), 1)).To(Equal(cache.AccessMiss))
			Expect(c.Access(read(0x200, 4), 2)).
				To(Equal(cache.AccessMSHREntryFail))
		})

		It("should fail when every way of the set is pinned", func() {
			c := build("N:1:32:2,L:T:m:W:L,A:8:4,8:0,32")

			Expect(c.Access(read(0x100, 4), 1)).To(Equal(cache.AccessMiss))
			Expect(c.Access(read(0x200, 4), 2)).To(Equal(cache.AccessMiss))
			Expect(c.Access(read(0x300, 4), 3)).
				To(Equal(cache.AccessReservationFail))
		})
	})

	Context("miss queue draining", func() {
		It("should drain one request per cycle when downstream accepts",
			func() {
				c := build("N:4:32:4,L:T:m:W:L,A:4:4,8:0,32")

				r1 := read(0x100, 4)
				r2 := read(0x200, 4)
				c.Access(r1, 1)
				c.Access(r2, 1)

				transport.EXPECT().CanSend(uint64(32), false).Return(true)
				transport.EXPECT().Send(r1)
				c.Cycle(2)

				transport.EXPECT().CanSend(uint64(32), false).Return(true)
				transport.EXPECT().Send(r2)
				c.Cycle(3)

				c.Cycle(4)
			})

		It("should hold the head when downstream is full", func() {
			c := build("N:4:32:4,L:T:m:W:L,A:4:4,8:0,32")

			r1 := read(0x100, 4)
			c.Access(r1, 1)

			transport.EXPECT().CanSend(uint64(32), false).Return(false)
			c.Cycle(2)

			transport.EXPECT().CanSend(uint64(32), false).Return(true)
			transport.EXPECT().Send(r1)
			c.Cycle(3)
		})

		It("should send cache-line traffic downstream, not the original "+
			"request shape", func() {
			c := build("N:4:32:4,L:T:m:W:L,A:4:4,8:0,32")

			r1 := read(0x104, 4)
			c.Access(r1, 1)

			Expect(r1.Addr).To(Equal(uint64(0x100)))
			Expect(r1.ByteSize).To(Equal(uint64(32)))
		})
	})

	Context("fill handling", func() {
		It("should complete a miss and restore the request shape", func() {
			c := build("N:4:32:4,L:T:m:W:L,A:4:4,8:0,32")

			r1 := read(0x104, 4)
			c.Access(r1, 1)
			Expect(c.WaitingForFill(r1)).To(BeTrue())

			transport.EXPECT().CanSend(gomock.Any(), false).Return(true)
			transport.EXPECT().Send(r1)
			c.Cycle(2)

			c.Fill(r1, 10)

			Expect(c.WaitingForFill(r1)).To(BeFalse())
			Expect(c.HasReady()).To(BeTrue())

			popped := c.Pop()
			Expect(popped).To(BeIdenticalTo(r1))
			Expect(popped.Addr).To(Equal(uint64(0x104)))
			Expect(popped.ByteSize).To(Equal(uint64(4)))
		})

		It("should hit after the fill", func() {
			c := build("N:4:32:4,L:T:m:W:L,A:4:4,8:0,32")

			r1 := read(0x100, 4)
			c.Access(r1, 1)
			transport.EXPECT().CanSend(gomock.Any(), false).Return(true)
			transport.EXPECT().Send(r1)
			c.Cycle(2)
			c.Fill(r1, 10)
			c.Pop()

			Expect(c.Access(read(0x108, 4), 11)).To(Equal(cache.AccessHit))
		})

		It("should hand back every merged request after one fill", func() {
			c := build("N:1:32:1,L:T:m:W:L,A:1:4,8:0,32")

			r1 := read(0x100, 4)
			r2 := read(0x104, 4)
			c.Access(r1, 1)
			c.Access(r2, 2)

			c.Fill(r1, 10)

			Expect(c.Pop()).To(BeIdenticalTo(r1))
			Expect(c.Pop()).To(BeIdenticalTo(r2))
			Expect(c.HasReady()).To(BeFalse())
		})

		It("should panic on a fill with no pending miss", func() {
			c := build("N:4:32:4,L:T:m:W:L,A:4:4,8:0,32")

			Expect(func() {
				c.Fill(read(0x100, 4), 1)
			}).To(Panic())
		})

		It("should wait for every sector of a fanned-out line fetch", func() {
			c := build("S:4:128:4,L:B:m:W:L,S:64:8,16:0,32")

			r1 := read(0x1000, 128)
			Expect(c.Access(r1, 1)).To(Equal(cache.AccessMiss))

			transport.EXPECT().CanSend(gomock.Any(), false).Return(true)
			transport.EXPECT().Send(r1)
			c.Cycle(2)

			for i := 0; i < 3; i++ {
				sector := mem.MakeRequestBuilder().
					WithPool(pool).
					WithAddress(0x1000 + uint64(i)*mem.SectorSize).
					WithByteSize(mem.SectorSize).
					WithParent(r1.ID).
					Build()
				c.Fill(sector, uint64(10+i))
				Expect(c.HasReady()).To(BeFalse())
			}

			last := mem.MakeRequestBuilder().
				WithPool(pool).
				WithAddress(0x1000 + 3*mem.SectorSize).
				WithByteSize(mem.SectorSize).
				WithParent(r1.ID).
				Build()
			c.Fill(last, 13)

			Expect(c.HasReady()).To(BeTrue())
			Expect(c.Pop()).To(BeIdenticalTo(r1))
			Expect(r1.ByteSize).To(Equal(uint64(128)))
		})
	})

	Context("bandwidth accounting", func() {
		It("should keep the data port busy after a hit", func() {
			c := build("N:4:32:4,L:T:m:W:L,A:4:4,8:0,8")

			r1 := read(0x100, 32)
			c.Access(r1, 1)
			transport.EXPECT().CanSend(gomock.Any(), false).Return(true)
			transport.EXPECT().Send(r1)
			c.Cycle(2)
			c.Fill(r1, 3)
			c.Pop()

			// A 32-byte hit over an 8-byte port keeps the port busy for
			// four cycles.
			Expect(c.Access(read(0x100, 32), 4)).To(Equal(cache.AccessHit))

			fillBusyBefore := c.Stats().FillPortBusyCycles
			for i := uint64(0); i < 6; i++ {
				c.Cycle(5 + i)
			}

			Expect(c.Stats().DataPortBusyCycles).To(Equal(uint64(4)))
			Expect(c.Stats().FillPortBusyCycles - fillBusyBefore).
				To(BeNumerically("<=", 4))
		})

		It("should charge the fill port per applied fill", func() {
			c := build("N:4:32:4,L:T:m:W:L,A:4:4,8:0,8")

			r1 := read(0x100, 4)
			c.Access(r1, 1)
			transport.EXPECT().CanSend(gomock.Any(), false).Return(true)
			transport.EXPECT().Send(r1)
			c.Cycle(2)

			Expect(c.Stats().FillPortBusyCycles).To(BeZero())

			c.Fill(r1, 3)

			// A 32-byte atom over an 8-byte port occupies the fill port
			// for four cycles.
			for i := uint64(0); i < 6; i++ {
				c.Cycle(4 + i)
			}
			Expect(c.Stats().FillPortBusyCycles).To(Equal(uint64(4)))
		})
	})

	Context("writeback", func() {
		It("should emit a writeback when a dirty line is displaced", func() {
			c := build("N:1:32:1,L:B:m:W:L,A:4:4,8:0,32")

			w1 := mem.MakeRequestBuilder().
				WithPool(pool).
				WithAddress(0x100).
				WithByteSize(32).
				AsWrite().
				Build()
			c.Access(w1, 1)
			transport.EXPECT().CanSend(gomock.Any(), true).Return(true)
			transport.EXPECT().Send(w1)
			c.Cycle(2)
			c.Fill(w1, 3)
			c.Pop()

			// The line is dirty. Displacing it queues the new fetch and
			// the writeback.
			Expect(c.Access(read(0x200, 4), 4)).To(Equal(cache.AccessMiss))

			transport.EXPECT().CanSend(uint64(32), false).Return(true)
			transport.EXPECT().Send(gomock.Any())
			c.Cycle(5)

			transport.EXPECT().CanSend(uint64(32), true).Return(true)
			transport.EXPECT().Send(gomock.Any()).Do(func(req *mem.Request) {
				Expect(req.IsWrite).To(BeTrue())
				Expect(req.Addr).To(Equal(uint64(0x100)))
			})
			c.Cycle(6)
		})
	})
})
