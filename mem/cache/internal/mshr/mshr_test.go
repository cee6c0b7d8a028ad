package mshr_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gpumemsim/mem"
	"github.com/sarchlab/gpumemsim/mem/cache/internal/mshr"
)

var _ = Describe("Table", func() {
	var (
		pool  *mem.IDPool
		table *mshr.Table
	)

	newReq := func(addr uint64) *mem.Request {
		return mem.MakeRequestBuilder().
			WithPool(pool).
			WithAddress(addr).
			WithByteSize(32).
			Build()
	}

	BeforeEach(func() {
		pool = mem.NewIDPool()
		table = mshr.NewTable(2, 2)
	})

	It("should probe added blocks", func() {
		Expect(table.Probe(0x100)).To(BeFalse())

		table.Add(0x100, newReq(0x100))

		Expect(table.Probe(0x100)).To(BeTrue())
		Expect(table.Size()).To(Equal(1))
	})

	It("should keep one entry per block", func() {
		table.Add(0x100, newReq(0x100))
		table.Add(0x100, newReq(0x108))

		Expect(table.Size()).To(Equal(1))
	})

	It("should report entry full at the merge limit", func() {
		table.Add(0x100, newReq(0x100))
		Expect(table.Full(0x100)).To(BeFalse())

		table.Add(0x100, newReq(0x108))
		Expect(table.Full(0x100)).To(BeTrue())

		Expect(func() {
			table.Add(0x100, newReq(0x110))
		}).To(Panic())
	})

	It("should report table full at the entry limit", func() {
		table.Add(0x100, newReq(0x100))
		table.Add(0x200, newReq(0x200))

		Expect(table.Full(0x300)).To(BeTrue())
		Expect(table.Full(0x100)).To(BeFalse())
	})

	It("should hand back merged requests after the fill", func() {
		r1 := newReq(0x100)
		r2 := newReq(0x108)
		table.Add(0x100, r1)
		table.Add(0x100, r2)

		Expect(table.HasReady()).To(BeFalse())

		table.MarkReady(0x100)

		Expect(table.HasReady()).To(BeTrue())
		Expect(table.NextReady()).To(BeIdenticalTo(r1))
		Expect(table.NextReady()).To(BeIdenticalTo(r2))
		Expect(table.HasReady()).To(BeFalse())
		Expect(table.Probe(0x100)).To(BeFalse(),
			"entry must be released after its last request is handed back")
	})

	It("should report atomics merged into an entry", func() {
		table.Add(0x100, newReq(0x100))
		atomic := mem.MakeRequestBuilder().
			WithPool(pool).
			WithAddress(0x108).
			AsAtomic().
			Build()
		table.Add(0x100, atomic)

		Expect(table.MarkReady(0x100)).To(BeTrue())
	})

	It("should panic on a fill for an untracked block", func() {
		Expect(func() {
			table.MarkReady(0x900)
		}).To(Panic())
	})
})
