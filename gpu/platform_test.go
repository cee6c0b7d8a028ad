package gpu_test

import (
	"bytes"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gpumemsim/gpu"
	"github.com/sarchlab/gpumemsim/mem/addrdec"
	"github.com/sarchlab/gpumemsim/mem/cache"
	"github.com/sarchlab/gpumemsim/trace"
)

func smallKernel(id uint64) *trace.Kernel {
	return &trace.Kernel{
		Name:     "vecadd",
		ID:       id,
		GridDim:  trace.Dim3{X: 4, Y: 1, Z: 1},
		BlockDim: trace.Dim3{X: 64, Y: 1, Z: 1},
		StreamID: id,
	}
}

var _ = Describe("Platform", func() {
	var (
		p      *gpu.Platform
		logBuf *bytes.Buffer
	)

	BeforeEach(func() {
		decoder := addrdec.MakeBuilder().
			WithNumChannels(2).
			WithSubPartitionsPerChannel(2).
			Build()

		logBuf = &bytes.Buffer{}
		p = gpu.MakeBuilder().
			WithNumShaders(2).
			WithDecoder(decoder).
			WithDRAMLatency(20).
			WithMaxCycles(200000).
			WithDeadlockInterval(10000).
			WithLogger(log.New(logBuf, "", 0)).
			Build()
	})

	run := func() {
		for p.Active() {
			p.Cycle()
			p.DeadlockCheck()
		}
	}

	It("should run a kernel to completion", func() {
		p.MemcpyToDevice(0x1000_0000, 1<<20)
		k := smallKernel(1)
		p.Launch(k)

		Expect(p.Active()).To(BeTrue())
		run()

		Expect(p.FinishedKernelID()).To(Equal(uint64(1)))
		Expect(p.FinishedKernelID()).To(Equal(uint64(0)))
		Expect(p.Active()).To(BeFalse())
		Expect(p.Cycles()).To(BeNumerically(">", 20),
			"a cold kernel cannot beat the DRAM latency")
		Expect(logBuf.String()).To(ContainSubstring("kernel 1 (vecadd) finished"))
	})

	It("should spread traffic across the memory partitions", func() {
		p.MemcpyToDevice(0x1000_0000, 1<<20)
		p.Launch(smallKernel(1))
		run()

		total := uint64(0)
		touched := 0
		for _, c := range p.PartitionCaches() {
			n := c.Stats().TotalAccesses()
			total += n
			if n > 0 {
				touched++
			}
		}

		// 4 blocks of 2 warps each.
		Expect(total).To(BeNumerically(">=", 8))
		Expect(touched).To(BeNumerically(">", 1))
	})

	It("should reuse cached lines across kernels", func() {
		p.MemcpyToDevice(0x1000_0000, 1<<20)
		p.Launch(smallKernel(1))
		run()
		Expect(p.FinishedKernelID()).To(Equal(uint64(1)))

		p.Launch(smallKernel(2))
		run()
		Expect(p.FinishedKernelID()).To(Equal(uint64(2)))

		hits := uint64(0)
		for _, c := range p.PartitionCaches() {
			hits += c.Stats().Accesses[cache.AccessHit]
		}
		Expect(hits).To(BeNumerically(">", 0),
			"the second kernel touches the same lines")
	})

	It("should honor the concurrent-kernel limit", func() {
		p = gpu.MakeBuilder().
			WithNumShaders(2).
			WithMaxConcurrentKernels(1).
			WithSilent(true).
			Build()

		p.MemcpyToDevice(0x1000_0000, 1<<20)
		Expect(p.CanStartKernel()).To(BeTrue())

		p.Launch(smallKernel(1))
		Expect(p.CanStartKernel()).To(BeFalse())
	})

	Context("cycle ceiling", func() {
		It("should deactivate at the ceiling and force-stop cleanly", func() {
			p = gpu.MakeBuilder().
				WithNumShaders(2).
				WithDRAMLatency(1000).
				WithMaxCycles(10).
				WithSilent(true).
				Build()

			p.MemcpyToDevice(0x1000_0000, 1<<20)
			p.Launch(smallKernel(1))

			for p.Active() {
				p.Cycle()
			}

			Expect(p.CycleLimitReached()).To(BeTrue())
			Expect(p.Cycles()).To(Equal(uint64(10)))
			Expect(p.FinishedKernelID()).To(Equal(uint64(0)))

			p.StopAllRunningKernels()
			Expect(p.CanStartKernel()).To(BeTrue())
		})
	})

	It("should panic when no request makes progress", func() {
		p = gpu.MakeBuilder().
			WithNumShaders(2).
			WithDeadlockInterval(5).
			WithSilent(true).
			Build()

		p.MemcpyToDevice(0x1000_0000, 1<<20)
		p.Launch(smallKernel(1))
		p.StopAllRunningKernels()

		// Nothing is in flight anymore, so cycles pass without progress.
		for i := 0; i < 10; i++ {
			p.Cycle()
		}

		Expect(func() { p.DeadlockCheck() }).To(Panic())
	})
})
