package runner_test

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/gpumemsim/runner"
	"github.com/sarchlab/gpumemsim/trace"
)

func kernelTrace(id, streamID uint64) string {
	return fmt.Sprintf(`-kernel name = kernel_%d
-kernel id = %d
-grid dim = (4,1,1)
-block dim = (32,1,1)
-shmem = 0
-nregs = 16
-binary version = 70
-cuda stream id = %d
`, id, id, streamID)
}

var _ = Describe("Scheduler", func() {
	var (
		dir      string
		model    *fakeModel
		logBuf   *bytes.Buffer
		logger   *log.Logger
		listPath string
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "sched")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		model = newFakeModel(5)
		logBuf = &bytes.Buffer{}
		logger = log.New(logBuf, "", 0)
	})

	write := func(name, content string) {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
		if name == "kernelslist.g" {
			listPath = path
		}
	}

	build := func(concurrent int) *runner.Scheduler {
		b := runner.MakeBuilder().
			WithTimingModel(model).
			WithCommandSource(trace.NewParser(listPath)).
			WithLogger(logger)
		if concurrent > 1 {
			b = b.WithConcurrentKernels(concurrent)
		}

		s := b.Build()
		Expect(s.Init()).To(Succeed())

		return s
	}

	It("should run a memcpy before the kernel becomes resident", func() {
		write("kernel-1.traceg", kernelTrace(1, 0))
		write("kernelslist.g",
			"MemcpyHtoD,0x7f0000000000,4096\nkernel-1.traceg\n")

		s := build(1)
		Expect(s.RunToCompletion()).To(Succeed())

		Expect(model.effects).To(Equal([]string{"memcpy", "launch:kernel_1"}))
		Expect(model.memcpys).To(Equal([]memcpyRecord{
			{0x7f0000000000, 4096},
		}))
		Expect(s.KernelsLeft()).To(BeFalse())
		Expect(logBuf.String()).To(ContainSubstring(
			"*** simulation thread exiting ***"))
		Expect(logBuf.String()).To(ContainSubstring("*** exit detected ***"))
	})

	It("should never hold more kernels than the window", func() {
		write("kernel-1.traceg", kernelTrace(1, 0))
		write("kernel-2.traceg", kernelTrace(2, 1))
		write("kernel-3.traceg", kernelTrace(3, 2))
		write("kernelslist.g",
			"kernel-1.traceg\nkernel-2.traceg\nkernel-3.traceg\n")

		s := build(2)
		Expect(s.ProcessCommands()).To(Succeed())

		Expect(s.ResidentKernels()).To(Equal(2))
		Expect(s.CommandsLeft()).To(BeTrue())
	})

	It("should serialize kernels that share a stream", func() {
		write("kernel-1.traceg", kernelTrace(1, 7))
		write("kernel-2.traceg", kernelTrace(2, 7))
		write("kernelslist.g", "kernel-1.traceg\nkernel-2.traceg\n")

		s := build(2)
		Expect(s.ProcessCommands()).To(Succeed())
		s.LaunchKernels()

		Expect(model.launched).To(HaveLen(1))
		Expect(model.launched[0].ID).To(Equal(uint64(1)))

		// The second kernel only launches once the stream is free.
		s.LaunchKernels()
		Expect(model.launched).To(HaveLen(1))

		for model.FinishedKernelID() == 0 && model.Active() {
			s.Cycle()
		}
		s.CleanupFinishedKernel(1)

		// Reclaiming the finished kernel must not take the waiting one
		// with it.
		Expect(s.ResidentKernels()).To(Equal(1))

		s.LaunchKernels()

		Expect(model.launched).To(HaveLen(2))
		Expect(model.launched[1].ID).To(Equal(uint64(2)))
	})

	It("should run same-stream kernels back to back to completion", func() {
		write("kernel-1.traceg", kernelTrace(1, 7))
		write("kernel-2.traceg", kernelTrace(2, 7))
		write("kernelslist.g", "kernel-1.traceg\nkernel-2.traceg\n")

		s := build(2)
		Expect(s.RunToCompletion()).To(Succeed())

		Expect(model.launched).To(HaveLen(2))
		Expect(model.effects).To(Equal(
			[]string{"launch:kernel_1", "launch:kernel_2"}))
		Expect(s.KernelsLeft()).To(BeFalse())
		// 5 cycles each, strictly serial.
		Expect(model.cycles).To(Equal(uint64(10)))
	})

	It("should respect launch capacity", func() {
		write("kernel-1.traceg", kernelTrace(1, 0))
		write("kernelslist.g", "kernel-1.traceg\n")

		model.canStart = false
		s := build(1)
		Expect(s.ProcessCommands()).To(Succeed())
		s.LaunchKernels()

		Expect(model.launched).To(BeEmpty())
	})

	It("should run concurrent kernels on distinct streams", func() {
		write("kernel-1.traceg", kernelTrace(1, 0))
		write("kernel-2.traceg", kernelTrace(2, 1))
		write("kernelslist.g", "kernel-1.traceg\nkernel-2.traceg\n")

		s := build(2)
		Expect(s.RunToCompletion()).To(Succeed())

		Expect(model.launched).To(HaveLen(2))
		Expect(s.KernelsLeft()).To(BeFalse())
		// Both retire after the same 5 cycles; nothing ran serially.
		Expect(model.cycles).To(Equal(uint64(5)))
	})

	It("should fail on an unparsable kernel header", func() {
		write("kernel-1.traceg", "-kernel id = 1\n")
		write("kernelslist.g", "kernel-1.traceg\n")

		s := build(1)
		Expect(s.ProcessCommands()).To(HaveOccurred())
	})

	It("should panic when asked to reclaim an unknown kernel", func() {
		write("kernel-1.traceg", kernelTrace(1, 0))
		write("kernelslist.g", "kernel-1.traceg\n")

		s := build(1)
		Expect(s.ProcessCommands()).To(Succeed())
		s.LaunchKernels()

		Expect(func() {
			s.CleanupFinishedKernel(99)
		}).To(Panic())
	})

	Context("cycle ceiling", func() {
		It("should stop early and report the break", func() {
			write("kernel-1.traceg", kernelTrace(1, 0))
			write("kernelslist.g", "kernel-1.traceg\n")

			model = newFakeModel(1000)
			model.maxCycles = 10

			s := build(1)
			Expect(s.RunToCompletion()).To(Succeed())

			Expect(model.cycles).To(Equal(uint64(10)))
			Expect(s.KernelsLeft()).To(BeFalse(),
				"resident kernels must be reclaimed at the ceiling")
			Expect(logBuf.String()).To(ContainSubstring(
				"break due to reaching the maximum cycles"))
			Expect(logBuf.String()).To(ContainSubstring(
				"*** exit detected ***"))
		})

		It("should force-stop running kernels when cycled at the "+
			"ceiling", func() {
			write("kernel-1.traceg", kernelTrace(1, 0))
			write("kernelslist.g", "kernel-1.traceg\n")

			model = newFakeModel(1000)
			model.maxCycles = 1

			s := build(1)
			Expect(s.ProcessCommands()).To(Succeed())
			s.LaunchKernels()

			s.Cycle() // reaches the ceiling
			s.Cycle() // not active anymore: force-stop

			Expect(model.stopped).To(BeTrue())
		})
	})
})
