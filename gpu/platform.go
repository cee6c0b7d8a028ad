// Package gpu assembles the memory-subsystem timing model: shader nodes,
// an interconnect crossbar, and memory partitions that pair an L2 slice
// with a fixed-latency DRAM array, addressed through the linear address
// decoder.
package gpu

import (
	"log"

	"github.com/sarchlab/gpumemsim/mem"
	"github.com/sarchlab/gpumemsim/mem/addrdec"
	"github.com/sarchlab/gpumemsim/mem/cache"
	"github.com/sarchlab/gpumemsim/noc/crossbar"
	"github.com/sarchlab/gpumemsim/trace"
)

// lineStride is the distance between consecutive synthesized accesses of
// one kernel.
const lineStride = 128

// region is a span of device memory populated by a memory copy.
type region struct {
	addr uint64
	size uint64
}

type kernelState struct {
	kernel      *trace.Kernel
	outstanding int
}

// Platform is the timing model the scheduler drives. All state is owned by
// one control thread; components interact only through the operation
// contracts of their packages.
type Platform struct {
	numShaders int

	decoder    *addrdec.Translator
	xbar       *crossbar.Comp
	shaders    []*shader
	partitions []*partition
	pool       *mem.IDPool

	regions []region
	kernels map[uint64]*kernelState

	cycles           uint64
	maxCycles        uint64
	lastProgress     uint64
	deadlockInterval uint64
	maxConcurrent    int

	finished []uint64

	logger *log.Logger
	silent bool
}

// Crossbar returns the interconnect, for monitoring and stats collection.
func (p *Platform) Crossbar() *crossbar.Comp {
	return p.xbar
}

// PartitionCaches returns the L2 slice of every memory partition.
func (p *Platform) PartitionCaches() []*cache.Comp {
	caches := make([]*cache.Comp, len(p.partitions))
	for i, part := range p.partitions {
		caches[i] = part.cache
	}

	return caches
}

// Decoder returns the address decoder of the platform.
func (p *Platform) Decoder() *addrdec.Translator {
	return p.decoder
}

// MemcpyToDevice records a populated device-memory span. Kernels replay
// their accesses against the populated spans.
func (p *Platform) MemcpyToDevice(addr, byteCount uint64) {
	p.regions = append(p.regions, region{addr: addr, size: byteCount})
	p.lastProgress = p.cycles
}

// CanStartKernel reports whether another kernel may launch.
func (p *Platform) CanStartKernel() bool {
	return len(p.kernels) < p.maxConcurrent
}

// Launch synthesizes the memory accesses of a kernel and distributes them
// across the shaders: one coalesced access per warp, striding through the
// populated device-memory spans.
func (p *Platform) Launch(k *trace.Kernel) {
	warpsPerBlock := k.ThreadsPerBlock() / warpSize
	if warpsPerBlock == 0 {
		warpsPerBlock = 1
	}

	accesses := k.NumBlocks() * warpsPerBlock
	if accesses == 0 {
		accesses = 1
	}

	if len(p.regions) == 0 {
		// No memory copy preceded the launch; fall back to a default span.
		p.regions = append(p.regions, region{addr: 0x8000_0000, size: 1 << 20})
	}

	state := &kernelState{kernel: k, outstanding: int(accesses)}
	p.kernels[k.ID] = state

	for i := uint64(0); i < accesses; i++ {
		b := mem.MakeRequestBuilder().
			WithPool(p.pool).
			WithAddress(p.accessAddr(k.ID, i)).
			WithByteSize(lineStride).
			WithKernelID(k.ID)
		if i%4 == 3 {
			b = b.AsWrite()
		}

		s := p.shaders[i%uint64(p.numShaders)]
		s.pending = append(s.pending, b.Build())
	}

	p.lastProgress = p.cycles
}

// accessAddr maps the i-th access of a kernel into a populated span.
func (p *Platform) accessAddr(kernelID, i uint64) uint64 {
	r := p.regions[(kernelID+i/1024)%uint64(len(p.regions))]
	offset := (i * lineStride) % r.size

	return (r.addr + offset) &^ (mem.SectorSize - 1)
}

// Active reports whether any launched kernel still has outstanding work
// and the cycle ceiling has not been reached.
func (p *Platform) Active() bool {
	return len(p.kernels) > 0 && !p.CycleLimitReached()
}

// Cycle advances every component by one cycle.
func (p *Platform) Cycle() {
	now := p.cycles
	progress := false

	for _, part := range p.partitions {
		progress = part.cycle(p.xbar, now) || progress
	}

	for _, s := range p.shaders {
		progress = s.inject(p.xbar, p.decoder, now) || progress

		kernelID, ok := s.collect(p.xbar, now)
		if ok {
			p.completeAccess(kernelID)
			progress = true
		}
	}

	if progress {
		p.lastProgress = now
	}

	p.cycles++
}

func (p *Platform) completeAccess(kernelID uint64) {
	state, ok := p.kernels[kernelID]
	if !ok {
		// The kernel was force-stopped while its traffic was in flight.
		return
	}

	state.outstanding--
	if state.outstanding == 0 {
		delete(p.kernels, kernelID)
		p.finished = append(p.finished, kernelID)

		if !p.silent {
			p.logger.Printf("kernel %d (%s) finished at cycle %d",
				kernelID, state.kernel.Name, p.cycles)
		}
	}
}

// FinishedKernelID returns the ID of a kernel that retired since the last
// call, or zero.
func (p *Platform) FinishedKernelID() uint64 {
	if len(p.finished) == 0 {
		return 0
	}

	id := p.finished[0]
	p.finished = p.finished[1:]

	return id
}

// CycleLimitReached reports whether the configured cycle ceiling was hit.
func (p *Platform) CycleLimitReached() bool {
	return p.maxCycles > 0 && p.cycles >= p.maxCycles
}

// StopAllRunningKernels force-stops every launched kernel: their pending
// work is discarded rather than drained.
func (p *Platform) StopAllRunningKernels() {
	for id := range p.kernels {
		for _, s := range p.shaders {
			s.drop(id)
		}

		delete(p.kernels, id)
	}
}

// DeadlockCheck panics if no request has made progress for the configured
// interval. It indicates a modeling bug, not a transient condition.
func (p *Platform) DeadlockCheck() {
	if p.cycles-p.lastProgress > p.deadlockInterval {
		log.Panicf("no progress for %d cycles: deadlock at cycle %d",
			p.deadlockInterval, p.cycles)
	}
}

// Cycles returns the number of simulated cycles.
func (p *Platform) Cycles() uint64 {
	return p.cycles
}
